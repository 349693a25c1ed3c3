package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kbable/ble-adv-bridge/pkg/logger"
)

// PrometheusConfig holds Prometheus server configuration
type PrometheusConfig struct {
	Enabled bool
	Port    int
	Path    string
}

// PrometheusHandler handles Prometheus metrics HTTP requests
type PrometheusHandler struct {
	collector *Collector
}

// NewPrometheusHandler creates a new Prometheus handler
func NewPrometheusHandler(collector *Collector) *PrometheusHandler {
	return &PrometheusHandler{
		collector: collector,
	}
}

// ServeHTTP handles HTTP requests for metrics
func (h *PrometheusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	var output strings.Builder

	output.WriteString("# HELP bleadv_frames_sent_total Total frames handed to the advertiser scheduler\n")
	output.WriteString("# TYPE bleadv_frames_sent_total counter\n")
	output.WriteString(fmt.Sprintf("bleadv_frames_sent_total %d\n", h.collector.GetFramesSent()))

	output.WriteString("# HELP bleadv_bytes_sent_total Total advertising payload bytes broadcast\n")
	output.WriteString("# TYPE bleadv_bytes_sent_total counter\n")
	output.WriteString(fmt.Sprintf("bleadv_bytes_sent_total %d\n", h.collector.GetBytesSent()))

	output.WriteString("# HELP bleadv_frames_received_total Total raw scan results observed\n")
	output.WriteString("# TYPE bleadv_frames_received_total counter\n")
	output.WriteString(fmt.Sprintf("bleadv_frames_received_total %d\n", h.collector.GetFramesReceived()))

	output.WriteString("# HELP bleadv_bytes_received_total Total scanned payload bytes observed\n")
	output.WriteString("# TYPE bleadv_bytes_received_total counter\n")
	output.WriteString(fmt.Sprintf("bleadv_bytes_received_total %d\n", h.collector.GetBytesReceived()))

	output.WriteString("# HELP bleadv_dedupe_hits_total Scan results discarded as duplicates within the dedupe window\n")
	output.WriteString("# TYPE bleadv_dedupe_hits_total counter\n")
	output.WriteString(fmt.Sprintf("bleadv_dedupe_hits_total %d\n", h.collector.GetDedupeHits()))

	output.WriteString("# HELP bleadv_decode_failures_total Scan results no codec could decode\n")
	output.WriteString("# TYPE bleadv_decode_failures_total counter\n")
	output.WriteString(fmt.Sprintf("bleadv_decode_failures_total %d\n", h.collector.GetDecodeFailures()))

	output.WriteString("# HELP bleadv_scheduler_rotations_total Round-robin rotations performed by the advertiser scheduler\n")
	output.WriteString("# TYPE bleadv_scheduler_rotations_total counter\n")
	output.WriteString(fmt.Sprintf("bleadv_scheduler_rotations_total %d\n", h.collector.GetSchedulerRotations()))

	output.WriteString("# HELP bleadv_controllers_active Number of controllers currently holding the radio\n")
	output.WriteString("# TYPE bleadv_controllers_active gauge\n")
	output.WriteString(fmt.Sprintf("bleadv_controllers_active %d\n", h.collector.GetActiveControllers()))

	output.WriteString("# HELP bleadv_tx_count_rollovers_total Controller tx_count wraps past 126\n")
	output.WriteString("# TYPE bleadv_tx_count_rollovers_total counter\n")
	output.WriteString(fmt.Sprintf("bleadv_tx_count_rollovers_total %d\n", h.collector.GetTxCountRollovers()))

	w.Write([]byte(output.String()))
}

// PrometheusServer is an HTTP server for Prometheus metrics
type PrometheusServer struct {
	config    PrometheusConfig
	collector *Collector
	log       *logger.Logger
	server    *http.Server
}

// NewPrometheusServer creates a new Prometheus metrics server
func NewPrometheusServer(config PrometheusConfig, collector *Collector, log *logger.Logger) *PrometheusServer {
	if log == nil {
		log = logger.New(logger.Config{Level: "info", Format: "text"})
	}

	return &PrometheusServer{
		config:    config,
		collector: collector,
		log:       log.WithComponent("metrics"),
	}
}

// Start starts the Prometheus metrics server
func (s *PrometheusServer) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.log.Info("Prometheus metrics server disabled")
		return nil
	}

	handler := NewPrometheusHandler(s.collector)
	mux := http.NewServeMux()
	mux.Handle(s.config.Path, handler)

	// Use a listener to get the actual port (useful for testing with port 0)
	addr := fmt.Sprintf(":%d", s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	actualPort := listener.Addr().(*net.TCPAddr).Port

	s.server = &http.Server{
		Handler: mux,
	}

	s.log.Info("Starting Prometheus metrics server",
		logger.Int("port", actualPort),
		logger.String("path", s.config.Path))

	// Start server
	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.log.Info("Shutting down Prometheus metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown error: %w", err)
		}
		return ctx.Err()
	case err := <-errChan:
		return err
	}
}

// Stop stops the Prometheus metrics server
func (s *PrometheusServer) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(ctx)
	}
}
