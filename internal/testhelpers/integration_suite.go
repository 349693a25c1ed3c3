// Package testhelpers provides shared scaffolding for integration tests:
// a disposable context/logger/config bundle plus polling assertions.
// Adapted from the teacher's IntegrationSuite -- WaitFor, AssertEventually
// and GetFreePort are untouched; the DMR-specific mock peer and test server
// helpers are replaced with a loopback-radio BLE harness.
package testhelpers

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/kbable/ble-adv-bridge/pkg/config"
	"github.com/kbable/ble-adv-bridge/pkg/logger"
	"github.com/kbable/ble-adv-bridge/pkg/radio"
)

// IntegrationSuite bundles the disposable infrastructure an integration
// test needs: a cancellable context, a debug-level logger, a default
// config, and a loopback radio standing in for a physical BLE adapter.
type IntegrationSuite struct {
	T      *testing.T
	Config *config.Config
	Logger *logger.Logger
	Ctx    context.Context
	Cancel context.CancelFunc
	Radio  *radio.Loopback
}

// NewIntegrationSuite creates a new integration test suite with a 30s
// overall deadline and a fresh loopback radio.
func NewIntegrationSuite(t *testing.T) *IntegrationSuite {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	log := logger.New(logger.Config{
		Level:  "debug",
		Format: "text",
	})

	return &IntegrationSuite{
		T:      t,
		Config: CreateDefaultConfig(),
		Logger: log,
		Ctx:    ctx,
		Cancel: cancel,
		Radio:  radio.NewLoopback(),
	}
}

// GetFreePort returns an OS-assigned free TCP port, for tests that stand up
// the debug HTTP/events server on an ephemeral port.
func (s *IntegrationSuite) GetFreePort() int {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		s.T.Fatal(err)
	}

	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		s.T.Fatal(err)
	}
	defer func() { _ = listener.Close() }()

	return listener.Addr().(*net.TCPAddr).Port
}

// Cleanup cancels the suite's context.
func (s *IntegrationSuite) Cleanup() {
	s.Cancel()
}

// WaitFor polls condition every 10ms until it returns true or timeout
// elapses, returning whether it succeeded.
func (s *IntegrationSuite) WaitFor(condition func() bool, timeout time.Duration, message string) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	s.T.Logf("WaitFor timeout: %s", message)
	return false
}

// AssertEventually fails the test if condition does not become true within
// timeout.
func (s *IntegrationSuite) AssertEventually(condition func() bool, timeout time.Duration, message string) {
	if !s.WaitFor(condition, timeout, message) {
		s.T.Errorf("Assertion failed: %s", message)
	}
}

// CreateDefaultConfig returns a minimal valid BLE bridge configuration
// suitable as an integration test starting point: loopback radio, web
// surface disabled, one Agarce-backed controller.
func CreateDefaultConfig() *config.Config {
	return &config.Config{
		Radio: config.RadioConfig{
			Driver:     "loopback",
			MaxTxPower: 0,
		},
		Web: config.WebConfig{
			Enabled: false,
		},
		Controllers: map[string]config.ControllerConfig{
			"test": {
				Label:           "test",
				ID:              "1",
				Codecs:          []string{"agarce - v1"},
				MinTxDurationMS: 100,
				MaxTxDurationMS: 1000,
				SeqDurationMS:   100,
			},
		},
		Store: config.StoreConfig{
			Path: ":memory:",
		},
		Logging: config.LoggingConfig{
			Level:  "debug",
			Format: "text",
		},
		Metrics: config.MetricsConfig{
			Enabled: false,
		},
	}
}
