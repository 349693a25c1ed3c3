// Command bleadvd is the bridge daemon: it loads configuration, wires the
// codec/translator/controller/scheduler/listener pipeline around a radio
// driver, persists controller and light preferences, and serves the debug
// HTTP/events surface. Adapted from the teacher's cmd/dmr-nexus/main.go --
// the same flag parsing, two-phase logger bootstrap, context/signal
// wiring, and goroutine supervision, re-wired around this repository's own
// components instead of DMR peers/network/bridge.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/kbable/ble-adv-bridge/internal/loop"
	"github.com/kbable/ble-adv-bridge/pkg/codec"
	"github.com/kbable/ble-adv-bridge/pkg/config"
	"github.com/kbable/ble-adv-bridge/pkg/controller"
	"github.com/kbable/ble-adv-bridge/pkg/entity"
	"github.com/kbable/ble-adv-bridge/pkg/events"
	"github.com/kbable/ble-adv-bridge/pkg/gencmd"
	"github.com/kbable/ble-adv-bridge/pkg/listener"
	"github.com/kbable/ble-adv-bridge/pkg/logger"
	"github.com/kbable/ble-adv-bridge/pkg/metrics"
	"github.com/kbable/ble-adv-bridge/pkg/radio"
	"github.com/kbable/ble-adv-bridge/pkg/scheduler"
	"github.com/kbable/ble-adv-bridge/pkg/store"
	"github.com/kbable/ble-adv-bridge/pkg/translate"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	configFile := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	validateOnly := flag.Bool("validate", false, "validate configuration and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("bleadvd", version)
		return
	}

	bootstrapLog := logger.New(logger.Config{Level: "info", Format: "text"})

	cfg, err := config.Load(*configFile)
	if err != nil {
		bootstrapLog.Error("failed to load configuration", logger.Error(err))
		os.Exit(1)
	}

	if *validateOnly {
		bootstrapLog.Info("configuration is valid")
		return
	}

	log := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("received signal, shutting down", logger.String("signal", sig.String()))
		cancel()
	}()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("bleadvd exited with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	log.Info("bleadvd starting",
		logger.String("controllers", humanize.Comma(int64(len(cfg.Controllers)))),
		logger.String("store", cfg.Store.Path))

	collector := metrics.NewCollector()

	db, err := store.New(store.Config{Path: cfg.Store.Path}, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	driver, err := newRadioDriver(cfg.Radio)
	if err != nil {
		return fmt.Errorf("init radio: %w", err)
	}

	codecs := codec.NewDefaultRegistry()
	translators := translate.NewDefaultRegistry()
	sched := scheduler.New(driver, log, collector)
	hub := events.NewHub(log)

	sup := loop.NewSupervisor(log)
	sup.Go(func() { hub.Run(ctx.Done()) })

	entities := entity.NewRegistry()
	controllers := make(map[string]*controller.Controller, len(cfg.Controllers))
	mainLoop := loop.NewDriver(20*time.Millisecond, log)
	mainLoop.Register(sched)

	lst := listener.New(driver, codecs, translators, hub, log, collector)
	api := events.NewAPI(codecs, hub, log)

	for name, ctrlCfg := range cfg.Controllers {
		id, err := parseControllerID(ctrlCfg.ID, name)
		if err != nil {
			return err
		}

		var active []codec.Codec
		for _, codecID := range ctrlCfg.Codecs {
			cds, err := codecs.Get(codecID)
			if err != nil {
				return fmt.Errorf("controller %s: %w", name, err)
			}
			active = append(active, cds...)
		}

		ctrl := controller.New(controller.Config{
			ID:                     id,
			Label:                  ctrlCfg.Label,
			Codecs:                 active,
			MinTxDuration:          time.Duration(ctrlCfg.MinTxDurationMS) * time.Millisecond,
			MaxTxDuration:          time.Duration(ctrlCfg.MaxTxDurationMS) * time.Millisecond,
			SeqDuration:            time.Duration(ctrlCfg.SeqDurationMS) * time.Millisecond,
			CancelTimerOnAnyChange: ctrlCfg.CancelTimerOnAnyChange,
		}, translators, sched, log, collector)

		if state, ok, err := db.LoadControllerState(ctx, ctrlCfg.Label); err != nil {
			log.Warn("failed to load persisted controller state", logger.String("controller", name), logger.Error(err))
		} else if ok {
			ctrl.RestoreParams(gencmd.ControllerParams{TxCount: state.TxCount, RestartCount: state.RestartCount})
		}

		label := ctrlCfg.Label
		ctrl.OnSent(func(gen gencmd.GenCmd) {
			hub.Broadcast(events.FrameSent(label, gen.Cmd.String()))
		})

		for _, lightCfg := range ctrlCfg.Lights {
			light := entity.NewLight(lightCfg.Index, ctrl)
			light.MinBrightness = lightCfg.MinBrightness
			if pref, ok, err := db.LoadLightPreference(ctx, lightCfg.Index); err != nil {
				log.Warn("failed to load persisted light preference", logger.String("controller", name), logger.Error(err))
			} else if ok {
				light.MinBrightness = pref.MinBrightness
			}
			entities.AddLight(light)
			ctrl.RegisterEntity(light)
		}
		for _, fanCfg := range ctrlCfg.Fans {
			fan := entity.NewFan(fanCfg.Index, ctrl)
			entities.AddFan(fan)
			ctrl.RegisterEntity(fan)
		}

		controllers[name] = ctrl
		mainLoop.Register(ctrl)
		lst.RegisterController(ctrl)
		api.RegisterController(label, ctrl)
	}

	sup.Go(func() {
		if err := lst.Run(ctx); err != nil {
			log.Error("listener stopped with error", logger.Error(err))
		}
	})

	if cfg.Metrics.Enabled && cfg.Metrics.Prometheus.Enabled {
		promSrv := metrics.NewPrometheusServer(metrics.PrometheusConfig{
			Enabled: cfg.Metrics.Prometheus.Enabled,
			Port:    cfg.Metrics.Prometheus.Port,
			Path:    cfg.Metrics.Prometheus.Path,
		}, collector, log)
		sup.Go(func() {
			if err := promSrv.Start(ctx); err != nil && err != context.Canceled {
				log.Error("prometheus server stopped with error", logger.Error(err))
			}
		})
	}

	if cfg.Web.Enabled {
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/decode", api.HandleDecode)
		mux.HandleFunc("/status", api.HandleStatus)
		mux.HandleFunc("/healthz", api.HandleHealth)
		mux.HandleFunc("/events", hub.Handler())
		mux.HandleFunc("/control/{label}/pair", api.HandlePair)
		mux.HandleFunc("/control/{label}/unpair", api.HandleUnpair)
		mux.HandleFunc("/control/{label}/all_on", api.HandleAllOn)
		mux.HandleFunc("/control/{label}/all_off", api.HandleAllOff)
		mux.HandleFunc("/control/{label}/set_timer", api.HandleSetTimer)
		mux.HandleFunc("/control/{label}/cmd", api.HandleCmd)
		mux.HandleFunc("/control/{label}/inject_raw", api.HandleInjectRaw)

		addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
		webSrv := &http.Server{Addr: addr, Handler: mux}
		sup.Go(func() {
			log.Info("starting debug/events server", logger.String("addr", addr))
			if err := webSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("web server stopped with error", logger.Error(err))
			}
		})
		sup.Go(func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			webSrv.Shutdown(shutdownCtx)
		})
	}

	sup.Go(func() { mainLoop.Run(ctx) })

	sup.Go(func() {
		persistTicker := time.NewTicker(30 * time.Second)
		defer persistTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				persistAll(context.Background(), db, cfg, controllers, log)
				return
			case <-persistTicker.C:
				persistAll(ctx, db, cfg, controllers, log)
			}
		}
	})

	sup.Wait()
	return nil
}

func persistAll(ctx context.Context, db *store.Store, cfg *config.Config, controllers map[string]*controller.Controller, log *logger.Logger) {
	for name, ctrl := range controllers {
		ctrlCfg := cfg.Controllers[name]
		params := ctrl.Params()
		err := db.SaveControllerState(ctx, store.ControllerState{
			Label:        ctrlCfg.Label,
			ID:           params.ID,
			TxCount:      params.TxCount,
			RestartCount: params.RestartCount,
		})
		if err != nil {
			log.Warn("failed to persist controller state", logger.String("controller", name), logger.Error(err))
		}
	}
}

func parseControllerID(raw, name string) (uint32, error) {
	if raw == "" {
		return hashLabel(name), nil
	}
	base := 10
	s := raw
	if len(s) > 2 && s[0:2] == "0x" {
		base = 16
		s = s[2:]
	}
	v, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return 0, fmt.Errorf("controller %s: invalid id %q: %w", name, raw, err)
	}
	return uint32(v), nil
}

// hashLabel derives a stable 32-bit id from a controller label when the
// configuration omits an explicit one -- FNV-1a, the same small
// non-cryptographic hash the teacher uses to turn a human-readable name
// into a numeric identity.
func hashLabel(label string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(label); i++ {
		h ^= uint32(label[i])
		h *= 16777619
	}
	return h
}

func newRadioDriver(cfg config.RadioConfig) (radio.Driver, error) {
	switch cfg.Driver {
	case "", "loopback":
		return radio.NewLoopback(), nil
	default:
		return nil, fmt.Errorf("unknown radio driver %q (only \"loopback\" is built into this binary; a real GAP driver ships as a separate build tag)", cfg.Driver)
	}
}
