package config

import "fmt"

// validate validates the configuration.
func validate(cfg *Config) error {
	if cfg.Web.Enabled {
		if cfg.Web.Port <= 0 || cfg.Web.Port > 65535 {
			return fmt.Errorf("web.port must be between 1 and 65535")
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Prometheus.Enabled {
		if cfg.Metrics.Prometheus.Port <= 0 || cfg.Metrics.Prometheus.Port > 65535 {
			return fmt.Errorf("metrics.prometheus.port must be between 1 and 65535")
		}
	}

	for name, ctrl := range cfg.Controllers {
		if len(ctrl.Codecs) == 0 {
			return fmt.Errorf("controller %s: at least one codec id is required", name)
		}
		if ctrl.MinTxDurationMS <= 0 {
			return fmt.Errorf("controller %s: min_tx_duration_ms must be positive", name)
		}
		if ctrl.MaxTxDurationMS > 0 && ctrl.MaxTxDurationMS < ctrl.MinTxDurationMS {
			return fmt.Errorf("controller %s: max_tx_duration_ms must be >= min_tx_duration_ms", name)
		}
	}

	return nil
}
