// Package config loads bleadvd's YAML configuration the same way the
// teacher repository does: spf13/viper defaults plus a DMR_-style env
// prefix, unmarshaled into mapstructure-tagged structs.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config is the top-level bleadvd configuration.
type Config struct {
	Radio       RadioConfig                `mapstructure:"radio"`
	Web         WebConfig                  `mapstructure:"web"`
	Controllers map[string]ControllerConfig `mapstructure:"controllers"`
	Store       StoreConfig                `mapstructure:"store"`
	Logging     LoggingConfig              `mapstructure:"logging"`
	Metrics     MetricsConfig              `mapstructure:"metrics"`
}

// RadioConfig selects and tunes the BLE advertising driver.
type RadioConfig struct {
	Driver     string `mapstructure:"driver"` // "loopback" or a real GAP driver name
	MaxTxPower int    `mapstructure:"max_tx_power"`
}

// WebConfig holds the debug/events HTTP surface configuration (raw_decode,
// raw_listen, the websocket events feed).
type WebConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// ControllerConfig is one logical device: which codec ids to activate, the
// scheduling parameters the controller's main-loop tick consults, and the
// child light/fan entities this controller dispatches decoded commands to
// (spec.md section 3's "list of child entities").
type ControllerConfig struct {
	Label                  string        `mapstructure:"label"`
	ID                     string        `mapstructure:"id"` // hex or decimal; hashed from Label when empty
	Codecs                 []string      `mapstructure:"codecs"`
	MinTxDurationMS        int           `mapstructure:"min_tx_duration_ms"`
	MaxTxDurationMS        int           `mapstructure:"max_tx_duration_ms"`
	SeqDurationMS          int           `mapstructure:"seq_duration_ms"`
	CancelTimerOnAnyChange bool          `mapstructure:"cancel_timer_on_any_change"`
	Lights                 []LightConfig `mapstructure:"lights"`
	Fans                   []FanConfig   `mapstructure:"fans"`
}

// LightConfig declares one light entity owned by a controller.
type LightConfig struct {
	Index         uint8   `mapstructure:"index"`
	MinBrightness float32 `mapstructure:"min_brightness"`
}

// FanConfig declares one fan entity owned by a controller.
type FanConfig struct {
	Index uint8 `mapstructure:"index"`
}

// StoreConfig points at the sqlite-backed persisted preference store.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration, unchanged in shape from the
// teacher's.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// MetricsConfig holds metrics configuration, unchanged in shape from the
// teacher's.
type MetricsConfig struct {
	Enabled    bool             `mapstructure:"enabled"`
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig holds Prometheus metrics configuration.
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// Load loads configuration from file and environment variables.
func Load(configFile string) (*Config, error) {
	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("/etc/bleadvd")
	}

	viper.SetEnvPrefix("BLEADV")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is OK, use defaults.
		} else if os.IsNotExist(err) {
			// File explicitly specified but doesn't exist - that's also OK.
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults() {
	viper.SetDefault("radio.driver", "loopback")
	viper.SetDefault("radio.max_tx_power", 0)

	viper.SetDefault("web.enabled", true)
	viper.SetDefault("web.host", "0.0.0.0")
	viper.SetDefault("web.port", 8080)

	viper.SetDefault("store.path", "bleadvd.sqlite")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.max_size", 100)
	viper.SetDefault("logging.max_backups", 3)
	viper.SetDefault("logging.max_age", 7)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.prometheus.enabled", true)
	viper.SetDefault("metrics.prometheus.port", 9090)
	viper.SetDefault("metrics.prometheus.path", "/metrics")
}
