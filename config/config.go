// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Schema  SchemaConfig  `yaml:"schema"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// StorageConfig selects and configures the backend.
type StorageConfig struct {
	// Driver is "sqlite" or "memory".
	Driver string `yaml:"driver"`

	// Path is the database file for the sqlite driver.
	Path string `yaml:"path"`
}

// SchemaConfig locates the model definition files.
type SchemaConfig struct {
	// Dir is scanned recursively for .yaml/.yml model definitions.
	Dir string `yaml:"dir"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // trace, debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// MetricsConfig configures Prometheus instrumentation.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads, defaults, overrides and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	setDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg
}

func setDefaults(cfg *Config) {
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "stratum.db"
	}
	if cfg.Schema.Dir == "" {
		cfg.Schema.Dir = "models"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STRATUM_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("STRATUM_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("STRATUM_SCHEMA_DIR"); v != "" {
		cfg.Schema.Dir = v
	}
	if v := os.Getenv("STRATUM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("STRATUM_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("STRATUM_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true" || v == "1"
	}
}

func validate(cfg *Config) error {
	switch cfg.Storage.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	if cfg.Storage.Driver == "sqlite" && cfg.Storage.Path == "" {
		return fmt.Errorf("sqlite driver needs a storage path")
	}
	switch cfg.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", cfg.Logging.Format)
	}
	return nil
}
