package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stratum.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: memory\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("driver = %q, want memory", cfg.Storage.Driver)
	}
	if cfg.Schema.Dir != "models" {
		t.Errorf("schema dir = %q, want models", cfg.Schema.Dir)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults = %q/%q", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: sqlite
  path: /tmp/data.db
schema:
  dir: ./schemas
logging:
  level: debug
  format: console
metrics:
  enabled: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Path != "/tmp/data.db" {
		t.Errorf("path = %q", cfg.Storage.Path)
	}
	if cfg.Schema.Dir != "./schemas" {
		t.Errorf("schema dir = %q", cfg.Schema.Dir)
	}
	if !cfg.Metrics.Enabled {
		t.Error("metrics should be enabled")
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: postgres\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestLoadRejectsUnknownLogFormat(t *testing.T) {
	path := writeConfig(t, "logging:\n  format: xml\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown log format")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STRATUM_STORAGE_DRIVER", "memory")
	t.Setenv("STRATUM_LOG_LEVEL", "trace")
	t.Setenv("STRATUM_METRICS_ENABLED", "true")

	path := writeConfig(t, "storage:\n  driver: sqlite\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("driver = %q, env override lost", cfg.Storage.Driver)
	}
	if cfg.Logging.Level != "trace" {
		t.Errorf("level = %q, env override lost", cfg.Logging.Level)
	}
	if !cfg.Metrics.Enabled {
		t.Error("metrics env override lost")
	}
}

func TestDefaultWithoutFile(t *testing.T) {
	cfg := Default()
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("default driver = %q", cfg.Storage.Driver)
	}
}

func TestHolderReload(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: info\n")

	h, err := NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	defer h.Stop()

	var seen *Config
	h.OnChange(func(c *Config) { seen = c })

	if err := os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := h.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if h.Get().Logging.Level != "debug" {
		t.Errorf("level after reload = %q", h.Get().Logging.Level)
	}
	if seen == nil || seen.Logging.Level != "debug" {
		t.Error("OnChange callback not invoked with new config")
	}
}

func TestHolderKeepsOldConfigOnBadReload(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: info\n")

	h, err := NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	defer h.Stop()

	if err := os.WriteFile(path, []byte("storage:\n  driver: nope\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := h.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if h.Get().Logging.Level != "info" {
		t.Error("previous config should stay in effect after a failed reload")
	}
}
