package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dantte-lp/nfcd/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.DBus.Bus != "system" {
		t.Errorf("DBus.Bus = %q, want %q", cfg.DBus.Bus, "system")
	}

	if cfg.DBus.Name != "org.sailfishos.nfc.daemon" {
		t.Errorf("DBus.Name = %q, want %q", cfg.DBus.Name, "org.sailfishos.nfc.daemon")
	}

	if cfg.Metrics.Addr != ":9150" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9150")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}

	if !cfg.Manager.AutoEnable {
		t.Error("Manager.AutoEnable = false, want true")
	}

	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() failed validation: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
dbus:
  bus: "session"
  name: "org.example.nfc.daemon"
metrics:
  addr: ":9200"
  path: "/custom-metrics"
log:
  level: "debug"
  format: "text"
manager:
  enable_modes: ["reader-writer", "card-emulation"]
  auto_enable: false
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.DBus.Bus != "session" {
		t.Errorf("DBus.Bus = %q, want %q", cfg.DBus.Bus, "session")
	}

	if cfg.DBus.Name != "org.example.nfc.daemon" {
		t.Errorf("DBus.Name = %q, want %q", cfg.DBus.Name, "org.example.nfc.daemon")
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom-metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/custom-metrics")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}

	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}

	if len(cfg.Manager.EnableModes) != 2 {
		t.Fatalf("Manager.EnableModes = %v, want 2 entries", cfg.Manager.EnableModes)
	}

	if cfg.Manager.AutoEnable {
		t.Error("Manager.AutoEnable = true, want false (overridden)")
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	// Partial YAML: only override dbus.name and log.level.
	// Everything else should inherit from defaults.
	yamlContent := `
dbus:
  name: "org.example.nfc.daemon"
log:
  level: "warn"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.DBus.Name != "org.example.nfc.daemon" {
		t.Errorf("DBus.Name = %q, want %q", cfg.DBus.Name, "org.example.nfc.daemon")
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	// Default values should be preserved.
	if cfg.DBus.Bus != "system" {
		t.Errorf("DBus.Bus = %q, want default %q", cfg.DBus.Bus, "system")
	}

	if cfg.Metrics.Addr != ":9150" {
		t.Errorf("Metrics.Addr = %q, want default %q", cfg.Metrics.Addr, ":9150")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want default %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want default %q", cfg.Log.Format, "json")
	}

	if !cfg.Manager.AutoEnable {
		t.Error("Manager.AutoEnable = false, want default true")
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "empty dbus name",
			modify: func(cfg *config.Config) {
				cfg.DBus.Name = ""
			},
			wantErr: config.ErrEmptyBusName,
		},
		{
			name: "invalid dbus bus",
			modify: func(cfg *config.Config) {
				cfg.DBus.Bus = "bogus"
			},
			wantErr: config.ErrInvalidBus,
		},
		{
			name: "invalid enable mode",
			modify: func(cfg *config.Config) {
				cfg.Manager.EnableModes = []string{"not-a-mode"}
			},
			wantErr: config.ErrInvalidMode,
		},
		{
			name: "empty adapter name",
			modify: func(cfg *config.Config) {
				cfg.Adapters = []config.AdapterConfig{{Name: ""}}
			},
			wantErr: config.ErrEmptyAdapterName,
		},
		{
			name: "duplicate adapter name",
			modify: func(cfg *config.Config) {
				cfg.Adapters = []config.AdapterConfig{
					{Name: "nfc0"},
					{Name: "nfc0"},
				}
			},
			wantErr: config.ErrDuplicateAdapterName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateValidModes(t *testing.T) {
	t.Parallel()

	for name := range config.ModeNames {
		cfg := config.DefaultConfig()
		cfg.Manager.EnableModes = []string{name}

		if err := config.Validate(cfg); err != nil {
			t.Errorf("Validate() with mode %q returned error: %v", name, err)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "INFO", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "WARN", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "Error", want: slog.LevelError},
		{input: "unknown", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
		{input: "trace", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := config.ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/path/config.yml")
	if err == nil {
		t.Fatal("Load() returned nil error for nonexistent file")
	}
}

func TestLoadWithAdapters(t *testing.T) {
	t.Parallel()

	yamlContent := `
dbus:
  name: "org.example.nfc.daemon"
adapters:
  - name: "nfc0"
    driver: "mock"
    params:
      T4_NDEF: "true"
  - name: "nfc1"
    driver: "mock"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if len(cfg.Adapters) != 2 {
		t.Fatalf("Adapters count = %d, want 2", len(cfg.Adapters))
	}

	a0 := cfg.Adapters[0]
	if a0.Name != "nfc0" {
		t.Errorf("Adapters[0].Name = %q, want %q", a0.Name, "nfc0")
	}
	if a0.Driver != "mock" {
		t.Errorf("Adapters[0].Driver = %q, want %q", a0.Driver, "mock")
	}
	if a0.Params["T4_NDEF"] != "true" {
		t.Errorf("Adapters[0].Params[T4_NDEF] = %q, want %q", a0.Params["T4_NDEF"], "true")
	}
}

// -------------------------------------------------------------------------
// Environment Variable Override Tests
// -------------------------------------------------------------------------

func TestLoadEnvOverrides(t *testing.T) {
	// Environment variable tests cannot be parallel because they modify
	// process-wide state (os.Setenv).

	yamlContent := `
dbus:
  name: "org.example.nfc.daemon"
log:
  level: "info"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("NFCD_DBUS_NAME", "org.override.nfc.daemon")
	t.Setenv("NFCD_LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.DBus.Name != "org.override.nfc.daemon" {
		t.Errorf("DBus.Name = %q, want %q (from env)", cfg.DBus.Name, "org.override.nfc.daemon")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (from env)", cfg.Log.Level, "debug")
	}
}

func TestLoadEnvOverridesMetrics(t *testing.T) {
	yamlContent := `
dbus:
  name: "org.example.nfc.daemon"
metrics:
  addr: ":9150"
  path: "/metrics"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("NFCD_METRICS_ADDR", ":9250")
	t.Setenv("NFCD_METRICS_PATH", "/custom")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Metrics.Addr != ":9250" {
		t.Errorf("Metrics.Addr = %q, want %q (from env)", cfg.Metrics.Addr, ":9250")
	}

	if cfg.Metrics.Path != "/custom" {
		t.Errorf("Metrics.Path = %q, want %q (from env)", cfg.Metrics.Path, "/custom")
	}
}

// writeTemp creates a temporary YAML file and returns its path.
// The file is automatically cleaned up when the test finishes.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "nfcd.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
