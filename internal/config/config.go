// Package config manages nfcd daemon configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete nfcd configuration.
type Config struct {
	DBus     DBusConfig      `koanf:"dbus"`
	Metrics  MetricsConfig   `koanf:"metrics"`
	Log      LogConfig       `koanf:"log"`
	Manager  ManagerConfig   `koanf:"manager"`
	Adapters []AdapterConfig `koanf:"adapters"`
}

// DBusConfig holds the D-Bus control-plane bus configuration.
type DBusConfig struct {
	// Bus selects which bus to connect to: "system" or "session".
	Bus string `koanf:"bus"`
	// Name is the well-known service name to request (e.g.
	// "org.sailfishos.nfc.daemon").
	Name string `koanf:"name"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9150").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// ManagerConfig holds daemon-wide defaults applied by the manager at
// startup, before any client has issued a request_mode/set_enabled call.
type ManagerConfig struct {
	// EnableModes lists the modes (by name, see ModeNames) the daemon
	// requests enabled from the moment it starts, e.g. ["reader-writer"].
	EnableModes []string `koanf:"enable_modes"`

	// AutoEnable, when true, administratively enables every configured
	// adapter at startup rather than waiting for a client's set_enabled.
	AutoEnable bool `koanf:"auto_enable"`
}

// AdapterConfig describes one statically configured adapter entry. Most
// deployments discover adapters dynamically through their plugin loader
// (§1 non-goal); this lets an operator pin a name-to-driver-config
// mapping for adapters that need one, analogous to how the reference
// daemon's settings layer associates a persisted parameter overlay with
// an adapter name.
type AdapterConfig struct {
	// Name is the driver-supplied adapter name this entry configures
	// (the "nfcX" pattern, §3).
	Name string `koanf:"name"`

	// Driver selects which compiled-in driver backend to construct.
	Driver string `koanf:"driver"`

	// Params seeds a persistent parameter-request overlay applied at
	// adapter registration, keyed by parameter name (see param.ID.String).
	Params map[string]string `koanf:"params"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DBus: DBusConfig{
			Bus:  "system",
			Name: "org.sailfishos.nfc.daemon",
		},
		Metrics: MetricsConfig{
			Addr: ":9150",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Manager: ManagerConfig{
			AutoEnable: true,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for nfcd configuration.
// Variables are named NFCD_<section>_<key>, e.g., NFCD_DBUS_NAME.
const envPrefix = "NFCD_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (NFCD_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	NFCD_DBUS_BUS      -> dbus.bus
//	NFCD_DBUS_NAME     -> dbus.name
//	NFCD_METRICS_ADDR  -> metrics.addr
//	NFCD_METRICS_PATH  -> metrics.path
//	NFCD_LOG_LEVEL     -> log.level
//	NFCD_LOG_FORMAT    -> log.format
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms NFCD_DBUS_NAME -> dbus.name.
// Strips the NFCD_ prefix, lowercases, and replaces _ with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"dbus.bus":            defaults.DBus.Bus,
		"dbus.name":           defaults.DBus.Name,
		"metrics.addr":        defaults.Metrics.Addr,
		"metrics.path":        defaults.Metrics.Path,
		"log.level":           defaults.Log.Level,
		"log.format":          defaults.Log.Format,
		"manager.auto_enable": defaults.Manager.AutoEnable,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyBusName indicates the D-Bus well-known name is empty.
	ErrEmptyBusName = errors.New("dbus.name must not be empty")

	// ErrInvalidBus indicates dbus.bus is neither "system" nor "session".
	ErrInvalidBus = errors.New("dbus.bus must be \"system\" or \"session\"")

	// ErrInvalidMode indicates an enable_modes entry is not a recognized
	// mode name.
	ErrInvalidMode = errors.New("manager.enable_modes entry is not a recognized mode")

	// ErrEmptyAdapterName indicates an adapters[] entry omitted its name.
	ErrEmptyAdapterName = errors.New("adapter name must not be empty")

	// ErrDuplicateAdapterName indicates two adapters[] entries share a name.
	ErrDuplicateAdapterName = errors.New("duplicate adapter name")
)

// ValidBuses lists the recognized dbus.bus strings.
var ValidBuses = map[string]bool{
	"system":  true,
	"session": true,
}

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.DBus.Name == "" {
		return ErrEmptyBusName
	}

	if !ValidBuses[cfg.DBus.Bus] {
		return ErrInvalidBus
	}

	for _, name := range cfg.Manager.EnableModes {
		if _, ok := ModeNames[name]; !ok {
			return fmt.Errorf("mode %q: %w", name, ErrInvalidMode)
		}
	}

	if err := validateAdapters(cfg.Adapters); err != nil {
		return err
	}

	return nil
}

func validateAdapters(adapters []AdapterConfig) error {
	seen := make(map[string]struct{}, len(adapters))

	for i, ac := range adapters {
		if ac.Name == "" {
			return fmt.Errorf("adapters[%d]: %w", i, ErrEmptyAdapterName)
		}
		if _, dup := seen[ac.Name]; dup {
			return fmt.Errorf("adapters[%d] name %q: %w", i, ac.Name, ErrDuplicateAdapterName)
		}
		seen[ac.Name] = struct{}{}
	}

	return nil
}

// ModeNames maps the configuration-file mode spelling to the adapter
// package's Mode bitmask, mirroring the §3 mode bitmask names.
var ModeNames = map[string]uint8{
	"reader-writer":  1 << 0,
	"card-emulation": 1 << 1,
	"peer-initiator": 1 << 2,
	"peer-target":    1 << 3,
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
