// Package config loads uisync settings from YAML files and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/odvcencio/uisync/pkg/errors"
	"github.com/odvcencio/uisync/pkg/paths"
)

const configFileName = "config.yaml"

// Config holds all uisync configuration
type Config struct {
	Events  EventsConfig  `yaml:"events"`
	Loop    LoopConfig    `yaml:"loop"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
	Relay   RelayConfig   `yaml:"relay"`
}

// EventsConfig configures named events
type EventsConfig struct {
	// Dir is the rendezvous directory; empty means the system default.
	Dir    string `yaml:"dir"`
	Prefix string `yaml:"prefix"`
	// SocketMode is an octal permission string such as "0666".
	SocketMode  string        `yaml:"socket_mode"`
	Watch       bool          `yaml:"watch"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// LoopConfig configures the main loop
type LoopConfig struct {
	MessageBuffer int           `yaml:"message_buffer"`
	TickRate      time.Duration `yaml:"tick_rate"`
}

// LoggingConfig configures structured logging
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, text or auto
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// TracingConfig configures OpenTelemetry tracing
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// RelayConfig configures forwarding telemetry to a NATS server
type RelayConfig struct {
	// URL is the NATS server; empty disables the relay.
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Events: EventsConfig{
			Prefix:      "uisync-",
			SocketMode:  "0666",
			Watch:       true,
			DialTimeout: 2 * time.Second,
		},
		Loop: LoopConfig{
			MessageBuffer: 128,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
		Metrics: MetricsConfig{
			Listen: "127.0.0.1:9464",
		},
		Tracing: TracingConfig{
			ServiceName: "uisync",
		},
		Relay: RelayConfig{
			SubjectPrefix: "uisync.events",
		},
	}
}

// Load loads configuration from default locations with proper precedence:
// defaults, then ~/.uisync/config.yaml, then ./.uisync/config.yaml, then
// the environment.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if dir := paths.UserConfigDir(); dir != "" {
		if err := loadAndMerge(cfg, filepath.Join(dir, configFileName)); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrap(err, errors.ErrCodeConfigLoad, "loading user config")
		}
	}

	projectPath := filepath.Join(paths.ProjectConfigDir("."), configFileName)
	if err := loadAndMerge(cfg, projectPath); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, errors.ErrCodeConfigLoad, "loading project config")
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := loadAndMerge(cfg, path); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigLoad, "loading config").
			WithContext("path", path)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(paths.EnvEventDir)); v != "" {
		cfg.Events.Dir = v
	}
	if val, ok := envBool("UISYNC_EVENT_WATCH"); ok {
		cfg.Events.Watch = val
	}
	if v := strings.TrimSpace(os.Getenv("UISYNC_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("UISYNC_LOG_FORMAT")); v != "" {
		cfg.Logging.Format = v
	}
	if v := strings.TrimSpace(os.Getenv("UISYNC_METRICS_LISTEN")); v != "" {
		cfg.Metrics.Listen = v
		cfg.Metrics.Enabled = true
	}
	if val, ok := envBool("UISYNC_TRACING_ENABLED"); ok {
		cfg.Tracing.Enabled = val
	}
	if v := strings.TrimSpace(os.Getenv("UISYNC_RELAY_URL")); v != "" {
		cfg.Relay.URL = v
	}
}

func envBool(key string) (bool, bool) {
	val := os.Getenv(key)
	if val == "" {
		return false, false
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

// EventDir resolves the rendezvous directory.
func (c *Config) EventDir() string {
	return paths.EventDir(c.Events.Dir)
}

// SocketMode parses Events.SocketMode.
func (c *Config) SocketMode() (os.FileMode, error) {
	raw := strings.TrimSpace(c.Events.SocketMode)
	if raw == "" {
		return 0o666, nil
	}
	mode, err := strconv.ParseUint(raw, 8, 32)
	if err != nil || mode > 0o777 {
		return 0, errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("invalid socket mode: %s (want octal permissions such as 0666)", raw))
	}
	return os.FileMode(mode), nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.New(errors.ErrCodeConfigInvalid, fmt.Sprintf(format, args...))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return invalid("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true, "auto": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return invalid("invalid log format: %s (valid: json, text, auto)", c.Logging.Format)
	}

	if strings.ContainsAny(c.Events.Prefix, "/\\\x00") {
		return invalid("invalid event prefix: %q (must not contain path separators)", c.Events.Prefix)
	}
	if _, err := c.SocketMode(); err != nil {
		return err
	}
	if c.Events.DialTimeout < 0 {
		return invalid("events.dial_timeout must not be negative")
	}

	if c.Loop.MessageBuffer < 0 {
		return invalid("loop.message_buffer must not be negative")
	}
	if c.Loop.TickRate < 0 {
		return invalid("loop.tick_rate must not be negative")
	}

	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Listen) == "" {
		return invalid("metrics.listen is required when metrics are enabled")
	}
	if c.Tracing.Enabled && strings.TrimSpace(c.Tracing.ServiceName) == "" {
		return invalid("tracing.service_name is required when tracing is enabled")
	}
	if c.Relay.URL != "" && strings.TrimSpace(c.Relay.SubjectPrefix) == "" {
		return invalid("relay.subject_prefix is required when relay.url is set")
	}
	if strings.ContainsAny(c.Relay.SubjectPrefix, " *>\t") {
		return invalid("invalid relay subject prefix: %q (must not contain spaces or wildcards)", c.Relay.SubjectPrefix)
	}

	return nil
}
