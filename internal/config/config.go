// Package config loads settings for the long-running store process from
// defaults, an optional YAML file and MINIRX_* environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides: MINIRX_SERVER_ADDR and so on.
const EnvPrefix = "MINIRX"

// Config holds process configuration.
type Config struct {
	Specs    string         `mapstructure:"specs"`
	Server   ServerConfig   `mapstructure:"server"`
	Journal  JournalConfig  `mapstructure:"journal"`
	Store    StoreConfig    `mapstructure:"store"`
	Devtools DevtoolsConfig `mapstructure:"devtools"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// JournalConfig holds sqlite journal settings. An empty path disables
// recording.
type JournalConfig struct {
	Path string `mapstructure:"path"`
}

// StoreConfig holds store and extension settings.
type StoreConfig struct {
	MaxDrainSteps int  `mapstructure:"max_drain_steps"`
	UndoBuffer    int  `mapstructure:"undo_buffer"` // 0 disables undo
	Immutable     bool `mapstructure:"immutable"`
	Strict        bool `mapstructure:"strict"` // panic on mutation instead of logging
	LogActions    bool `mapstructure:"log_actions"`
	LogState      bool `mapstructure:"log_state"`
}

// DevtoolsConfig holds devtools bridge settings.
type DevtoolsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Name       string `mapstructure:"name"`
	MaxAge     int    `mapstructure:"max_age"`
	TraceLimit int    `mapstructure:"trace_limit"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Defaults applied before the file, env and flags.
const (
	DefaultAddr          = "127.0.0.1:8080"
	DefaultDevtoolsName  = "minirx"
	DefaultMaxAge        = 50
	DefaultTraceLimit    = 10
	DefaultMaxDrainSteps = 10000
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("specs", "")
	v.SetDefault("server.addr", DefaultAddr)
	v.SetDefault("journal.path", "")
	v.SetDefault("store.max_drain_steps", DefaultMaxDrainSteps)
	v.SetDefault("store.undo_buffer", 0)
	v.SetDefault("store.immutable", false)
	v.SetDefault("store.strict", false)
	v.SetDefault("store.log_actions", true)
	v.SetDefault("store.log_state", false)
	v.SetDefault("devtools.enabled", true)
	v.SetDefault("devtools.name", DefaultDevtoolsName)
	v.SetDefault("devtools.max_age", DefaultMaxAge)
	v.SetDefault("devtools.trace_limit", DefaultTraceLimit)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("tracing.enabled", false)
}

// Load resolves configuration. Precedence, highest first: changed flags
// in flags (matched by key name, e.g. "server.addr"), MINIRX_* env vars,
// the file at path, defaults. A missing path is not an error; an
// unreadable named file is.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if isKnownKey(f.Name) {
				if err := v.BindPFlag(f.Name, f); err != nil && bindErr == nil {
					bindErr = err
				}
			}
		})
		if bindErr != nil {
			return Config{}, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func isKnownKey(name string) bool {
	switch name {
	case "specs", "server.addr", "journal.path",
		"store.max_drain_steps", "store.undo_buffer", "store.immutable", "store.strict",
		"store.log_actions", "store.log_state",
		"devtools.enabled", "devtools.name", "devtools.max_age", "devtools.trace_limit",
		"metrics.enabled", "tracing.enabled":
		return true
	}
	return false
}

// Validate checks ranges that viper cannot.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Store.MaxDrainSteps <= 0 {
		return fmt.Errorf("store.max_drain_steps must be positive, got %d", c.Store.MaxDrainSteps)
	}
	if c.Store.UndoBuffer < 0 {
		return fmt.Errorf("store.undo_buffer must be non-negative, got %d", c.Store.UndoBuffer)
	}
	if c.Devtools.MaxAge < 0 || c.Devtools.TraceLimit < 0 {
		return fmt.Errorf("devtools.max_age and devtools.trace_limit must be non-negative")
	}
	return nil
}
