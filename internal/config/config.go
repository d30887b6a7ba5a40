// Package config loads simkernel settings from defaults, an optional TOML
// file and SIMKERNEL_* environment variables, in that order of precedence.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "SIMKERNEL_"

// Config holds kernel and tooling settings.
type Config struct {
	TicksPerHour float64 `env:"TICKS_PER_HOUR"`
	PoolSoftMax  int     `env:"POOL_SOFT_MAX"`
	MaxEvents    int     `env:"MAX_EVENTS"`
	LogLevel     string  `env:"LOG_LEVEL"`
	TraceDB      string  `env:"TRACE_DB"`
	OTelEndpoint string  `env:"OTEL_ENDPOINT"`
	ServiceName  string  `env:"SERVICE_NAME"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		TicksPerHour: 3_600_000,
		PoolSoftMax:  100,
		MaxEvents:    0,
		LogLevel:     "info",
		ServiceName:  "simkernel",
	}
}

// config.toml key mapping to Config fields.
type fileConfig struct {
	TicksPerHour float64 `toml:"ticks_per_hour"`
	PoolSoftMax  int     `toml:"pool_soft_max"`
	MaxEvents    int     `toml:"max_events"`
	LogLevel     string  `toml:"log_level"`
	TraceDB      string  `toml:"trace_db"`
	OTelEndpoint string  `toml:"otel_endpoint"`
	ServiceName  string  `toml:"service_name"`
}

// Load builds a Config from defaults, the TOML file at path (skipped when
// path is empty) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := overlayFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// overlayFile applies only the keys the file defines.
func overlayFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("ticks_per_hour") {
		cfg.TicksPerHour = raw.TicksPerHour
	}
	if meta.IsDefined("pool_soft_max") {
		cfg.PoolSoftMax = raw.PoolSoftMax
	}
	if meta.IsDefined("max_events") {
		cfg.MaxEvents = raw.MaxEvents
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("trace_db") {
		cfg.TraceDB = strings.TrimSpace(raw.TraceDB)
	}
	if meta.IsDefined("otel_endpoint") {
		cfg.OTelEndpoint = strings.TrimSpace(raw.OTelEndpoint)
	}
	if meta.IsDefined("service_name") {
		cfg.ServiceName = strings.TrimSpace(raw.ServiceName)
	}
	return nil
}

// Validate rejects settings the kernel cannot run with.
func (c Config) Validate() error {
	if !(c.TicksPerHour > 0) {
		return fmt.Errorf("config: ticks_per_hour must be > 0, got %g", c.TicksPerHour)
	}
	if c.PoolSoftMax < 0 {
		return fmt.Errorf("config: pool_soft_max must be >= 0, got %d", c.PoolSoftMax)
	}
	if c.MaxEvents < 0 {
		return fmt.Errorf("config: max_events must be >= 0, got %d", c.MaxEvents)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses LogLevel ("debug", "info", "warn", "error").
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: invalid log_level %q", c.LogLevel)
	}
	return level, nil
}
