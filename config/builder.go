package config

import (
	"log/slog"

	"github.com/jpalmerr/blockyswitch"
)

// SwitchOptions converts the configuration into [blockyswitch.Option] values.
//
// Indicators are not included; the caller decides how to show the badge
// based on [Config.Indicator]. The logger is appended when non-nil.
func SwitchOptions(cfg *Config, logger *slog.Logger) []blockyswitch.Option {
	opts := []blockyswitch.Option{
		blockyswitch.WithHost(cfg.Host),
		blockyswitch.WithListenAddr(cfg.Listen),
		blockyswitch.WithPollInterval(cfg.PollInterval.Duration()),
		blockyswitch.WithFallbackTimeout(cfg.FallbackTimeout.Duration()),
		blockyswitch.WithState(StateBackend(cfg.State.Backend), cfg.State.Path),
	}
	if cfg.StrictFallback {
		opts = append(opts, blockyswitch.WithStrictFallback())
	}
	if logger != nil {
		opts = append(opts, blockyswitch.WithLogger(logger))
	}
	return opts
}

// StateBackend maps a state.backend value to a [blockyswitch.Backend].
// Unknown names map to the in-memory backend.
func StateBackend(name string) blockyswitch.Backend {
	switch name {
	case BackendYAML:
		return blockyswitch.BackendYAML
	case BackendSQLite:
		return blockyswitch.BackendSQLite
	default:
		return blockyswitch.BackendMemory
	}
}
