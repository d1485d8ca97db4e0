package blockyswitch

import (
	"errors"
	"log/slog"
	"strings"
	"time"
)

// Backend selects where the state is persisted.
type Backend string

const (
	// BackendMemory keeps the state in memory only.
	BackendMemory Backend = "memory"

	// BackendYAML writes the state to a YAML file, replaced atomically on
	// every save. External edits to the file are picked up while running.
	BackendYAML Backend = "yaml"

	// BackendSQLite writes the state to a SQLite database.
	BackendSQLite Backend = "sqlite"
)

// switchConfig holds mutable state during Switch construction.
type switchConfig struct {
	host            string
	listenAddr      string
	pollInterval    time.Duration
	fallbackTimeout time.Duration
	backend         Backend
	statePath       string
	strictFallback  bool
	logger          *slog.Logger
	indicators      []Indicator
	statusCallbacks []func(State)
}

// Option is a function that configures a [Switch] during construction.
// Options return an error if validation fails.
type Option func(*switchConfig) error

// WithHost sets the remote host on start, replacing the persisted one. An
// empty host leaves the persisted host alone.
//
// Example:
//
//	sw, err := blockyswitch.New(blockyswitch.WithHost("http://pi.hole"))
func WithHost(host string) Option {
	return func(cfg *switchConfig) error {
		cfg.host = strings.TrimSpace(host)
		return nil
	}
}

// WithListenAddr sets the address of the local control API. Defaults to
// 127.0.0.1:7377. Use port 0 to pick a free port.
//
// Returns an error if addr is empty.
func WithListenAddr(addr string) Option {
	return func(cfg *switchConfig) error {
		if strings.TrimSpace(addr) == "" {
			return errors.New("listen address cannot be empty")
		}
		cfg.listenAddr = addr
		return nil
	}
}

// WithPollInterval sets how often the remote status is checked. Defaults to
// 30 seconds. Intervals under one second are raised to one second.
//
// Returns an error if the duration is zero or negative.
func WithPollInterval(d time.Duration) Option {
	return func(cfg *switchConfig) error {
		if d <= 0 {
			return errors.New("poll interval must be positive")
		}
		cfg.pollInterval = d
		return nil
	}
}

// WithFallbackTimeout sets the timeout of the fallback transport. Defaults
// to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithFallbackTimeout(d time.Duration) Option {
	return func(cfg *switchConfig) error {
		if d <= 0 {
			return errors.New("fallback timeout must be positive")
		}
		cfg.fallbackTimeout = d
		return nil
	}
}

// WithState selects the state backend and its file. path is ignored for
// [BackendMemory], which is the default.
//
// Example:
//
//	sw, err := blockyswitch.New(
//	    blockyswitch.WithState(blockyswitch.BackendSQLite, "/var/lib/blockyswitch/state.db"),
//	)
//
// Returns an error for an unknown backend or a missing path.
func WithState(backend Backend, path string) Option {
	return func(cfg *switchConfig) error {
		switch backend {
		case BackendMemory:
		case BackendYAML, BackendSQLite:
			if strings.TrimSpace(path) == "" {
				return errors.New("state path cannot be empty")
			}
		default:
			return errors.New("unknown state backend: " + string(backend))
		}
		cfg.backend = backend
		cfg.statePath = path
		return nil
	}
}

// WithStrictFallback skips the fallback transport when the primary failed
// for a reason another transport cannot fix, such as an unparseable body.
// By default the fallback is tried after any primary failure.
func WithStrictFallback() Option {
	return func(cfg *switchConfig) error {
		cfg.strictFallback = true
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *switchConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithIndicator adds a badge display. May be called more than once.
//
// Nil indicators are silently ignored.
func WithIndicator(ind Indicator) Option {
	return func(cfg *switchConfig) error {
		if ind == nil {
			return nil
		}
		cfg.indicators = append(cfg.indicators, ind)
		return nil
	}
}

// WithStatusCallback registers a function called with the state every time
// the badge is shown: on start, and after every accepted status write.
//
// Callbacks must be non-blocking. Panics are recovered and logged.
//
// Example:
//
//	sw, err := blockyswitch.New(
//	    blockyswitch.WithStatusCallback(func(s blockyswitch.State) {
//	        if s.Status == blockyswitch.StatusDisabled {
//	            log.Printf("blocking is off on %s", s.Host)
//	        }
//	    }),
//	)
//
// Nil callbacks are silently ignored.
func WithStatusCallback(cb func(State)) Option {
	return func(cfg *switchConfig) error {
		if cb == nil {
			return nil
		}
		cfg.statusCallbacks = append(cfg.statusCallbacks, cb)
		return nil
	}
}
