package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/blockyswitch/config"
	"github.com/jpalmerr/blockyswitch/internal/client"
	"github.com/jpalmerr/blockyswitch/internal/controller"
	"github.com/jpalmerr/blockyswitch/internal/indicator"
	"github.com/jpalmerr/blockyswitch/internal/reconcile"
	"github.com/jpalmerr/blockyswitch/internal/store"
	"github.com/jpalmerr/blockyswitch/internal/transport"
)

// loadConfig reads --config, or the default file when the flag is unset. A
// missing default file yields the defaults; a missing explicit file is an
// error. --log-level overrides the file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	var (
		cfg *config.Config
		err error
	)
	if path == "" {
		path, err = config.DefaultPath()
		if err != nil {
			return nil, err
		}
		cfg, err = config.LoadOrDefault(path)
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		if _, err := config.ParseLevel(level); err != nil {
			return nil, err
		}
		cfg.LogLevel = level
	}
	return cfg, nil
}

// newJSONLogger creates the daemon's JSON logger on stderr.
func newJSONLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// newTextLogger creates a text logger for one-shot commands.
func newTextLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// newFileLogger logs to ~/.blockyswitch/<name>, falling back to discarding
// output. The terminal UI owns the screen, so it cannot log to stderr.
func newFileLogger(name string, level slog.Level) (*slog.Logger, func()) {
	discard := newTextLogger(io.Discard, level)

	dir, err := config.Dir()
	if err != nil {
		return discard, func() {}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return discard, func() {}
	}
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return discard, func() {}
	}
	return newTextLogger(f, level), func() { _ = f.Close() }
}

// session is a controller bound either to a running daemon or to a store
// opened in-process.
type session struct {
	ctrl   *controller.Controller
	remote bool
	close  func()
}

// openSession connects to the daemon at cfg.Listen when it is running. The
// host is then reached directly first and through the daemon as the
// fallback. Without a daemon the state is opened locally and the fallback
// is a second direct request with a timeout.
func openSession(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...controller.Option) (*session, error) {
	opts = append([]controller.Option{controller.WithLogger(logger)}, opts...)

	c := client.New(cfg.Listen, client.WithLogger(logger))
	if c.Reachable(ctx) {
		err := c.Connect(ctx)
		if err == nil {
			rec := reconcile.New(transport.NewPrimary(), client.NewRelay(c), reconcileOptions(cfg, logger)...)
			return &session{
				ctrl:   controller.New(rec, controller.NewRemote(c), opts...),
				remote: true,
				close:  func() { _ = c.Close() },
			}, nil
		}
		logger.Warn("daemon reachable but channel failed, running standalone", "error", err)
	}
	_ = c.Close()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	publisher := indicator.NewPublisher(st, logger, indicator.NewLogSink(logger))
	rec := reconcile.New(
		transport.NewPrimary(),
		transport.NewTimed(cfg.FallbackTimeout.Duration()),
		reconcileOptions(cfg, logger)...,
	)
	opts = append(opts, controller.WithAutoRefresh(cfg.UIRefreshInterval.Duration()))

	return &session{
		ctrl:  controller.New(rec, controller.NewLocal(st, publisher), opts...),
		close: func() { _ = st.Close() },
	}, nil
}

func reconcileOptions(cfg *config.Config, logger *slog.Logger) []reconcile.Option {
	opts := []reconcile.Option{reconcile.WithLogger(logger)}
	if cfg.StrictFallback {
		opts = append(opts, reconcile.WithFallbackPolicy(transport.Retryable))
	}
	return opts
}

// openStore opens the configured state and applies the configured host.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*store.Store, error) {
	var backend store.Backend
	switch cfg.State.Backend {
	case config.BackendSQLite:
		b, err := store.OpenSQLite(ctx, cfg.State.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open state database: %w", err)
		}
		backend = b
	default:
		backend = store.NewFileBackend(cfg.State.Path)
	}

	st, err := store.Open(ctx, backend, store.WithLogger(logger))
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to open state: %w", err)
	}

	if cfg.Host != "" && cfg.Host != st.Host() {
		if _, err := st.SetHost(ctx, cfg.Host); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("failed to apply host: %w", err)
		}
	}
	return st, nil
}
