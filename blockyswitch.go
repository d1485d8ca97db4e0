package blockyswitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/blockyswitch/internal/controller"
	"github.com/jpalmerr/blockyswitch/internal/indicator"
	"github.com/jpalmerr/blockyswitch/internal/poller"
	"github.com/jpalmerr/blockyswitch/internal/reconcile"
	"github.com/jpalmerr/blockyswitch/internal/server"
	"github.com/jpalmerr/blockyswitch/internal/store"
	"github.com/jpalmerr/blockyswitch/internal/transport"
)

const (
	defaultListenAddr      = "127.0.0.1:7377"
	defaultPollInterval    = poller.DefaultInterval
	defaultFallbackTimeout = transport.DefaultTimeout
)

// Switch is the background side of blockyswitch: it owns the persisted
// state, polls the remote host, drives the indicators and serves the local
// control API that the terminal UI and CLI commands talk to.
//
// The typical lifecycle is:
//
//	sw, err := blockyswitch.New(blockyswitch.WithHost("http://pi.hole"))
//	if err != nil {
//	    slog.Error("failed to create switch", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	sw.Run(ctx) // blocks until context cancelled
type Switch struct {
	host            string
	listenAddr      string
	pollInterval    time.Duration
	fallbackTimeout time.Duration
	backend         Backend
	statePath       string
	strictFallback  bool
	logger          *slog.Logger
	indicators      []Indicator

	ready chan struct{}

	mu        sync.Mutex
	running   bool
	runCtx    context.Context
	cancelRun context.CancelFunc
	ctrl      *controller.Controller
	scheduler *poller.Scheduler
	addr      string
	store     *store.Store
}

// New creates a [Switch] with the given options.
//
// Defaults:
//   - Listen address: 127.0.0.1:7377
//   - Poll interval: 30 seconds
//   - Fallback timeout: 10 seconds
//   - State: in memory
func New(opts ...Option) (*Switch, error) {
	cfg := &switchConfig{
		listenAddr:      defaultListenAddr,
		pollInterval:    defaultPollInterval,
		fallbackTimeout: defaultFallbackTimeout,
		backend:         BackendMemory,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	indicators := append([]Indicator(nil), cfg.indicators...)
	for _, cb := range cfg.statusCallbacks {
		indicators = append(indicators, callbackIndicator(cb))
	}

	return &Switch{
		host:            cfg.host,
		listenAddr:      cfg.listenAddr,
		pollInterval:    cfg.pollInterval,
		fallbackTimeout: cfg.fallbackTimeout,
		backend:         cfg.backend,
		statePath:       cfg.statePath,
		strictFallback:  cfg.strictFallback,
		logger:          logger,
		indicators:      indicators,
		ready:           make(chan struct{}),
	}, nil
}

// PollInterval returns the configured interval between status checks.
func (sw *Switch) PollInterval() time.Duration {
	return sw.pollInterval
}

// Ready is closed once [Switch.Run] has opened the state and bound the
// control API, or when Run returns at once on an already cancelled context.
func (sw *Switch) Ready() <-chan struct{} {
	return sw.ready
}

// Addr returns the bound control API address once ready, or the configured
// one before.
func (sw *Switch) Addr() string {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.addr != "" {
		return sw.addr
	}
	return sw.listenAddr
}

// Snapshot returns the current state. It is the zero State before ready.
func (sw *Switch) Snapshot() State {
	sw.mu.Lock()
	st := sw.store
	sw.mu.Unlock()
	if st == nil {
		return State{}
	}
	return st.Snapshot()
}

// Run opens the state, restores the last badge, then polls and serves until
// ctx is cancelled or [Switch.RequestShutdown] is called.
//
// Returns nil on graceful shutdown, or an error if the state cannot be
// opened or the control API cannot bind.
func (sw *Switch) Run(ctx context.Context) error {
	sw.mu.Lock()
	if sw.running {
		sw.mu.Unlock()
		return errors.New("switch already running")
	}
	sw.running = true
	sw.mu.Unlock()

	if ctx.Err() != nil {
		close(sw.ready)
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	backend, err := sw.openBackend(ctx)
	if err != nil {
		return err
	}
	st, err := store.Open(ctx, backend, store.WithLogger(sw.logger))
	if err != nil {
		_ = backend.Close()
		return fmt.Errorf("failed to open state: %w", err)
	}
	defer func() { _ = st.Close() }()

	if sw.host != "" && sw.host != st.Host() {
		if _, err := st.SetHost(ctx, sw.host); err != nil {
			return fmt.Errorf("failed to apply host: %w", err)
		}
	}

	publisher := indicator.NewPublisher(st, sw.logger, sw.indicators...)
	restored := publisher.Restore()

	fallback := transport.NewTimed(sw.fallbackTimeout)
	reconcileOpts := []reconcile.Option{reconcile.WithLogger(sw.logger)}
	if sw.strictFallback {
		reconcileOpts = append(reconcileOpts, reconcile.WithFallbackPolicy(transport.Retryable))
	}
	reconciler := reconcile.New(transport.NewPrimary(), fallback, reconcileOpts...)

	scheduler := poller.NewScheduler(reconciler, st, publisher,
		poller.WithInterval(sw.pollInterval),
		poller.WithLogger(sw.logger),
	)

	srv := server.NewServer(server.Deps{
		Store:     st,
		Publisher: publisher,
		Checker:   reconciler,
		Fetcher:   fallback,
		Ticker:    scheduler,
	}, sw.listenAddr, sw.logger)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("failed to start control API: %w", err)
	}

	ctrl := controller.New(reconciler, controller.NewLocal(st, publisher), controller.WithLogger(sw.logger))
	if err := ctrl.Load(ctx); err != nil {
		sw.logger.Warn("failed to load state into controller", "error", err)
	}

	var watcher *store.Watcher
	if sw.backend == BackendYAML {
		watcher = sw.startWatcher(st)
	}

	var wg sync.WaitGroup

	// external edits only reach the indicators through store events
	if watcher != nil {
		events := st.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			publisher.Follow(ctx, events)
		}()
	}

	scheduler.Start(ctx)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for res := range scheduler.Results() {
			sw.logTick(res)
		}
	}()

	sw.mu.Lock()
	sw.runCtx = ctx
	sw.cancelRun = cancel
	sw.ctrl = ctrl
	sw.scheduler = scheduler
	sw.addr = srv.Addr()
	sw.store = st
	sw.mu.Unlock()
	close(sw.ready)

	sw.logger.Info("blockyswitch started",
		"host", st.Host(),
		"status", restored.Status.String(),
		"poll_interval", scheduler.Interval().String(),
		"control_api", "http://"+srv.Addr(),
	)

	<-ctx.Done()

	scheduler.Stop()
	if watcher != nil {
		watcher.Stop()
	}
	<-srv.Done()
	wg.Wait()

	sw.mu.Lock()
	sw.ctrl = nil
	sw.scheduler = nil
	sw.mu.Unlock()

	sw.logger.Info("blockyswitch stopped")
	return nil
}

// Toggle sets the remote switch from a menu action. It returns at once; the
// outcome reaches the indicators.
func (sw *Switch) Toggle(enabled bool) {
	sw.mu.Lock()
	ctrl, ctx := sw.ctrl, sw.runCtx
	sw.mu.Unlock()
	if ctrl == nil {
		return
	}
	go sw.safeGo("toggle", func() { ctrl.Toggle(ctx, enabled) })
}

// Refresh requests an immediate status check.
func (sw *Switch) Refresh() {
	sw.mu.Lock()
	scheduler := sw.scheduler
	sw.mu.Unlock()
	if scheduler != nil {
		scheduler.TickNow()
	}
}

// RequestShutdown stops a running [Switch.Run].
func (sw *Switch) RequestShutdown() {
	sw.mu.Lock()
	cancel := sw.cancelRun
	sw.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (sw *Switch) openBackend(ctx context.Context) (store.Backend, error) {
	switch sw.backend {
	case BackendYAML:
		return store.NewFileBackend(sw.statePath), nil
	case BackendSQLite:
		b, err := store.OpenSQLite(ctx, sw.statePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open state database: %w", err)
		}
		return b, nil
	default:
		return store.NewMemoryBackend(), nil
	}
}

func (sw *Switch) startWatcher(st *store.Store) *store.Watcher {
	w, err := store.NewWatcher(st, sw.statePath, sw.logger)
	if err != nil {
		sw.logger.Warn("state file watching disabled", "error", err)
		return nil
	}
	if err := w.Start(); err != nil {
		w.Stop()
		sw.logger.Warn("state file watching disabled", "error", err)
		return nil
	}
	return w
}

// logTick logs a scheduled check (DEBUG level for success to reduce noise).
func (sw *Switch) logTick(res poller.TickResult) {
	if res.Skipped {
		sw.logger.Debug("poll skipped, no host configured")
		return
	}
	attrs := []any{
		"host", res.Host,
		"seq", res.Seq,
		"stage", string(res.Check.Stage),
		"published", res.Published,
	}
	if !res.Check.OK {
		sw.logger.Warn("poll failed", append(attrs, "error", res.Check.Error())...)
		return
	}
	sw.logger.Debug("poll completed", append(attrs, "status", store.FromPointer(res.Check.Enabled).String())...)
}

// safeGo runs fn with panic recovery. Panics are logged with a correlation
// ID and do not propagate.
func (sw *Switch) safeGo(op string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			sw.logger.Error("panic in "+op,
				"correlation_id", uuid.New().String(),
				"panic", r,
			)
		}
	}()
	fn()
}

// callbackIndicator adapts a status callback to [Indicator].
func callbackIndicator(cb func(State)) Indicator {
	return indicator.SinkFunc(func(_ indicator.Badge, state store.State) error {
		cb(state)
		return nil
	})
}
