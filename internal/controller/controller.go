// Package controller drives the interactive side of blockyswitch: the host
// field, the blocking toggle and the connection indicator. It has no UI of
// its own; the terminal UI, the tray menu and the one-shot CLI commands all
// render its [View].
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/blockyswitch/internal/reconcile"
	"github.com/jpalmerr/blockyswitch/internal/store"
	"github.com/jpalmerr/blockyswitch/internal/transport"
)

// DefaultRefreshInterval is the auto-refresh period used when no daemon is
// polling on the controller's behalf.
const DefaultRefreshInterval = 5 * time.Second

// Connection is the state of the connection indicator.
type Connection int

const (
	Connecting Connection = iota
	Connected
	NotConnected
)

func (c Connection) String() string {
	switch c {
	case Connected:
		return "connected"
	case NotConnected:
		return "not connected"
	default:
		return "connecting"
	}
}

// View is a snapshot of everything an interactive surface displays.
type View struct {
	Host string

	// HostValid is false when Host is set but lacks an http:// or https://
	// scheme. Such a host is still saved.
	HostValid bool

	Connection Connection

	// Status is the position of the blocking toggle.
	Status store.Status

	// Pending is true while a toggle awaits confirmation.
	Pending bool

	LastRefresh time.Time

	// Err is the message of the last failed operation, cleared on success.
	Err string
}

// Checker performs reconciliations against the remote host.
type Checker interface {
	Check(ctx context.Context, host string) reconcile.Result
	Set(ctx context.Context, host string, enabled bool) reconcile.Result
}

// Sync is where the controller reads and writes shared state: the daemon
// ([Remote]) or a store opened in-process ([Local]).
type Sync interface {
	State(ctx context.Context) (store.State, error)
	SetHost(ctx context.Context, host string) (store.State, error)
	Publish(ctx context.Context, status store.Status) (store.State, error)
}

// Subscriber is implemented by a [Sync] that can push state changes.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan store.Event, error)
}

// HostReader is implemented by a [Sync] that can read the current host
// without a round trip. Operations then target the host as it is when they
// are issued rather than the last one the view saw.
type HostReader interface {
	Host() string
}

// Sequencer is implemented by a [Sync] that orders status writes itself. A
// refresh takes its sequence number when issued, so a slower refresh cannot
// overwrite a newer result from another writer.
type Sequencer interface {
	Begin() uint64
	PublishSeq(ctx context.Context, seq uint64, status store.Status) (store.State, error)
}

// Option configures a [Controller].
type Option func(*Controller)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver registers fn to receive every new [View]. It is called
// synchronously and must not block.
func WithObserver(fn func(View)) Option {
	return func(c *Controller) {
		c.observer = fn
	}
}

// WithAutoRefresh makes [Controller.Run] refresh every d. Zero disables it,
// which is right when a daemon polls and pushes events.
func WithAutoRefresh(d time.Duration) Option {
	return func(c *Controller) {
		if d < 0 {
			d = 0
		}
		c.autoRefresh = d
	}
}

// Controller applies user intent. Status results are ordered by a sequence
// number taken when each operation is issued; a result that completes after
// a newer one has already been applied is discarded. A toggle outcome is
// always applied unless a newer toggle has been: refreshes issued while a
// toggle is in flight are not.
//
// All methods are safe for concurrent use.
type Controller struct {
	checker     Checker
	sync        Sync
	logger      *slog.Logger
	observer    func(View)
	autoRefresh time.Duration

	mu      sync.Mutex
	view    View
	issued  uint64
	applied uint64
	toggles int
}

// New creates a controller. Call [Controller.Load] before use to show the
// cached state.
func New(checker Checker, s Sync, opts ...Option) *Controller {
	c := &Controller{
		checker: checker,
		sync:    s,
		logger:  slog.Default(),
		view:    View{HostValid: true, Connection: Connecting},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// View returns the current view.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Load shows the cached state immediately, before any check has run.
func (c *Controller) Load(ctx context.Context) error {
	state, err := c.sync.State(ctx)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	c.update(func(v *View) {
		applyState(v, state)
	})
	return nil
}

// ValidHost reports whether host is empty or carries an http(s) scheme.
func ValidHost(host string) bool {
	host = strings.TrimSpace(host)
	return host == "" || strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://")
}

// SetHost persists host and refreshes against it.
func (c *Controller) SetHost(ctx context.Context, host string) (reconcile.Result, error) {
	host = strings.TrimSpace(host)
	if !ValidHost(host) {
		c.logger.Warn("host has no http(s) scheme", "host", host)
	}

	state, err := c.sync.SetHost(ctx, host)
	if err != nil {
		c.update(func(v *View) { v.Err = err.Error() })
		return reconcile.Result{}, fmt.Errorf("failed to save host: %w", err)
	}
	c.update(func(v *View) {
		v.Host = state.Host
		v.HostValid = ValidHost(state.Host)
	})

	return c.Refresh(ctx), nil
}

// Refresh checks the remote status. The connection indicator follows the
// outcome; on success the status is published, unless a toggle was in
// flight or a newer result has already been applied.
func (c *Controller) Refresh(ctx context.Context) reconcile.Result {
	var duringToggle bool
	seq, host := c.begin(func(v *View) {
		duringToggle = c.toggles > 0
		v.Connection = Connecting
	})
	writeSeq := c.beginWrite()

	res := c.checker.Check(ctx, host)

	if !res.OK {
		c.update(func(v *View) {
			v.Connection = NotConnected
			v.Err = res.Error()
		})
		c.logger.Debug("refresh failed", "host", host, "error", res.Error())
		return res
	}

	status := store.FromPointer(res.Enabled)
	if duringToggle || !c.acceptRefresh(seq) {
		c.update(func(v *View) { v.Connection = Connected })
		return res
	}
	c.update(func(v *View) {
		v.Connection = Connected
		v.Err = ""
		if !v.Pending {
			v.Status = status
		}
	})
	c.publish(ctx, writeSeq, status)
	return res
}

// Toggle sets the remote switch to want. The toggle shows want at once; on
// total failure, or when no host is set, it is reverted to the opposite of
// want and that is published.
func (c *Controller) Toggle(ctx context.Context, want bool) reconcile.Result {
	wanted := store.FromEnabled(want)
	seq, host := c.begin(func(v *View) {
		c.toggles++
		v.Status = wanted
		v.Pending = true
	})

	if host == "" {
		final := wanted.Opposite()
		if c.finishToggle(seq, final, transport.ErrNoHost.Error()) {
			c.publish(ctx, 0, final)
		}
		return reconcile.Result{Err: transport.ErrNoHost}
	}

	res := c.checker.Set(ctx, host, want)

	final := wanted
	if !res.OK {
		final = wanted.Opposite()
		c.logger.Warn("toggle failed, reverting",
			"host", host,
			"wanted", wanted.String(),
			"error", res.Error(),
		)
	}

	// the outcome of a toggle is published under a sequence number taken
	// now, so a check issued while it was in flight cannot override it
	if c.finishToggle(seq, final, res.Error()) {
		c.publish(ctx, 0, final)
	}
	return res
}

// Apply merges a pushed store event into the view.
func (c *Controller) Apply(ev store.Event) {
	c.update(func(v *View) {
		switch ev.Kind {
		case store.EventState, store.EventHost:
			applyState(v, ev.State)
		case store.EventCheck:
			if ev.Connected {
				v.Connection = Connected
				v.Err = ""
			} else {
				v.Connection = NotConnected
				v.Err = ev.Error
			}
		}
	})
}

// Run keeps the view current until ctx is done: it follows pushed events
// when the [Sync] supports them, and refreshes on the auto-refresh period
// when one is set. The first refresh runs immediately.
func (c *Controller) Run(ctx context.Context) error {
	var events <-chan store.Event
	if sub, ok := c.sync.(Subscriber); ok {
		ch, err := sub.Subscribe(ctx)
		if err != nil {
			c.logger.Warn("state events unavailable", "error", err)
		} else {
			events = ch
		}
	}

	var tick <-chan time.Time
	if c.autoRefresh > 0 {
		ticker := time.NewTicker(c.autoRefresh)
		defer ticker.Stop()
		tick = ticker.C
	}

	c.safeRefresh(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				c.logger.Warn("state event stream closed")
				events = nil
				if tick == nil {
					return errors.New("controller: event stream closed")
				}
				continue
			}
			c.Apply(ev)
		case <-tick:
			c.safeRefresh(ctx)
		}
	}
}

func (c *Controller) safeRefresh(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic in refresh",
				"correlation_id", uuid.New().String(),
				"panic", r,
			)
		}
	}()
	c.Refresh(ctx)
}

// begin issues a sequence number and applies the in-flight view change. The
// host is re-read when the sync supports it.
func (c *Controller) begin(fn func(*View)) (uint64, string) {
	hr, fresh := c.sync.(HostReader)
	var current string
	if fresh {
		current = hr.Host()
	}

	c.mu.Lock()
	c.issued++
	seq := c.issued
	if fresh {
		c.view.Host = current
		c.view.HostValid = ValidHost(current)
	}
	fn(&c.view)
	host := c.view.Host
	v := c.view
	c.mu.Unlock()

	c.emit(v)
	return seq, host
}

// beginWrite takes a store sequence number when the sync orders writes, and
// 0 otherwise.
func (c *Controller) beginWrite() uint64 {
	if sq, ok := c.sync.(Sequencer); ok {
		return sq.Begin()
	}
	return 0
}

// acceptRefresh records seq as applied unless a toggle is in flight or a
// newer result already was.
func (c *Controller) acceptRefresh(seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.toggles > 0 || seq <= c.applied {
		c.logger.Debug("discarding stale refresh", "seq", seq, "applied", c.applied, "toggles", c.toggles)
		return false
	}
	c.applied = seq
	return true
}

// finishToggle settles a toggle. It reports false when a newer toggle has
// already been applied, in which case final is dropped.
func (c *Controller) finishToggle(seq uint64, final store.Status, errMsg string) bool {
	c.mu.Lock()
	c.toggles--
	c.view.Pending = c.toggles > 0
	accepted := seq > c.applied
	if accepted {
		c.applied = seq
		c.view.Status = final
		c.view.Err = errMsg
	}
	v := c.view
	c.mu.Unlock()

	if !accepted {
		c.logger.Debug("discarding superseded toggle", "seq", seq)
	}
	c.emit(v)
	return accepted
}

// publish commits status under seq, or under a fresh sequence number when
// seq is 0 or the sync does not order writes. A stale write resyncs the view
// from the sync.
func (c *Controller) publish(ctx context.Context, seq uint64, status store.Status) {
	var (
		state store.State
		err   error
	)
	if sq, ok := c.sync.(Sequencer); ok && seq != 0 {
		state, err = sq.PublishSeq(ctx, seq, status)
	} else {
		state, err = c.sync.Publish(ctx, status)
	}
	if errors.Is(err, store.ErrStaleWrite) {
		if current, serr := c.sync.State(ctx); serr == nil {
			c.update(func(v *View) { applyState(v, current) })
		}
		return
	}
	if err != nil {
		c.logger.Warn("failed to publish status", "status", status.String(), "error", err)
		return
	}
	c.update(func(v *View) {
		v.LastRefresh = state.LastRefresh
	})
}

func (c *Controller) update(fn func(*View)) {
	c.mu.Lock()
	fn(&c.view)
	v := c.view
	c.mu.Unlock()

	c.emit(v)
}

func (c *Controller) emit(v View) {
	if c.observer != nil {
		c.observer(v)
	}
}

func applyState(v *View, state store.State) {
	v.Host = state.Host
	v.HostValid = ValidHost(state.Host)
	v.LastRefresh = state.LastRefresh
	if !v.Pending {
		v.Status = state.Status
	}
}
