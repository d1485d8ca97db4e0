package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStaleWrite is returned by [Store.Commit] when a newer write has already
// been accepted.
var ErrStaleWrite = errors.New("stale write discarded")

// subscriberBuffer is the per-subscriber channel capacity.
const subscriberBuffer = 100

// Option configures a [Store].
type Option func(*Store)

// WithClock sets the time source used for refresh timestamps and events.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Store is the single owner of the persisted [State].
//
// Reads are served from memory. Every write goes through the backend before
// the in-memory copy changes, and subscribers are notified after the write
// succeeds. Status writes carry a sequence number from [Store.Begin]; a write
// older than the last accepted one is rejected with [ErrStaleWrite].
type Store struct {
	backend Backend
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.RWMutex
	state   State
	lastSeq uint64
	closed  bool

	seq atomic.Uint64

	subMu       sync.RWMutex
	subscribers map[chan Event]struct{}
}

// Open loads the state from backend, initialising it on first run with an
// empty host, an unknown status and the current time.
func Open(ctx context.Context, backend Backend, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, errors.New("store: backend is required")
	}

	s := &Store{
		backend:     backend,
		logger:      slog.Default(),
		now:         time.Now,
		subscribers: make(map[chan Event]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	state, found, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: load: %w", err)
	}
	if !found {
		state = State{Status: StatusUnknown, LastRefresh: s.now()}
		if err := backend.Save(ctx, state); err != nil {
			return nil, fmt.Errorf("store: initialise: %w", err)
		}
		s.logger.Info("initialised state", "host", state.Host)
	}
	s.state = state

	return s, nil
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Host returns the configured host, or "" when unconfigured.
func (s *Store) Host() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Host
}

// SetHost persists a new host. The cached status is left as is; callers
// trigger a fresh check themselves.
func (s *Store) SetHost(ctx context.Context, host string) (State, error) {
	host = strings.TrimSpace(host)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return State{}, errors.New("store: closed")
	}
	next := s.state
	next.Host = host
	if err := s.backend.Save(ctx, next); err != nil {
		s.mu.Unlock()
		return State{}, fmt.Errorf("store: save host: %w", err)
	}
	s.state = next
	s.mu.Unlock()

	s.logger.Info("host updated", "host", host)
	s.notify(Event{Kind: EventHost, State: next, At: s.now()})
	return next, nil
}

// Begin allocates the next write sequence number. Take it when the request
// whose result will be committed is issued, not when it completes.
func (s *Store) Begin() uint64 {
	return s.seq.Add(1)
}

// Commit writes status together with the current time, provided seq is newer
// than every previously accepted write.
func (s *Store) Commit(ctx context.Context, seq uint64, status Status) (State, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return State{}, errors.New("store: closed")
	}
	if seq <= s.lastSeq {
		last := s.lastSeq
		s.mu.Unlock()
		s.logger.Debug("discarding stale status write", "seq", seq, "last_seq", last, "status", status.String())
		return State{}, ErrStaleWrite
	}

	next := s.state
	next.Status = status
	next.LastRefresh = s.now()
	if err := s.backend.Save(ctx, next); err != nil {
		s.mu.Unlock()
		return State{}, fmt.Errorf("store: save status: %w", err)
	}
	s.state = next
	s.lastSeq = seq
	s.mu.Unlock()

	s.notify(Event{Kind: EventState, State: next, At: next.LastRefresh})
	return next, nil
}

// ReportCheck tells subscribers the outcome of a status check. Nothing is
// persisted.
func (s *Store) ReportCheck(ok bool, checkErr error) {
	ev := Event{Kind: EventCheck, State: s.Snapshot(), Connected: ok, At: s.now()}
	if checkErr != nil {
		ev.Error = checkErr.Error()
	}
	s.notify(ev)
}

// Reload re-reads the backend and publishes whatever changed. It picks up
// edits made to the state outside this process.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	loaded, found, err := s.backend.Load(ctx)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("store: reload: %w", err)
	}
	if !found {
		s.mu.Unlock()
		return nil
	}
	prev := s.state
	s.state = loaded
	s.mu.Unlock()

	at := s.now()
	if loaded.Host != prev.Host {
		s.logger.Info("host changed externally", "host", loaded.Host)
		s.notify(Event{Kind: EventHost, State: loaded, At: at})
	}
	if loaded.Status != prev.Status || !loaded.LastRefresh.Equal(prev.LastRefresh) {
		s.logger.Info("status changed externally", "status", loaded.Status.String())
		s.notify(Event{Kind: EventState, State: loaded, At: at})
	}
	return nil
}

// Subscribe returns a channel receiving every subsequent [Event].
//
// The channel is buffered; events are dropped for a subscriber whose buffer
// is full. Call [Store.Unsubscribe] when done.
func (s *Store) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		close(ch)
		return ch
	}

	s.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel. Safe to call
// more than once.
func (s *Store) Unsubscribe(ch <-chan Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for subCh := range s.subscribers {
		if subCh == ch {
			delete(s.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// Close closes every subscription and the backend.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.subMu.Lock()
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
	s.subMu.Unlock()

	return s.backend.Close()
}

func (s *Store) notify(ev Event) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// slow subscriber, drop
		}
	}
}
