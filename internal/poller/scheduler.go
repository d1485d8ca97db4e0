package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/blockyswitch/internal/reconcile"
	"github.com/jpalmerr/blockyswitch/internal/store"
)

// DefaultInterval is the time between ticks.
const DefaultInterval = 30 * time.Second

// MinInterval is the floor applied to the configured interval.
const MinInterval = time.Second

// Checker fetches the remote status for a host.
type Checker interface {
	Check(ctx context.Context, host string) reconcile.Result
}

// State is the part of the store a tick reads and reports to.
type State interface {
	Host() string
	Begin() uint64
	ReportCheck(ok bool, err error)
}

// Publisher commits and displays a status under a sequence number.
type Publisher interface {
	PublishSeq(ctx context.Context, seq uint64, status store.Status) (store.State, error)
}

// TickResult describes one tick.
type TickResult struct {
	// At is when the tick started.
	At time.Time

	// Host is the host that was checked, empty when skipped.
	Host string

	// Skipped is true when no host is configured.
	Skipped bool

	// Seq is the write sequence number taken for the check.
	Seq uint64

	// Check is the reconciliation outcome.
	Check reconcile.Result

	// Published is true when the result was committed and shown.
	Published bool

	// Err is a publish failure, a stale write, or a recovered panic.
	Err error
}

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithInterval sets the tick interval. Values below [MinInterval] are raised.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithClock sets the time source for [TickResult.At].
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Scheduler runs status checks for the configured host at a fixed cadence.
//
// All lifecycle methods (Start, Stop, TickNow) are safe for concurrent use.
type Scheduler struct {
	checker   Checker
	state     State
	publisher Publisher
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger

	results chan TickResult
	trigger chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	closeOnce sync.Once
}

// NewScheduler creates a [Scheduler]. It does nothing until
// [Scheduler.Start]; [Scheduler.Tick] may be called directly at any time.
func NewScheduler(checker Checker, state State, publisher Publisher, opts ...Option) *Scheduler {
	s := &Scheduler{
		checker:   checker,
		state:     state,
		publisher: publisher,
		interval:  DefaultInterval,
		now:       time.Now,
		logger:    slog.Default(),
		results:   make(chan TickResult, 16),
		trigger:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.interval < MinInterval {
		s.interval = MinInterval
	}
	return s
}

// Interval returns the effective tick interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Results returns a channel receiving the outcome of every scheduled tick.
//
// Results are dropped when the buffer is full, so reading is optional. The
// channel is closed when the scheduler stops.
func (s *Scheduler) Results() <-chan TickResult {
	return s.results
}

// Start begins ticking in a background goroutine. The first tick runs
// immediately.
//
// If ctx is nil, context.Background() is used. Start is idempotent, and a
// no-op after Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	runCtx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.closeOnce.Do(func() { close(s.results) })

		s.emit(s.safeTick(runCtx))

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.emit(s.safeTick(runCtx))
			case <-s.trigger:
				s.emit(s.safeTick(runCtx))
				ticker.Reset(s.interval)
			}
		}
	}()
}

// TickNow asks the running scheduler for an extra tick, for example after
// the host changed. It never blocks; requests made while one is pending are
// merged.
func (s *Scheduler) TickNow() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Stop halts the scheduler and waits for an in-flight tick to finish.
//
// Stop is idempotent and safe to call before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()

	s.closeOnce.Do(func() { close(s.results) })
}

// Tick performs one reconciliation pass: read the host, skip if empty,
// check it, and publish the mapped status on success. On failure the stored
// status is left untouched.
func (s *Scheduler) Tick(ctx context.Context) TickResult {
	res := TickResult{At: s.now()}

	host := s.state.Host()
	if host == "" {
		res.Skipped = true
		s.logger.Debug("tick skipped, no host configured")
		return res
	}
	res.Host = host

	// taken before the request so a slower, older check cannot overwrite a
	// newer toggle
	res.Seq = s.state.Begin()
	res.Check = s.checker.Check(ctx, host)

	if !res.Check.OK {
		s.state.ReportCheck(false, res.Check.Err)
		s.logger.Warn("status check failed",
			"host", host,
			"kind", res.Check.Err.Kind.String(),
			"error", res.Check.Error(),
		)
		return res
	}
	s.state.ReportCheck(true, nil)

	status := store.FromPointer(res.Check.Enabled)
	if _, err := s.publisher.PublishSeq(ctx, res.Seq, status); err != nil {
		res.Err = err
		if errors.Is(err, store.ErrStaleWrite) {
			s.logger.Debug("tick result superseded", "host", host, "seq", res.Seq)
		} else {
			s.logger.Error("failed to publish status", "host", host, "error", err)
		}
		return res
	}
	res.Published = true

	s.logger.Debug("tick complete", "host", host, "status", status.String(), "seq", res.Seq, "stage", string(res.Check.Stage))
	return res
}

// safeTick runs Tick with panic recovery. A panic is logged with a
// correlation ID and reported in the result; the loop keeps running.
func (s *Scheduler) safeTick(ctx context.Context) (res TickResult) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			s.logger.Error("tick panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			res.Err = fmt.Errorf("tick panic (correlation_id: %s)", correlationID)
		}
	}()
	return s.Tick(ctx)
}

func (s *Scheduler) emit(res TickResult) {
	select {
	case s.results <- res:
	default:
		// nobody is reading
	}
}
