package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixedClock returns a clock that can be advanced by the test.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func openTestStore(t *testing.T, backend Backend, clock *fixedClock) *Store {
	t.Helper()
	s, err := Open(context.Background(), backend, WithClock(clock.Now), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_InitialisesDefaults(t *testing.T) {
	backend := NewMemoryBackend()
	clock := newFixedClock()

	s := openTestStore(t, backend, clock)

	got := s.Snapshot()
	if got.Host != "" {
		t.Errorf("Host = %q, want empty", got.Host)
	}
	if got.Status != StatusUnknown {
		t.Errorf("Status = %v, want unknown", got.Status)
	}
	if !got.LastRefresh.Equal(clock.Now()) {
		t.Errorf("LastRefresh = %v, want %v", got.LastRefresh, clock.Now())
	}
	if backend.Saves() != 1 {
		t.Errorf("backend saves = %d, want 1", backend.Saves())
	}
}

func TestOpen_KeepsExistingState(t *testing.T) {
	backend := NewMemoryBackend()
	existing := State{Host: "http://localhost:9000", Status: StatusEnabled, LastRefresh: time.Unix(100, 0)}
	_ = backend.Save(context.Background(), existing)

	s := openTestStore(t, backend, newFixedClock())

	if got := s.Snapshot(); got != existing {
		t.Errorf("Snapshot() = %+v, want %+v", got, existing)
	}
	if backend.Saves() != 1 {
		t.Errorf("Open rewrote existing state: saves = %d", backend.Saves())
	}
}

func TestOpen_NilBackend(t *testing.T) {
	if _, err := Open(context.Background(), nil); err == nil {
		t.Error("Open(nil) error = nil, want error")
	}
}

func TestStore_CommitWritesStatusAndTime(t *testing.T) {
	backend := NewMemoryBackend()
	clock := newFixedClock()
	s := openTestStore(t, backend, clock)

	clock.Advance(time.Minute)
	state, err := s.Commit(context.Background(), s.Begin(), StatusDisabled)
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if state.Status != StatusDisabled || !state.LastRefresh.Equal(clock.Now()) {
		t.Errorf("Commit() = %+v", state)
	}

	saved, _, _ := backend.Load(context.Background())
	if saved != state {
		t.Errorf("backend = %+v, want %+v", saved, state)
	}
}

func TestStore_CommitRejectsStaleSequence(t *testing.T) {
	s := openTestStore(t, NewMemoryBackend(), newFixedClock())
	ctx := context.Background()

	older := s.Begin()
	newer := s.Begin()

	if _, err := s.Commit(ctx, newer, StatusEnabled); err != nil {
		t.Fatalf("Commit(newer) error = %v", err)
	}

	_, err := s.Commit(ctx, older, StatusDisabled)
	if !errors.Is(err, ErrStaleWrite) {
		t.Fatalf("Commit(older) error = %v, want ErrStaleWrite", err)
	}
	if got := s.Snapshot().Status; got != StatusEnabled {
		t.Errorf("Status = %v, want enabled", got)
	}

	// the same sequence twice is also stale
	if _, err := s.Commit(ctx, newer, StatusDisabled); !errors.Is(err, ErrStaleWrite) {
		t.Errorf("Commit(repeat) error = %v, want ErrStaleWrite", err)
	}
}

func TestStore_SetHostKeepsStatus(t *testing.T) {
	s := openTestStore(t, NewMemoryBackend(), newFixedClock())
	ctx := context.Background()

	if _, err := s.Commit(ctx, s.Begin(), StatusEnabled); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	before := s.Snapshot()

	state, err := s.SetHost(ctx, "  http://pi.hole  ")
	if err != nil {
		t.Fatalf("SetHost() error = %v", err)
	}
	if state.Host != "http://pi.hole" {
		t.Errorf("Host = %q, want trimmed", state.Host)
	}
	if state.Status != before.Status || !state.LastRefresh.Equal(before.LastRefresh) {
		t.Errorf("SetHost changed status: %+v -> %+v", before, state)
	}
	if s.Host() != "http://pi.hole" {
		t.Errorf("Host() = %q", s.Host())
	}
}

type failingBackend struct {
	*MemoryBackend
	fail bool
}

func (f *failingBackend) Save(ctx context.Context, state State) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.MemoryBackend.Save(ctx, state)
}

func TestStore_SaveFailureLeavesStateUnchanged(t *testing.T) {
	backend := &failingBackend{MemoryBackend: NewMemoryBackend()}
	s := openTestStore(t, backend, newFixedClock())
	before := s.Snapshot()

	backend.fail = true
	if _, err := s.Commit(context.Background(), s.Begin(), StatusEnabled); err == nil {
		t.Fatal("Commit() error = nil, want error")
	}
	if _, err := s.SetHost(context.Background(), "http://x"); err == nil {
		t.Fatal("SetHost() error = nil, want error")
	}
	if got := s.Snapshot(); got != before {
		t.Errorf("Snapshot() = %+v, want %+v", got, before)
	}

	// a failed commit does not consume the slot
	backend.fail = false
	if _, err := s.Commit(context.Background(), s.Begin(), StatusEnabled); err != nil {
		t.Errorf("Commit() after recovery error = %v", err)
	}
}

func TestStore_Events(t *testing.T) {
	s := openTestStore(t, NewMemoryBackend(), newFixedClock())
	ctx := context.Background()

	ch := s.Subscribe()
	defer s.Unsubscribe(ch)

	_, _ = s.SetHost(ctx, "http://localhost:9000")
	_, _ = s.Commit(ctx, s.Begin(), StatusDisabled)
	s.ReportCheck(false, errors.New("boom"))

	want := []EventKind{EventHost, EventState, EventCheck}
	for i, kind := range want {
		select {
		case ev := <-ch:
			if ev.Kind != kind {
				t.Fatalf("event %d kind = %q, want %q", i, ev.Kind, kind)
			}
			if ev.State.Host != "http://localhost:9000" {
				t.Errorf("event %d host = %q", i, ev.State.Host)
			}
			if kind == EventCheck && (ev.Connected || ev.Error != "boom") {
				t.Errorf("check event = %+v", ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestStore_StaleCommitPublishesNothing(t *testing.T) {
	s := openTestStore(t, NewMemoryBackend(), newFixedClock())
	ctx := context.Background()

	older := s.Begin()
	_, _ = s.Commit(ctx, s.Begin(), StatusEnabled)

	ch := s.Subscribe()
	defer s.Unsubscribe(ch)

	_, _ = s.Commit(ctx, older, StatusDisabled)

	select {
	case ev := <-ch:
		t.Errorf("unexpected event %+v", ev)
	default:
	}
}

func TestStore_SlowSubscriberDoesNotBlock(t *testing.T) {
	s := openTestStore(t, NewMemoryBackend(), newFixedClock())
	ch := s.Subscribe()
	defer s.Unsubscribe(ch)

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			s.ReportCheck(true, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ReportCheck blocked on a full subscriber")
	}
	if len(ch) != subscriberBuffer {
		t.Errorf("buffered = %d, want %d", len(ch), subscriberBuffer)
	}
}

func TestStore_UnsubscribeClosesChannel(t *testing.T) {
	s := openTestStore(t, NewMemoryBackend(), newFixedClock())
	ch := s.Subscribe()

	s.Unsubscribe(ch)
	s.Unsubscribe(ch) // second call is a no-op

	if _, ok := <-ch; ok {
		t.Error("channel still open after Unsubscribe")
	}
}

func TestStore_CloseClosesSubscribers(t *testing.T) {
	s, err := Open(context.Background(), NewMemoryBackend(), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	ch := s.Subscribe()

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, ok := <-ch; ok {
		t.Error("subscriber channel still open after Close")
	}
	if _, ok := <-s.Subscribe(); ok {
		t.Error("Subscribe after Close returned an open channel")
	}
	if _, err := s.Commit(context.Background(), s.Begin(), StatusEnabled); err == nil {
		t.Error("Commit after Close error = nil")
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestStore_ReloadPublishesExternalChanges(t *testing.T) {
	backend := NewMemoryBackend()
	s := openTestStore(t, backend, newFixedClock())
	ctx := context.Background()

	ch := s.Subscribe()
	defer s.Unsubscribe(ch)

	// reload with no external change is silent
	if err := s.Reload(ctx); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}

	external := State{Host: "http://other", Status: StatusEnabled, LastRefresh: time.Unix(500, 0)}
	_ = backend.Save(ctx, external)

	if err := s.Reload(ctx); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if got := s.Snapshot(); got != external {
		t.Errorf("Snapshot() = %+v, want %+v", got, external)
	}

	var kinds []EventKind
	for len(kinds) < 2 {
		select {
		case ev := <-ch:
			kinds = append(kinds, ev.Kind)
		case <-time.After(time.Second):
			t.Fatalf("got events %v, want host and state", kinds)
		}
	}
	if kinds[0] != EventHost || kinds[1] != EventState {
		t.Errorf("events = %v, want [host state]", kinds)
	}
}

func TestStore_ConcurrentCommits(t *testing.T) {
	s := openTestStore(t, NewMemoryBackend(), newFixedClock())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := StatusEnabled
			if i%2 == 0 {
				status = StatusDisabled
			}
			_, err := s.Commit(ctx, s.Begin(), status)
			if err != nil && !errors.Is(err, ErrStaleWrite) {
				t.Errorf("Commit() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	if !s.Snapshot().Status.Known() {
		t.Error("no commit was accepted")
	}
}
