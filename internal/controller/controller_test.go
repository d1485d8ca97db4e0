package controller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jpalmerr/blockyswitch/internal/indicator"
	"github.com/jpalmerr/blockyswitch/internal/poller"
	"github.com/jpalmerr/blockyswitch/internal/reconcile"
	"github.com/jpalmerr/blockyswitch/internal/store"
	"github.com/jpalmerr/blockyswitch/internal/transport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ok(enabled bool) reconcile.Result {
	return reconcile.Result{OK: true, Enabled: &enabled, Stage: reconcile.StagePrimary}
}

func failed() reconcile.Result {
	return reconcile.Result{Err: &transport.Error{Kind: transport.KindNetwork, Err: errors.New("unreachable")}}
}

type fakeChecker struct {
	check  func(host string) reconcile.Result
	set    func(host string, enabled bool) reconcile.Result
	checks atomic.Int32
	sets   atomic.Int32
}

func (f *fakeChecker) Check(ctx context.Context, host string) reconcile.Result {
	f.checks.Add(1)
	return f.check(host)
}

func (f *fakeChecker) Set(ctx context.Context, host string, enabled bool) reconcile.Result {
	f.sets.Add(1)
	return f.set(host, enabled)
}

// recorder collects every emitted view.
type recorder struct {
	mu    sync.Mutex
	views []View
}

func (r *recorder) observe(v View) {
	r.mu.Lock()
	r.views = append(r.views, v)
	r.mu.Unlock()
}

func (r *recorder) all() []View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]View(nil), r.views...)
}

type fixture struct {
	store     *store.Store
	publisher *indicator.Publisher
	checker   *fakeChecker
	ctrl    *Controller
	views   *recorder
}

func newFixture(t *testing.T, host string, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, store.NewMemoryBackend(), store.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if host != "" {
		if _, err := st.SetHost(ctx, host); err != nil {
			t.Fatal(err)
		}
	}

	f := &fixture{
		store:     st,
		publisher: indicator.NewPublisher(st, testLogger()),
		checker: &fakeChecker{
			check: func(string) reconcile.Result { return ok(true) },
			set:   func(_ string, enabled bool) reconcile.Result { return ok(enabled) },
		},
		views: &recorder{},
	}
	opts = append([]Option{WithLogger(testLogger()), WithObserver(f.views.observe)}, opts...)
	f.ctrl = New(f.checker, NewLocal(st, f.publisher), opts...)
	if err := f.ctrl.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return f
}

func TestLoad_ShowsCachedState(t *testing.T) {
	f := newFixture(t, "http://pi.hole")
	_, _ = f.store.Commit(context.Background(), f.store.Begin(), store.StatusDisabled)

	if err := f.ctrl.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	v := f.ctrl.View()
	if v.Host != "http://pi.hole" || v.Status != store.StatusDisabled || v.Connection != Connecting {
		t.Errorf("View() = %+v", v)
	}
	if f.checker.checks.Load() != 0 {
		t.Error("Load() issued a check")
	}
}

func TestRefresh_Success(t *testing.T) {
	f := newFixture(t, "http://pi.hole")
	f.checker.check = func(string) reconcile.Result { return ok(false) }

	res := f.ctrl.Refresh(context.Background())
	if !res.OK {
		t.Fatalf("Refresh() = %+v", res)
	}

	v := f.ctrl.View()
	if v.Connection != Connected || v.Status != store.StatusDisabled || v.Err != "" {
		t.Errorf("View() = %+v", v)
	}
	if f.store.Snapshot().Status != store.StatusDisabled {
		t.Errorf("stored status = %v, want disabled", f.store.Snapshot().Status)
	}

	views := f.views.all()
	if views[len(views)-3].Connection != Connecting {
		t.Errorf("connection indicator did not pass through connecting: %+v", views)
	}
}

func TestRefresh_FailureKeepsStatus(t *testing.T) {
	f := newFixture(t, "http://pi.hole")
	_, _ = f.store.Commit(context.Background(), f.store.Begin(), store.StatusEnabled)
	_ = f.ctrl.Load(context.Background())
	f.checker.check = func(string) reconcile.Result { return failed() }

	f.ctrl.Refresh(context.Background())

	v := f.ctrl.View()
	if v.Connection != NotConnected || v.Status != store.StatusEnabled || v.Err == "" {
		t.Errorf("View() = %+v", v)
	}
	if f.store.Snapshot().Status != store.StatusEnabled {
		t.Errorf("stored status = %v, want unchanged", f.store.Snapshot().Status)
	}
}

func TestToggle_Optimistic(t *testing.T) {
	f := newFixture(t, "http://pi.hole")
	release := make(chan struct{})
	f.checker.set = func(_ string, enabled bool) reconcile.Result {
		<-release
		return ok(enabled)
	}

	done := make(chan reconcile.Result)
	go func() { done <- f.ctrl.Toggle(context.Background(), true) }()

	deadline := time.After(2 * time.Second)
	for !f.ctrl.View().Pending {
		select {
		case <-deadline:
			t.Fatal("toggle never became pending")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	if v := f.ctrl.View(); v.Status != store.StatusEnabled {
		t.Errorf("pending View().Status = %v, want enabled", v.Status)
	}

	close(release)
	if res := <-done; !res.OK {
		t.Fatalf("Toggle() = %+v", res)
	}
	if v := f.ctrl.View(); v.Pending || v.Status != store.StatusEnabled {
		t.Errorf("View() = %+v", v)
	}
	if f.store.Snapshot().Status != store.StatusEnabled {
		t.Errorf("stored status = %v", f.store.Snapshot().Status)
	}
}

func TestToggle_PessimisticRevert(t *testing.T) {
	f := newFixture(t, "http://pi.hole")
	f.checker.set = func(string, bool) reconcile.Result { return failed() }

	res := f.ctrl.Toggle(context.Background(), true)
	if res.OK {
		t.Fatal("Toggle() succeeded")
	}

	v := f.ctrl.View()
	if v.Status != store.StatusDisabled || v.Pending {
		t.Errorf("View() = %+v, want reverted to disabled", v)
	}
	if got := f.store.Snapshot().Status; got != store.StatusDisabled {
		t.Errorf("stored status = %v, want disabled", got)
	}
}

func TestToggle_NoHostRevertsWithoutRequest(t *testing.T) {
	f := newFixture(t, "")

	res := f.ctrl.Toggle(context.Background(), false)
	if transport.KindOf(res.Err) != transport.KindNoHost {
		t.Errorf("Toggle() error kind = %q, want no_host", transport.KindOf(res.Err))
	}
	if f.checker.sets.Load() != 0 {
		t.Error("Toggle() without host issued a request")
	}
	if v := f.ctrl.View(); v.Status != store.StatusEnabled || v.Pending {
		t.Errorf("View() = %+v, want reverted to enabled", v)
	}
	if got := f.store.Snapshot().Status; got != store.StatusEnabled {
		t.Errorf("stored status = %v, want the reverted status published", got)
	}
}

// TestToggle_TargetsHostSetBehindTheView changes the host in the store
// without telling the controller.
func TestToggle_TargetsHostSetBehindTheView(t *testing.T) {
	f := newFixture(t, "")
	var target string
	f.checker.set = func(host string, enabled bool) reconcile.Result {
		target = host
		return ok(enabled)
	}

	_, _ = f.store.SetHost(context.Background(), "http://pi.hole")

	if res := f.ctrl.Toggle(context.Background(), true); !res.OK {
		t.Fatalf("Toggle() = %+v", res)
	}
	if target != "http://pi.hole" {
		t.Errorf("toggled host = %q, want http://pi.hole", target)
	}
	if v := f.ctrl.View(); v.Host != "http://pi.hole" {
		t.Errorf("View().Host = %q", v.Host)
	}
}

// TestStaleRefreshDiscarded issues a refresh that completes after a newer
// toggle: the toggle wins.
func TestStaleRefreshDiscarded(t *testing.T) {
	f := newFixture(t, "http://pi.hole")

	started := make(chan struct{})
	release := make(chan struct{})
	f.checker.check = func(string) reconcile.Result {
		close(started)
		<-release
		return ok(false)
	}

	done := make(chan struct{})
	go func() {
		f.ctrl.Refresh(context.Background())
		close(done)
	}()
	<-started

	f.ctrl.Toggle(context.Background(), true)
	close(release)
	<-done

	if v := f.ctrl.View(); v.Status != store.StatusEnabled || v.Connection != Connected {
		t.Errorf("View() = %+v, want enabled and connected", v)
	}
	if got := f.store.Snapshot().Status; got != store.StatusEnabled {
		t.Errorf("stored status = %v, want enabled", got)
	}
}

// TestToggle_WinsOverRefreshIssuedDuringIt issues a refresh while a toggle
// is in flight. The toggle outcome, success or revert, is what ends up shown
// and stored.
func TestToggle_WinsOverRefreshIssuedDuringIt(t *testing.T) {
	tests := []struct {
		name    string
		refresh reconcile.Result
		set     reconcile.Result
		want    store.Status
	}{
		{"success", ok(false), ok(true), store.StatusEnabled},
		{"failure reverts", ok(true), failed(), store.StatusDisabled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "http://pi.hole")
			started := make(chan struct{})
			release := make(chan struct{})
			f.checker.set = func(string, bool) reconcile.Result {
				close(started)
				<-release
				return tt.set
			}
			f.checker.check = func(string) reconcile.Result { return tt.refresh }

			done := make(chan reconcile.Result)
			go func() { done <- f.ctrl.Toggle(context.Background(), true) }()
			<-started

			f.ctrl.Refresh(context.Background())
			close(release)
			<-done

			v := f.ctrl.View()
			if v.Status != tt.want || v.Pending {
				t.Errorf("View() = %+v, want %v", v, tt.want)
			}
			if got := f.store.Snapshot().Status; got != tt.want {
				t.Errorf("stored status = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestRefresh_OlderThanTickDiscarded issues a refresh, lets a scheduler tick
// issued after it complete first, then completes the refresh.
func TestRefresh_OlderThanTickDiscarded(t *testing.T) {
	f := newFixture(t, "http://pi.hole")
	started := make(chan struct{})
	release := make(chan struct{})
	f.checker.check = func(string) reconcile.Result {
		close(started)
		<-release
		return ok(false)
	}

	done := make(chan struct{})
	go func() {
		f.ctrl.Refresh(context.Background())
		close(done)
	}()
	<-started

	tickChecker := &fakeChecker{check: func(string) reconcile.Result { return ok(true) }}
	scheduler := poller.NewScheduler(tickChecker, f.store, f.publisher, poller.WithLogger(testLogger()))
	if res := scheduler.Tick(context.Background()); !res.Published {
		t.Fatalf("Tick() = %+v, want published", res)
	}

	close(release)
	<-done

	if got := f.store.Snapshot().Status; got != store.StatusEnabled {
		t.Errorf("stored status = %v, want the tick's enabled", got)
	}
	if v := f.ctrl.View(); v.Status != store.StatusEnabled {
		t.Errorf("View().Status = %v, want enabled", v.Status)
	}
}

func TestSetHost(t *testing.T) {
	tests := []struct {
		host      string
		wantValid bool
	}{
		{"http://pi.hole", true},
		{"  https://10.0.0.2  ", true},
		{"pi.hole", false},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			f := newFixture(t, "")
			var checked string
			f.checker.check = func(host string) reconcile.Result {
				checked = host
				return ok(true)
			}

			if _, err := f.ctrl.SetHost(context.Background(), tt.host); err != nil {
				t.Fatalf("SetHost() error = %v", err)
			}
			v := f.ctrl.View()
			if v.HostValid != tt.wantValid {
				t.Errorf("HostValid = %v, want %v", v.HostValid, tt.wantValid)
			}
			if f.store.Host() != v.Host || checked != v.Host {
				t.Errorf("store host = %q, checked = %q, view host = %q", f.store.Host(), checked, v.Host)
			}
		})
	}
}

func TestApply(t *testing.T) {
	f := newFixture(t, "")
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	f.ctrl.Apply(store.Event{Kind: store.EventState, State: store.State{Host: "http://h", Status: store.StatusDisabled, LastRefresh: now}})
	f.ctrl.Apply(store.Event{Kind: store.EventCheck, Connected: false, Error: "boom"})

	v := f.ctrl.View()
	if v.Host != "http://h" || v.Status != store.StatusDisabled || !v.LastRefresh.Equal(now) {
		t.Errorf("View() = %+v", v)
	}
	if v.Connection != NotConnected || v.Err != "boom" {
		t.Errorf("Connection = %v, Err = %q", v.Connection, v.Err)
	}
}

func TestRun_FollowsEventsAndRefreshes(t *testing.T) {
	f := newFixture(t, "http://pi.hole", WithAutoRefresh(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- f.ctrl.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for f.checker.checks.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("checks = %d, want auto refresh", f.checker.checks.Load())
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	_, _ = f.store.SetHost(context.Background(), "http://other")
	for f.ctrl.View().Host != "http://other" {
		select {
		case <-deadline:
			t.Fatal("host event not applied")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return")
	}
}

func TestRun_PanicInRefreshRecovered(t *testing.T) {
	f := newFixture(t, "http://pi.hole")
	f.checker.check = func(string) reconcile.Result { panic("boom") }

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := f.ctrl.Run(ctx); err != nil {
		t.Errorf("Run() error = %v", err)
	}
}

// TestToggle_RevertAgainstFailingHost runs the real reconciler against a
// host whose /enable endpoint fails on both transports.
func TestToggle_RevertAgainstFailingHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/blocking/enable" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"enabled":false}`))
	}))
	defer srv.Close()

	st, err := store.Open(context.Background(), store.NewMemoryBackend(), store.WithLogger(testLogger()))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	_, _ = st.SetHost(context.Background(), srv.URL)

	r := reconcile.New(transport.NewPrimary(), transport.NewTimed(time.Second), reconcile.WithLogger(testLogger()))
	ctrl := New(r, NewLocal(st, indicator.NewPublisher(st, testLogger())), WithLogger(testLogger()))
	_ = ctrl.Load(context.Background())

	ctrl.Toggle(context.Background(), true)

	if got := st.Snapshot().Status; got != store.StatusDisabled {
		t.Errorf("stored status = %v, want disabled", got)
	}
}

func TestConnectionString(t *testing.T) {
	tests := map[Connection]string{
		Connecting:   "connecting",
		Connected:    "connected",
		NotConnected: "not connected",
	}
	for c, want := range tests {
		if got := c.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", c, got, want)
		}
	}
}
