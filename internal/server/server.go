package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jpalmerr/blockyswitch/internal/reconcile"
	"github.com/jpalmerr/blockyswitch/internal/store"
	"github.com/jpalmerr/blockyswitch/internal/transport"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write.
	// Must be <= shutdownTimeout so slow clients cannot hold up shutdown.
	sseWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second
)

// Store is the state the server exposes and mutates.
type Store interface {
	Snapshot() store.State
	SetHost(ctx context.Context, host string) (store.State, error)
	Begin() uint64
	ReportCheck(ok bool, err error)
	Subscribe() <-chan store.Event
	Unsubscribe(ch <-chan store.Event)
}

// Publisher commits and displays a status.
type Publisher interface {
	Publish(ctx context.Context, status store.Status) (store.State, error)
	PublishSeq(ctx context.Context, seq uint64, status store.Status) (store.State, error)
}

// Checker runs the two-stage status check.
type Checker interface {
	Check(ctx context.Context, host string) reconcile.Result
}

// Ticker schedules an out-of-band status check.
type Ticker interface {
	TickNow()
}

// Deps are the components a [Server] dispatches to. Ticker may be nil.
type Deps struct {
	Store     Store
	Publisher Publisher
	Checker   Checker

	// Fetcher performs testConnection requests on behalf of clients.
	Fetcher transport.Requester

	Ticker Ticker
}

// Server is the daemon's local control API.
//
// Endpoints:
//   - GET /api/state: current state as JSON
//   - GET /api/sse: Server-Sent Events stream of store events
//   - GET /api/ws: WebSocket request/response channel with event push
//
// The server shuts down gracefully when the context passed to Start is
// cancelled.
type Server struct {
	deps       Deps
	addr       string
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	httpServer *http.Server

	mu      sync.Mutex
	boundTo string
	done    chan struct{}
}

// NewServer creates a [Server] that will listen on addr, for example
// "127.0.0.1:7377". It is not started until [Server.Start] is called.
func NewServer(deps Deps, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		deps:   deps,
		addr:   addr,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(r.Header.Get("Origin"))
			},
		},
		done: make(chan struct{}),
	}
}

// Handler returns the HTTP handler serving every endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/sse", s.handleSSE)
	mux.HandleFunc("/api/ws", s.handleWS)
	return mux
}

// Start begins serving in a background goroutine.
//
// Start returns once the listener is bound, or an error if binding fails.
// Cancelling ctx starts a graceful shutdown with a 5-second timeout; [Server.Done]
// is closed when it completes.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.boundTo = ln.Addr().String()
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts derive from ctx so long-lived handlers (SSE,
		// WebSocket) end on shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		defer close(s.done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	s.logger.Info("control API listening", "addr", s.Addr())
	return nil
}

// Addr returns the bound address once started, or the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.boundTo != "" {
		return s.boundTo
	}
	return s.addr
}

// Done is closed after a graceful shutdown completes.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// handleState returns the current state as JSON.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")

	if err := json.NewEncoder(w).Encode(s.deps.Store.Snapshot()); err != nil {
		s.logger.Error("failed to encode state response", "error", err)
	}
}

// handleSSE streams store events via Server-Sent Events.
//
// Writes carry a deadline so a slow or vanished client cannot block the
// handler past shutdown.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.deps.Store.Subscribe()
	defer s.deps.Store.Unsubscribe(ch)

	// current state first so a new client needs no separate fetch
	initial := store.Event{Kind: store.EventState, State: s.deps.Store.Snapshot(), At: time.Now()}
	if data, err := json.Marshal(initial); err == nil {
		if err := writeAndFlush(data); err != nil {
			return
		}
	}

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			// fires on client disconnect and on server shutdown
			return
		}
	}
}
