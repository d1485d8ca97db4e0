// Package client talks to a running daemon over its local control API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jpalmerr/blockyswitch/internal/server"
	"github.com/jpalmerr/blockyswitch/internal/store"
)

const (
	websocketHandshakeTimeout = 5 * time.Second
	writeTimeout              = 5 * time.Second
	eventBuffer               = 100
)

// ErrNotConnected is returned when the daemon connection is down.
var ErrNotConnected = errors.New("client: not connected to daemon")

// Error is a failure reported by the daemon for one request.
type Error struct {
	Action  server.Action
	Message string
	Kind    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("daemon %s: %s", e.Action, e.Message)
}

// Option configures a [Client].
type Option func(*Client)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client is a connection to the daemon. Requests are multiplexed over a
// single WebSocket and matched to replies by ID.
//
// All methods are safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan server.Frame
	events  chan store.Event
	closed  bool

	writeMu sync.Mutex
}

// New creates a client for the daemon listening on addr ("host:port" or a
// full http URL). No connection is made until [Client.Connect].
func New(addr string, opts ...Option) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}

	c := &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: 2 * time.Second},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: websocketHandshakeTimeout,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the daemon's HTTP base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Reachable reports whether the daemon answers on /api/state.
func (c *Client) Reachable(ctx context.Context) bool {
	_, err := c.FetchState(ctx)
	return err == nil
}

// FetchState reads the state over plain HTTP, without a WebSocket.
func (c *Client) FetchState(ctx context.Context) (store.State, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/state", nil)
	if err != nil {
		return store.State{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return store.State{}, fmt.Errorf("daemon unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return store.State{}, fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}

	var state store.State
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&state); err != nil {
		return store.State{}, fmt.Errorf("invalid state response: %w", err)
	}
	return state, nil
}

// Connect opens the WebSocket. It is a no-op when already connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.New("client: closed")
	}
	if c.conn != nil {
		return nil
	}

	wsURL, err := websocketURL(c.baseURL)
	if err != nil {
		return err
	}

	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to daemon at %s: %w", c.baseURL, err)
	}

	c.conn = conn
	c.pending = make(map[string]chan server.Frame)
	c.events = make(chan store.Event, eventBuffer)

	go c.readLoop(conn, c.events)
	return nil
}

// Close closes the connection. Pending requests fail with [ErrNotConnected].
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	return conn.Close()
}

// readLoop delivers replies and events until the connection fails, then
// fails every pending request and closes the event channel.
func (c *Client) readLoop(conn *websocket.Conn, events chan store.Event) {
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
			for id, ch := range c.pending {
				close(ch)
				delete(c.pending, id)
			}
		}
		c.mu.Unlock()
		close(events)
	}()

	for {
		var f server.Frame
		if err := conn.ReadJSON(&f); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, io.EOF) {
				c.logger.Debug("daemon connection lost", "error", err)
			}
			return
		}

		if f.Event != nil {
			select {
			case events <- *f.Event:
			default:
				// slow consumer
			}
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[f.ID]
		if ok {
			delete(c.pending, f.ID)
		}
		c.mu.Unlock()

		if ok {
			ch <- f
		}
	}
}

// call sends one request and waits for its reply.
func (c *Client) call(ctx context.Context, req server.Request, out any) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}

	req.ID = uuid.NewString()
	reply := make(chan server.Frame, 1)

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.pending[req.ID] = reply
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(req.ID)
		return fmt.Errorf("failed to send %s: %w", req.Action, err)
	}

	select {
	case f, ok := <-reply:
		if !ok {
			return ErrNotConnected
		}
		if !f.Success {
			return &Error{Action: req.Action, Message: f.Error, Kind: f.Kind}
		}
		if out != nil && len(f.Data) > 0 {
			if err := json.Unmarshal(f.Data, out); err != nil {
				return fmt.Errorf("invalid %s reply: %w", req.Action, err)
			}
		}
		return nil
	case <-ctx.Done():
		c.forget(req.ID)
		return ctx.Err()
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// State returns the daemon's current state.
func (c *Client) State(ctx context.Context) (store.State, error) {
	var state store.State
	err := c.call(ctx, server.Request{Action: server.ActionGetState}, &state)
	return state, err
}

// SetHost persists host in the daemon, which then checks it.
func (c *Client) SetHost(ctx context.Context, host string) (store.State, error) {
	var state store.State
	err := c.call(ctx, server.Request{Action: server.ActionSetHost, Host: host}, &state)
	return state, err
}

// UpdateBadge publishes status through the daemon.
func (c *Client) UpdateBadge(ctx context.Context, status store.Status) (store.State, error) {
	var state store.State
	err := c.call(ctx, server.Request{Action: server.ActionUpdateBadge, Enabled: status}, &state)
	return state, err
}

// CheckStatus asks the daemon to run a full check. An empty host means the
// daemon's configured host.
func (c *Client) CheckStatus(ctx context.Context, host string) (*bool, error) {
	var data server.CheckStatusData
	if err := c.call(ctx, server.Request{Action: server.ActionCheckStatus, Host: host}, &data); err != nil {
		return nil, err
	}
	return data.Enabled, nil
}

// TestConnection asks the daemon to GET url on this process's behalf.
func (c *Client) TestConnection(ctx context.Context, rawURL string) (server.TestConnectionData, error) {
	var data server.TestConnectionData
	err := c.call(ctx, server.Request{Action: server.ActionTestConnection, URL: rawURL}, &data)
	return data, err
}

// Subscribe asks the daemon to push store events. The returned channel is
// closed when the connection drops.
func (c *Client) Subscribe(ctx context.Context) (<-chan store.Event, error) {
	if err := c.call(ctx, server.Request{Action: server.ActionSubscribe}, nil); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.events == nil {
		return nil, ErrNotConnected
	}
	return c.events, nil
}

func websocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid daemon address %q: %w", base, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/ws"
	return u.String(), nil
}
