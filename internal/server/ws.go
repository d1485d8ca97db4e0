package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jpalmerr/blockyswitch/internal/reconcile"
	"github.com/jpalmerr/blockyswitch/internal/store"
	"github.com/jpalmerr/blockyswitch/internal/transport"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsSendBuffer = 64
	wsMaxMessage = 64 << 10
)

// originAllowed accepts requests without an Origin (non-browser clients) and
// browser pages served from the loopback interface.
func originAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// wsConn is one WebSocket client.
type wsConn struct {
	id     string
	conn   *websocket.Conn
	server *Server
	send   chan []byte
	done   chan struct{}

	subOnce sync.Once
	wg      sync.WaitGroup
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &wsConn{
		id:     uuid.NewString(),
		conn:   conn,
		server: s,
		send:   make(chan []byte, wsSendBuffer),
		done:   make(chan struct{}),
	}
	s.logger.Debug("websocket client connected", "client_id", c.id)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go c.writePump(ctx)
	c.readPump(ctx)

	close(c.done)
	c.wg.Wait()
	s.logger.Debug("websocket client disconnected", "client_id", c.id)
}

// readPump reads requests until the connection fails or ctx ends. Each
// request is handled in its own goroutine so a slow network call does not
// hold up the others.
func (c *wsConn) readPump(ctx context.Context) {
	defer c.conn.Close()

	c.conn.SetReadLimit(wsMaxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	// unblock ReadMessage on shutdown
	stop := context.AfterFunc(ctx, func() { _ = c.conn.Close() })
	defer stop()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Debug("websocket read error", "client_id", c.id, "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.reply(Frame{Error: fmt.Sprintf("invalid message: %v", err)})
			continue
		}

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.reply(c.server.dispatch(ctx, c, req))
		}()
	}
}

func (c *wsConn) writePump(ctx context.Context) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case <-ctx.Done():
			return
		}
	}
}

// reply queues a frame, dropping it if the client is gone or not reading.
func (c *wsConn) reply(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		c.server.logger.Error("failed to encode frame", "error", err)
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	default:
		c.server.logger.Warn("websocket send buffer full, dropping frame", "client_id", c.id)
	}
}

// subscribe forwards store events to the client until it disconnects.
func (c *wsConn) subscribe() {
	c.subOnce.Do(func() {
		ch := c.server.deps.Store.Subscribe()
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			defer c.server.deps.Store.Unsubscribe(ch)
			for {
				select {
				case ev, ok := <-ch:
					if !ok {
						return
					}
					c.reply(Frame{Success: true, Event: &ev})
				case <-c.done:
					return
				}
			}
		}()
	})
}

// dispatch runs a single request and builds its reply.
func (s *Server) dispatch(ctx context.Context, c *wsConn, req Request) Frame {
	var (
		data any
		err  error
	)

	switch req.Action {
	case ActionTestConnection:
		data, err = s.testConnection(ctx, req.URL)
	case ActionUpdateBadge:
		data, err = s.deps.Publisher.Publish(ctx, req.Enabled)
	case ActionCheckStatus:
		data, err = s.checkStatus(ctx, req.Host)
	case ActionGetState:
		data = s.deps.Store.Snapshot()
	case ActionSetHost:
		data, err = s.setHost(ctx, req.Host)
	case ActionSubscribe:
		c.subscribe()
		data = s.deps.Store.Snapshot()
	default:
		err = fmt.Errorf("unknown action %q", req.Action)
	}

	f := Frame{ID: req.ID}
	if err != nil {
		f.Error = err.Error()
		f.Kind = transport.KindOf(err).String()
		s.logger.Debug("request failed", "action", string(req.Action), "id", req.ID, "error", err)
		return f
	}

	raw, err := json.Marshal(data)
	if err != nil {
		f.Error = fmt.Sprintf("failed to encode reply: %v", err)
		return f
	}
	f.Success = true
	f.Data = raw
	return f
}

// testConnection performs a timed GET for a client whose own request could
// not get through. A parseable status response is also published.
func (s *Server) testConnection(ctx context.Context, rawURL string) (TestConnectionData, error) {
	if strings.TrimSpace(rawURL) == "" {
		return TestConnectionData{}, transport.ErrNoHost
	}

	seq := s.deps.Store.Begin()
	resp, err := s.deps.Fetcher.Get(ctx, rawURL)
	if err != nil {
		return TestConnectionData{}, err
	}

	if reconcile.IsStatusURL(rawURL) {
		if enabled, perr := reconcile.ParseStatus(resp.Body); perr == nil {
			_, pubErr := s.deps.Publisher.PublishSeq(ctx, seq, store.FromEnabled(enabled))
			if pubErr != nil && !errors.Is(pubErr, store.ErrStaleWrite) {
				s.logger.Warn("failed to publish relayed status", "url", rawURL, "error", pubErr)
			}
		}
	}

	return TestConnectionData{Status: resp.StatusCode, Body: string(resp.Body)}, nil
}

// checkStatus runs the full check for host, or the configured host when
// empty, and publishes a successful result.
func (s *Server) checkStatus(ctx context.Context, host string) (CheckStatusData, error) {
	if host == "" {
		host = s.deps.Store.Snapshot().Host
	}

	seq := s.deps.Store.Begin()
	res := s.deps.Checker.Check(ctx, host)
	if !res.OK {
		s.deps.Store.ReportCheck(false, res.Err)
		return CheckStatusData{}, res.Err
	}
	s.deps.Store.ReportCheck(true, nil)

	if _, err := s.deps.Publisher.PublishSeq(ctx, seq, store.FromPointer(res.Enabled)); err != nil && !errors.Is(err, store.ErrStaleWrite) {
		return CheckStatusData{}, err
	}
	return CheckStatusData{Enabled: res.Enabled}, nil
}

func (s *Server) setHost(ctx context.Context, host string) (store.State, error) {
	state, err := s.deps.Store.SetHost(ctx, host)
	if err != nil {
		return store.State{}, err
	}
	if s.deps.Ticker != nil {
		s.deps.Ticker.TickNow()
	}
	return state, nil
}
