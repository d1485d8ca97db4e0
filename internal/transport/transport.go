package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const maxResponseBodySize = 1 << 20 // 1MB

// DefaultTimeout is the hard deadline applied by [Timed].
const DefaultTimeout = 10 * time.Second

// connection pooling limits; a single host is polled, so the pool stays small
const (
	defaultMaxIdleConns        = 10
	defaultMaxIdleConnsPerHost = 4
	defaultIdleConnTimeout     = 60 * time.Second
)

// Response holds the outcome of a successful (2xx) request.
type Response struct {
	// StatusCode is the HTTP status code, always in [200,300).
	StatusCode int

	// Body contains the response body, limited to 1MB.
	Body []byte

	// Latency is the total time taken for the request.
	Latency time.Duration
}

// Requester performs a single GET against url.
//
// Implementations return a nil error only for 2xx responses. Every other
// outcome is an [*Error].
type Requester interface {
	Get(ctx context.Context, url string) (Response, error)
}

// RequesterFunc adapts a function to the [Requester] interface.
type RequesterFunc func(ctx context.Context, url string) (Response, error)

// Get calls f(ctx, url).
func (f RequesterFunc) Get(ctx context.Context, url string) (Response, error) {
	return f(ctx, url)
}

// newHTTPClient returns a pooled client with no global timeout. Deadlines
// come from the request context.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        defaultMaxIdleConns,
			MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
			IdleConnTimeout:     defaultIdleConnTimeout,
		},
	}
}

// Primary is the first-choice transport: a plain GET whose lifetime is
// bounded only by the caller's context.
type Primary struct {
	httpClient *http.Client
}

// NewPrimary creates a [Primary] requester.
func NewPrimary() *Primary {
	return &Primary{httpClient: newHTTPClient()}
}

// Get performs the request. Transport failures are reported as
// [KindNetwork], non-2xx answers as [KindBadStatus].
func (p *Primary) Get(ctx context.Context, url string) (Response, error) {
	return fetch(ctx, p.httpClient, url)
}

// Close releases idle connections. Safe on a nil receiver.
func (p *Primary) Close() {
	if p == nil {
		return
	}
	closeIdle(p.httpClient)
}

// Timed is the fallback transport: a GET with a hard deadline.
type Timed struct {
	httpClient *http.Client
	timeout    time.Duration
}

// NewTimed creates a [Timed] requester. A non-positive timeout selects
// [DefaultTimeout].
func NewTimed(timeout time.Duration) *Timed {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Timed{httpClient: newHTTPClient(), timeout: timeout}
}

// Timeout returns the hard deadline applied to each request.
func (t *Timed) Timeout() time.Duration {
	return t.timeout
}

// Get performs the request. Exceeding the deadline yields [KindTimedOut],
// distinct from [KindNetwork] for other transport failures.
func (t *Timed) Get(ctx context.Context, url string) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	resp, err := fetch(ctx, t.httpClient, url)
	if err != nil && KindOf(err) == KindNetwork && isTimeout(ctx, err) {
		return Response{}, &Error{Kind: KindTimedOut, URL: url, Err: err}
	}
	return resp, err
}

// Close releases idle connections. Safe on a nil receiver.
func (t *Timed) Close() {
	if t == nil {
		return
	}
	closeIdle(t.httpClient)
}

// fetch performs a GET with a JSON Accept header and classifies the outcome.
func fetch(ctx context.Context, client *http.Client, url string) (Response, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Response{}, &Error{Kind: KindNetwork, URL: url, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return Response{}, &Error{Kind: KindNetwork, URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return Response{}, &Error{Kind: KindNetwork, URL: url, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Response{}, &Error{Kind: KindBadStatus, URL: url, StatusCode: resp.StatusCode}
	}

	return Response{
		StatusCode: resp.StatusCode,
		Body:       body,
		Latency:    time.Since(start),
	}, nil
}

// isTimeout reports whether err was caused by the request deadline.
func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func closeIdle(c *http.Client) {
	if c == nil {
		return
	}
	if tr, ok := c.Transport.(*http.Transport); ok {
		tr.CloseIdleConnections()
	}
}
