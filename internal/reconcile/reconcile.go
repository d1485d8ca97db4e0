// Package reconcile determines and changes the remote blocking status using a
// two-stage request protocol.
//
// Every operation tries the primary [transport.Requester] first and, when
// that fails for any reason, repeats the same request through the fallback.
// Only when both fail is a failure reported, carrying the fallback's error.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jpalmerr/blockyswitch/internal/transport"
)

// Action names a remote endpoint under /api/blocking/.
type Action string

const (
	ActionStatus  Action = "status"
	ActionEnable  Action = "enable"
	ActionDisable Action = "disable"
)

// Stage identifies which transport produced a result.
type Stage string

const (
	StagePrimary  Stage = "primary"
	StageFallback Stage = "fallback"
)

// Result is the normalised outcome of an operation.
type Result struct {
	// OK is true when either stage succeeded.
	OK bool `json:"ok"`

	// Enabled is the remote state on success. For enable/disable it is the
	// state that was requested.
	Enabled *bool `json:"enabled"`

	// Err is the surfaced failure when OK is false.
	Err *transport.Error `json:"-"`

	// Stage is the transport that produced the final outcome.
	Stage Stage `json:"stage,omitempty"`
}

// Error returns the failure message, or "" on success.
func (r Result) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Option configures a [Reconciler].
type Option func(*Reconciler)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithFallbackPolicy decides, given the primary's error, whether the
// fallback is attempted. The default attempts it for every error.
// [transport.Retryable] is a stricter policy that skips it for bodies that
// could not be parsed.
func WithFallbackPolicy(policy func(error) bool) Option {
	return func(r *Reconciler) {
		if policy != nil {
			r.shouldFallback = policy
		}
	}
}

// Reconciler runs the two-stage protocol against a host.
type Reconciler struct {
	primary        transport.Requester
	fallback       transport.Requester
	logger         *slog.Logger
	shouldFallback func(error) bool
}

// New creates a Reconciler. fallback may be nil, in which case primary
// failures are surfaced directly.
func New(primary, fallback transport.Requester, opts ...Option) *Reconciler {
	r := &Reconciler{
		primary:        primary,
		fallback:       fallback,
		logger:         slog.Default(),
		shouldFallback: func(error) bool { return true },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// URL builds the endpoint URL for action on host.
func URL(host string, action Action) string {
	return strings.TrimRight(strings.TrimSpace(host), "/") + "/api/blocking/" + string(action)
}

// IsStatusURL reports whether url addresses the status endpoint.
func IsStatusURL(url string) bool {
	return strings.HasSuffix(strings.TrimRight(url, "/"), "/api/blocking/"+string(ActionStatus))
}

type statusBody struct {
	Enabled *bool `json:"enabled"`
}

// ParseStatus extracts the enabled flag from a status response body.
func ParseStatus(body []byte) (bool, error) {
	var sb statusBody
	if err := json.Unmarshal(body, &sb); err != nil {
		return false, fmt.Errorf("invalid status body: %w", err)
	}
	if sb.Enabled == nil {
		return false, errors.New(`status body has no boolean "enabled" field`)
	}
	return *sb.Enabled, nil
}

// Check fetches the current remote status.
//
// An empty host fails with [transport.KindNoHost] without any request.
func (r *Reconciler) Check(ctx context.Context, host string) Result {
	return r.run(ctx, host, ActionStatus, func(resp transport.Response, url string) (bool, error) {
		enabled, err := ParseStatus(resp.Body)
		if err != nil {
			return false, &transport.Error{Kind: transport.KindBadResponse, URL: url, Err: err}
		}
		return enabled, nil
	})
}

// Enable asks the remote service to turn blocking on. Success is judged by
// HTTP status alone.
func (r *Reconciler) Enable(ctx context.Context, host string) Result {
	return r.run(ctx, host, ActionEnable, constant(true))
}

// Disable asks the remote service to turn blocking off.
func (r *Reconciler) Disable(ctx context.Context, host string) Result {
	return r.run(ctx, host, ActionDisable, constant(false))
}

// Set calls [Reconciler.Enable] or [Reconciler.Disable].
func (r *Reconciler) Set(ctx context.Context, host string, enabled bool) Result {
	if enabled {
		return r.Enable(ctx, host)
	}
	return r.Disable(ctx, host)
}

func constant(v bool) func(transport.Response, string) (bool, error) {
	return func(transport.Response, string) (bool, error) { return v, nil }
}

// run performs one stage after the other. interpret turns a 2xx response
// into the enabled flag or a failure.
func (r *Reconciler) run(ctx context.Context, host string, action Action, interpret func(transport.Response, string) (bool, error)) Result {
	if strings.TrimSpace(host) == "" {
		return Result{Err: transport.ErrNoHost}
	}
	url := URL(host, action)

	enabled, primaryErr := r.attempt(ctx, r.primary, url, interpret)
	if primaryErr == nil {
		return success(enabled, StagePrimary)
	}

	if r.fallback == nil || !r.shouldFallback(primaryErr) {
		r.logger.Debug("primary request failed, no fallback", "action", string(action), "url", url, "kind", transport.KindOf(primaryErr).String(), "error", primaryErr)
		return failure(url, primaryErr, StagePrimary)
	}

	r.logger.Debug("primary request failed, trying fallback", "action", string(action), "url", url, "kind", transport.KindOf(primaryErr).String(), "error", primaryErr)

	enabled, fallbackErr := r.attempt(ctx, r.fallback, url, interpret)
	if fallbackErr == nil {
		return success(enabled, StageFallback)
	}

	r.logger.Warn("request failed",
		"action", string(action),
		"url", url,
		"kind", transport.KindOf(fallbackErr).String(),
		"primary_error", primaryErr,
		"error", fallbackErr,
	)
	return failure(url, fallbackErr, StageFallback)
}

func (r *Reconciler) attempt(ctx context.Context, req transport.Requester, url string, interpret func(transport.Response, string) (bool, error)) (bool, error) {
	if req == nil {
		return false, &transport.Error{Kind: transport.KindNetwork, URL: url, Err: errors.New("no transport configured")}
	}
	resp, err := req.Get(ctx, url)
	if err != nil {
		return false, err
	}
	return interpret(resp, url)
}

func success(enabled bool, stage Stage) Result {
	return Result{OK: true, Enabled: &enabled, Stage: stage}
}

func failure(url string, err error, stage Stage) Result {
	var te *transport.Error
	if !errors.As(err, &te) {
		te = &transport.Error{Kind: transport.KindNetwork, URL: url, Err: err}
	}
	return Result{Err: te, Stage: stage}
}
