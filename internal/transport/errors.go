package transport

import (
	"errors"
	"fmt"
)

// Kind classifies a failed request.
type Kind string

const (
	// KindNoHost means no host is configured. Never retried.
	KindNoHost Kind = "no_host"

	// KindBadStatus means the server answered outside [200,300).
	KindBadStatus Kind = "bad_status"

	// KindNetwork means the request never produced an HTTP response
	// (connection refused, DNS failure, reset, blocked by policy).
	KindNetwork Kind = "network_or_cors"

	// KindTimedOut means the [Timed] requester hit its hard deadline.
	KindTimedOut Kind = "timed_out"

	// KindBadResponse means a 2xx body could not be interpreted.
	KindBadResponse Kind = "bad_response"
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	return string(k)
}

// ParseKind maps a wire name back to a [Kind]. Unknown names map to
// [KindNetwork], the most conservative classification.
func ParseKind(s string) Kind {
	switch k := Kind(s); k {
	case KindNoHost, KindBadStatus, KindNetwork, KindTimedOut, KindBadResponse:
		return k
	default:
		return KindNetwork
	}
}

// ErrNoHost is returned when an operation needs a host and none is set.
var ErrNoHost = &Error{Kind: KindNoHost, Err: errors.New("no host provided")}

// Error describes a failed request.
type Error struct {
	// Kind is the failure class.
	Kind Kind

	// URL is the requested URL, empty for [KindNoHost].
	URL string

	// StatusCode is set for [KindBadStatus].
	StatusCode int

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNoHost:
		return "no host provided"
	case KindBadStatus:
		return fmt.Sprintf("server returned status %d for %s", e.StatusCode, e.URL)
	case KindTimedOut:
		return fmt.Sprintf("request to %s timed out", e.URL)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.URL, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.URL)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality so errors.Is(err, ErrNoHost) works for any
// no-host error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.URL == "" && t.StatusCode == 0
}

// KindOf returns the [Kind] of err, or the empty kind if err is not (and
// does not wrap) an [*Error].
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

// Retryable reports whether trying another transport against the same URL
// could change the outcome. Missing hosts and unparseable bodies are not
// connectivity problems.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindNoHost, KindBadResponse:
		return false
	default:
		return err != nil
	}
}
