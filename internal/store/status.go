package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Status is the tri-state belief about the remote blocking switch.
//
// The zero value is [StatusUnknown]. On the wire and on disk a Status is
// encoded as true, false or null.
type Status int8

const (
	// StatusUnknown is the initial value, before anything was confirmed.
	StatusUnknown Status = iota

	// StatusEnabled means blocking is on.
	StatusEnabled

	// StatusDisabled means blocking is off.
	StatusDisabled
)

// FromEnabled maps a remote boolean onto a settled status.
func FromEnabled(enabled bool) Status {
	if enabled {
		return StatusEnabled
	}
	return StatusDisabled
}

// FromPointer maps an optional boolean; nil is [StatusUnknown].
func FromPointer(enabled *bool) Status {
	if enabled == nil {
		return StatusUnknown
	}
	return FromEnabled(*enabled)
}

// Enabled returns the status as an optional boolean.
func (s Status) Enabled() *bool {
	switch s {
	case StatusEnabled:
		v := true
		return &v
	case StatusDisabled:
		v := false
		return &v
	default:
		return nil
	}
}

// Known reports whether the status is settled.
func (s Status) Known() bool {
	return s == StatusEnabled || s == StatusDisabled
}

// Opposite returns the other settled status. Unknown stays Unknown.
func (s Status) Opposite() Status {
	switch s {
	case StatusEnabled:
		return StatusDisabled
	case StatusDisabled:
		return StatusEnabled
	default:
		return StatusUnknown
	}
}

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusEnabled:
		return "enabled"
	case StatusDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the status as true, false or null.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Enabled())
}

// UnmarshalJSON decodes true, false or null.
func (s *Status) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*s = StatusUnknown
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("status must be true, false or null: %w", err)
	}
	*s = FromEnabled(b)
	return nil
}

// MarshalYAML encodes the status as true, false or null.
func (s Status) MarshalYAML() (interface{}, error) {
	if p := s.Enabled(); p != nil {
		return *p, nil
	}
	return nil, nil
}

// UnmarshalYAML decodes true or false. A null node never reaches this
// method; yaml.v3 leaves the zero value, which is [StatusUnknown].
func (s *Status) UnmarshalYAML(node *yaml.Node) error {
	var b bool
	if err := node.Decode(&b); err != nil {
		return fmt.Errorf("status must be true, false or null: %w", err)
	}
	*s = FromEnabled(b)
	return nil
}

// State is everything the store persists.
type State struct {
	// Host is the base URL of the blocking service. Empty means unconfigured.
	Host string `json:"host" yaml:"host"`

	// Status is the last known blocking status.
	Status Status `json:"lastBlockingStatus" yaml:"lastBlockingStatus"`

	// LastRefresh is when Status was last written, from any source.
	LastRefresh time.Time `json:"lastRefreshTime" yaml:"lastRefreshTime"`
}

// EventKind identifies what an [Event] reports.
type EventKind string

const (
	// EventState reports a committed status write.
	EventState EventKind = "state"

	// EventHost reports a host change.
	EventHost EventKind = "host"

	// EventCheck reports the outcome of a status check. Nothing is
	// persisted for it; it drives connection indicators.
	EventCheck EventKind = "check"
)

// Event is published to subscribers whenever the store changes or a status
// check completes.
type Event struct {
	Kind EventKind `json:"kind"`

	// State is the store snapshot after the change.
	State State `json:"state"`

	// Connected is the check outcome, set for [EventCheck] only.
	Connected bool `json:"connected,omitempty"`

	// Error describes a failed check.
	Error string `json:"error,omitempty"`

	// At is when the event was produced.
	At time.Time `json:"at"`
}
