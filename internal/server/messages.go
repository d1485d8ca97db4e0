package server

import (
	"encoding/json"

	"github.com/jpalmerr/blockyswitch/internal/store"
)

// Action names a request on the WebSocket channel.
type Action string

const (
	// ActionTestConnection performs a timed GET on the caller's behalf.
	ActionTestConnection Action = "testConnection"

	// ActionUpdateBadge publishes a status (true, false or null).
	ActionUpdateBadge Action = "updateBadge"

	// ActionCheckStatus runs a full status check and publishes on success.
	ActionCheckStatus Action = "checkStatus"

	// ActionGetState returns the current state.
	ActionGetState Action = "getState"

	// ActionSetHost persists a new host and schedules a check.
	ActionSetHost Action = "setHost"

	// ActionSubscribe starts pushing store events on the connection.
	ActionSubscribe Action = "subscribe"
)

// Request is a client-to-daemon message.
type Request struct {
	ID     string `json:"id"`
	Action Action `json:"action"`

	// URL is used by testConnection.
	URL string `json:"url,omitempty"`

	// Host is used by checkStatus and setHost. For checkStatus an empty host
	// means the configured one.
	Host string `json:"host,omitempty"`

	// Enabled is used by updateBadge; null clears the badge.
	Enabled store.Status `json:"enabled"`
}

// Frame is a daemon-to-client message: either a reply to a [Request] or,
// when Event is set, a pushed store event.
type Frame struct {
	ID      string          `json:"id,omitempty"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`

	// Kind is the transport error kind of a failed request, if any.
	Kind string `json:"kind,omitempty"`

	Event *store.Event `json:"event,omitempty"`
}

// TestConnectionData is the reply payload of testConnection.
type TestConnectionData struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

// CheckStatusData is the reply payload of checkStatus.
type CheckStatusData struct {
	Enabled *bool `json:"enabled"`
}
