package blockyswitch

import (
	"github.com/jpalmerr/blockyswitch/internal/indicator"
	"github.com/jpalmerr/blockyswitch/internal/store"
)

// Status is the cached belief about the remote blocking switch.
//
// The zero value is [StatusUnknown], the state before any successful check.
// Status encodes to JSON and YAML as true, false or null.
type Status = store.Status

const (
	// StatusUnknown means no check has succeeded yet.
	StatusUnknown = store.StatusUnknown

	// StatusEnabled means the remote service reported blocking on.
	StatusEnabled = store.StatusEnabled

	// StatusDisabled means the remote service reported blocking off.
	StatusDisabled = store.StatusDisabled
)

// State is the persisted record: the host, the last status and when that
// status was written.
type State = store.State

// Badge is the label an indicator shows for a status.
type Badge = indicator.Badge

// Indicator displays badges. The console and tray indicators implement it.
type Indicator = indicator.Sink

// IndicatorFunc adapts a function to [Indicator].
type IndicatorFunc = indicator.SinkFunc
