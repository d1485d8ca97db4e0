// Package indicator renders the blocking status as a badge and keeps every
// badge consumer in step with the store.
//
// A [Publisher] writes the status through the store first. Only an accepted
// write reaches the sinks, so a sink never shows a status the store rejected.
package indicator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/jpalmerr/blockyswitch/internal/store"
)

// Badge colours.
const (
	ColorOn         = "#4ade80"
	ColorOff        = "#f87171"
	ColorForeground = "#FFFFFF"
)

// Badge is the small label shown next to the application's icon.
type Badge struct {
	// Text is "ON", "OFF" or empty when the status is unknown.
	Text string `json:"text"`

	// Background is a hex colour, empty when Text is empty.
	Background string `json:"background"`

	// Foreground is always white.
	Foreground string `json:"foreground"`
}

// Empty reports whether the badge is cleared.
func (b Badge) Empty() bool {
	return b.Text == ""
}

// For returns the badge for status.
func For(status store.Status) Badge {
	switch status {
	case store.StatusEnabled:
		return Badge{Text: "ON", Background: ColorOn, Foreground: ColorForeground}
	case store.StatusDisabled:
		return Badge{Text: "OFF", Background: ColorOff, Foreground: ColorForeground}
	default:
		return Badge{Foreground: ColorForeground}
	}
}

// Sink displays a badge somewhere.
type Sink interface {
	Show(badge Badge, state store.State) error
}

// SinkFunc adapts a function to [Sink].
type SinkFunc func(badge Badge, state store.State) error

// Show calls f.
func (f SinkFunc) Show(badge Badge, state store.State) error {
	return f(badge, state)
}

// Committer is the part of the store the publisher writes through.
type Committer interface {
	Begin() uint64
	Commit(ctx context.Context, seq uint64, status store.Status) (store.State, error)
	Snapshot() store.State
}

// Publisher maps a status to a badge, persists it, then updates the sinks.
type Publisher struct {
	store  Committer
	sinks  []Sink
	logger *slog.Logger

	mu    sync.Mutex
	shown *Badge
}

// NewPublisher creates a Publisher writing through s and showing on sinks.
func NewPublisher(s Committer, logger *slog.Logger, sinks ...Sink) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{store: s, sinks: sinks, logger: logger}
}

// Publish persists status under a fresh sequence number and shows it.
func (p *Publisher) Publish(ctx context.Context, status store.Status) (store.State, error) {
	return p.PublishSeq(ctx, p.store.Begin(), status)
}

// PublishSeq persists status under seq, which the caller took when issuing
// the request that produced it. A stale seq returns [store.ErrStaleWrite] and
// leaves the sinks alone.
func (p *Publisher) PublishSeq(ctx context.Context, seq uint64, status store.Status) (store.State, error) {
	state, err := p.store.Commit(ctx, seq, status)
	if err != nil {
		if errors.Is(err, store.ErrStaleWrite) {
			return store.State{}, err
		}
		return store.State{}, fmt.Errorf("publish %s: %w", status, err)
	}

	p.show(state)
	return state, nil
}

// Restore shows the persisted status without writing anything.
func (p *Publisher) Restore() store.State {
	state := p.store.Snapshot()
	p.show(state)
	return state
}

// Follow shows every state event until ctx is done or events closes. It
// keeps the sinks current when the state file is edited externally.
func (p *Publisher) Follow(ctx context.Context, events <-chan store.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind == store.EventState {
				p.show(ev.State)
			}
		}
	}
}

// Shown returns the badge currently displayed, if any.
func (p *Publisher) Shown() (Badge, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shown == nil {
		return Badge{}, false
	}
	return *p.shown, true
}

func (p *Publisher) show(state store.State) {
	badge := For(state.Status)

	p.mu.Lock()
	defer p.mu.Unlock()

	changed := p.shown == nil || *p.shown != badge
	p.shown = &badge

	if changed {
		p.logger.Info("badge updated",
			"status", state.Status.String(),
			"text", badge.Text,
			"refreshed_at", state.LastRefresh,
		)
	}

	for _, sink := range p.sinks {
		p.safeShow(sink, badge, state)
	}
}

// safeShow calls a sink, recovering from a panic so one broken sink cannot
// take down the others.
func (p *Publisher) safeShow(sink Sink, badge Badge, state store.State) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("badge sink panicked",
				"correlation_id", uuid.New().String(),
				"panic", r,
			)
		}
	}()

	if err := sink.Show(badge, state); err != nil {
		p.logger.Warn("badge sink failed", "error", err)
	}
}
