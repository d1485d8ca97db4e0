package controller

import (
	"context"

	"github.com/jpalmerr/blockyswitch/internal/client"
	"github.com/jpalmerr/blockyswitch/internal/indicator"
	"github.com/jpalmerr/blockyswitch/internal/store"
)

// Local is a [Sync] over a store owned by this process. It is used by the
// daemon itself and by the interactive surfaces when no daemon runs.
type Local struct {
	store     *store.Store
	publisher *indicator.Publisher
}

// NewLocal creates a Local sync. Statuses are committed through publisher.
func NewLocal(st *store.Store, publisher *indicator.Publisher) *Local {
	return &Local{store: st, publisher: publisher}
}

func (l *Local) State(ctx context.Context) (store.State, error) {
	return l.store.Snapshot(), nil
}

func (l *Local) SetHost(ctx context.Context, host string) (store.State, error) {
	return l.store.SetHost(ctx, host)
}

func (l *Local) Publish(ctx context.Context, status store.Status) (store.State, error) {
	return l.publisher.Publish(ctx, status)
}

// Host implements [HostReader].
func (l *Local) Host() string {
	return l.store.Host()
}

// Begin implements [Sequencer].
func (l *Local) Begin() uint64 {
	return l.store.Begin()
}

// PublishSeq implements [Sequencer].
func (l *Local) PublishSeq(ctx context.Context, seq uint64, status store.Status) (store.State, error) {
	return l.publisher.PublishSeq(ctx, seq, status)
}

// Subscribe follows the store's events until ctx is done.
func (l *Local) Subscribe(ctx context.Context) (<-chan store.Event, error) {
	ch := l.store.Subscribe()
	context.AfterFunc(ctx, func() {
		l.store.Unsubscribe(ch)
	})
	return ch, nil
}

// Remote is a [Sync] that goes through a running daemon.
type Remote struct {
	client *client.Client
}

// NewRemote creates a Remote sync over c.
func NewRemote(c *client.Client) *Remote {
	return &Remote{client: c}
}

func (r *Remote) State(ctx context.Context) (store.State, error) {
	return r.client.State(ctx)
}

func (r *Remote) SetHost(ctx context.Context, host string) (store.State, error) {
	return r.client.SetHost(ctx, host)
}

func (r *Remote) Publish(ctx context.Context, status store.Status) (store.State, error) {
	return r.client.UpdateBadge(ctx, status)
}

func (r *Remote) Subscribe(ctx context.Context) (<-chan store.Event, error) {
	return r.client.Subscribe(ctx)
}
