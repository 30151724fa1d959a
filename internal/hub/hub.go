// Package hub provides the thin, stable facade higher layers (the
// subscribe/publish handlers, the Subscriber state machine) depend on
// instead of reaching into a Transport directly, per spec §4.D.
package hub

import (
	"context"

	"github.com/mercure-hub/hub/internal/transport"
	"github.com/mercure-hub/hub/internal/update"
)

// Hub wraps a single process-wide Transport instance.
type Hub struct {
	transport transport.Transport
}

// New creates a Hub over the given Transport. The Transport must
// already be Connect-ed.
func New(t transport.Transport) *Hub {
	return &Hub{transport: t}
}

// Publish appends u to the backing Transport and fans it out to every
// currently registered update listener.
func (h *Hub) Publish(ctx context.Context, u *update.Update) error {
	return h.transport.Publish(ctx, u)
}

// EventsAfter replays every update published strictly after id.
func (h *Hub) EventsAfter(ctx context.Context, id string) (<-chan *update.Update, error) {
	return h.transport.EventsAfter(ctx, id)
}

// On registers fn for notifications of kind and returns an
// unregistration handle for scoped cleanup.
func (h *Hub) On(kind transport.EventKind, fn transport.Listener) transport.Unregister {
	return h.transport.On(kind, fn)
}

// Off is an explicit alias for calling the Unregister handle returned
// by On, kept as a named method because spec §4.C's Transport contract
// names both on and off as first-class operations.
func (h *Hub) Off(unregister transport.Unregister) {
	unregister()
}

// Emit publishes a lifecycle notification (connect/disconnect/
// subscribe/unsubscribe).
func (h *Hub) Emit(ctx context.Context, kind transport.EventKind, source string, data interface{}) error {
	return h.transport.Emit(ctx, kind, source, data)
}
