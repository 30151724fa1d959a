// Package transport defines the pluggable, ordered event log that
// backs the Hub: publish, replay-after-id, and a five-kind listener
// bus (update/connect/disconnect/subscribe/unsubscribe).
package transport

import (
	"context"
	"errors"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/mercure-hub/hub/internal/update"
)

// EventKind names one of the five event streams a Transport carries.
// "update" is the only kind with its own typed Publish method; the
// other four are lifecycle notifications emitted by the Hub/Subscriber
// layer and simply relayed by the Transport for any interested
// listener (e.g. a future subscription-inspection API).
type EventKind string

const (
	KindUpdate      EventKind = "update"
	KindConnect     EventKind = "connect"
	KindDisconnect  EventKind = "disconnect"
	KindSubscribe   EventKind = "subscribe"
	KindUnsubscribe EventKind = "unsubscribe"
)

// EarliestID is the sentinel `eventsAfter` id meaning "replay from the
// beginning of the retained log".
const EarliestID = "earliest"

// Listener receives a notification for one EventKind.
type Listener func(ctx context.Context, evt cloudevents.Event)

// Unregister removes a previously registered Listener. Calling it more
// than once is safe and a no-op after the first call.
type Unregister func()

// Transport is the ordered, replayable event log contract from
// spec §4.C. Implementations must provide the four guarantees
// documented there: per-instance publication ordering, replay
// completeness via EventsAfter, exactly-once fan-out to currently
// registered listeners, and a documented backpressure policy for slow
// consumers (the Transport implementations here apply none directly;
// backpressure is enforced per-subscriber, see internal/subscriber).
type Transport interface {
	// Protocol returns the URL scheme this transport handles, e.g.
	// "memory" or "redis".
	Protocol() string

	// Connect establishes the backing connection(s). Idempotent.
	Connect(ctx context.Context, uri string) error

	// Close releases resources. Safe to call once; subsequent calls
	// are no-ops.
	Close() error

	// Publish durably appends u and notifies every listener registered
	// on KindUpdate exactly once. The order in which different
	// listeners are notified is not defined.
	Publish(ctx context.Context, u *update.Update) error

	// EventsAfter streams every update published strictly after id, in
	// publication order, until the context is cancelled or the log is
	// exhausted. The returned channel is closed when iteration ends.
	// Passing EarliestID replays from the start of the retained
	// window. An id that the implementation doesn't recognize is
	// handled per the implementation's own documented, stable policy.
	EventsAfter(ctx context.Context, id string) (<-chan *update.Update, error)

	// On registers fn for notifications of kind. The returned
	// Unregister detaches it.
	On(kind EventKind, fn Listener) Unregister

	// Emit publishes a lifecycle notification (connect/disconnect/
	// subscribe/unsubscribe) to every listener registered for kind.
	// KindUpdate notifications are only ever emitted via Publish.
	Emit(ctx context.Context, kind EventKind, source string, data interface{}) error
}

// ErrUnsupportedKindForEmit is returned by Emit when called with
// KindUpdate; updates must go through Publish so they are durably
// appended, not merely broadcast.
var ErrUnsupportedKindForEmit = errors.New("transport: KindUpdate must be published via Publish, not Emit")

// ErrClosed is returned by operations attempted after Close.
var ErrClosed = errors.New("transport: closed")

// ErrNotConnected is returned when an operation requires Connect to
// have been called first.
var ErrNotConnected = errors.New("transport: not connected")

// newCloudEvent builds the cloudevents.Event wrapper every listener
// receives (id/source/type/time/specversion, then JSON data).
func newCloudEvent(kind EventKind, source string, data interface{}) cloudevents.Event {
	evt := cloudevents.NewEvent()
	evt.SetID(update.NewID())
	evt.SetSource(source)
	evt.SetType(string(kind))
	evt.SetTime(time.Now())
	evt.SetSpecVersion(cloudevents.VersionV1)
	if data != nil {
		_ = evt.SetData(cloudevents.ApplicationJSON, data)
	}
	return evt
}
