package transport

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/mercure-hub/hub/internal/update"
)

// MemoryTransport is the in-process Transport adapter: a bounded ring
// buffer backing EventsAfter, plus a per-kind listener registry keyed
// by a mutex-guarded map, dispatched synchronously on publish. The
// listeners are called one after another in map-iteration order, not
// in registration order.
//
// Capacity of zero means unbounded retention (suitable for
// development); a positive capacity drops the oldest retained update
// once the buffer is full, per spec §4.C's "still in the retention
// window" qualifier on replay completeness.
type MemoryTransport struct {
	capacity int

	mu        sync.Mutex
	buffer    []*update.Update
	nextIndex int // position of buffer[0] in the infinite publication sequence, for drop accounting

	listenersMu sync.RWMutex
	listeners   map[EventKind]map[string]Listener

	connected bool
	closed    bool
}

// NewMemoryTransport creates a MemoryTransport with the given
// retention capacity (0 = unbounded).
func NewMemoryTransport(capacity int) *MemoryTransport {
	return &MemoryTransport{
		capacity:  capacity,
		listeners: make(map[EventKind]map[string]Listener),
	}
}

func (t *MemoryTransport) Protocol() string { return "memory" }

func (t *MemoryTransport) Connect(ctx context.Context, uri string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
	return nil
}

func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *MemoryTransport) Publish(ctx context.Context, u *update.Update) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.buffer = append(t.buffer, u)
	if t.capacity > 0 && len(t.buffer) > t.capacity {
		drop := len(t.buffer) - t.capacity
		t.buffer = t.buffer[drop:]
		t.nextIndex += drop
	}
	t.mu.Unlock()

	t.notify(ctx, KindUpdate, "transport.memory", u)
	return nil
}

// EventsAfter scans the retained buffer for id and streams every
// update strictly after it. An id absent from the buffer (and not
// EarliestID) yields an immediately-closed, empty channel rather than
// an error: a subscriber resuming past the retention window should
// join the live stream, not fail outright.
func (t *MemoryTransport) EventsAfter(ctx context.Context, id string) (<-chan *update.Update, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClosed
	}

	var tail []*update.Update
	if id == EarliestID {
		tail = append(tail, t.buffer...)
	} else {
		for i, u := range t.buffer {
			if u.ID == id {
				tail = append(tail, t.buffer[i+1:]...)
				break
			}
		}
	}
	t.mu.Unlock()

	out := make(chan *update.Update, len(tail))
	for _, u := range tail {
		out <- u
	}
	close(out)
	return out, nil
}

func (t *MemoryTransport) On(kind EventKind, fn Listener) Unregister {
	id := uuid.NewString()

	t.listenersMu.Lock()
	if t.listeners[kind] == nil {
		t.listeners[kind] = make(map[string]Listener)
	}
	t.listeners[kind][id] = fn
	t.listenersMu.Unlock()

	return func() {
		t.listenersMu.Lock()
		delete(t.listeners[kind], id)
		t.listenersMu.Unlock()
	}
}

func (t *MemoryTransport) Emit(ctx context.Context, kind EventKind, source string, data interface{}) error {
	if kind == KindUpdate {
		return ErrUnsupportedKindForEmit
	}
	t.notify(ctx, kind, source, data)
	return nil
}

// notify takes a copy-on-write snapshot of the listener set under a
// read lock, then invokes each listener outside the lock so that no
// listener's work (an SSE write, in practice) is ever performed while
// holding the registry lock.
func (t *MemoryTransport) notify(ctx context.Context, kind EventKind, source string, data interface{}) {
	t.listenersMu.RLock()
	byID := t.listeners[kind]
	snapshot := make([]Listener, 0, len(byID))
	for _, fn := range byID {
		snapshot = append(snapshot, fn)
	}
	t.listenersMu.RUnlock()

	if len(snapshot) == 0 {
		return
	}
	evt := newCloudEvent(kind, source, data)
	for _, fn := range snapshot {
		fn(ctx, evt)
	}
}
