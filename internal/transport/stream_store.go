package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mercure-hub/hub/internal/logging"
	"github.com/mercure-hub/hub/internal/update"
)

// streamEntry is the wire shape persisted to the "update" stream, per
// spec §6's persisted-state layout: `{ id, payload: json-serialized Update }`.
type streamEntry struct {
	ID      string `json:"id"`
	Payload string `json:"payload"`
}

// StreamTransport is the distributed Transport adapter: a remote
// append-only log (Redis Streams) keyed by event-kind stream name. It
// uses go-redis, reaching for Streams (XAdd/XRead) rather than Pub/Sub
// because spec §4.C requires a replay cursor that Pub/Sub cannot
// provide.
type StreamTransport struct {
	logger logging.Logger

	client *redis.Client

	listenersMu sync.RWMutex
	listeners   map[EventKind]map[string]Listener

	cursorMu sync.Mutex
	cursors  map[EventKind]string

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewStreamTransport creates a StreamTransport that will log through
// logger (never nil; pass logging.NoOp() if none is wanted).
func NewStreamTransport(logger logging.Logger) *StreamTransport {
	return &StreamTransport{
		logger:    logger,
		listeners: make(map[EventKind]map[string]Listener),
		cursors: map[EventKind]string{
			KindUpdate:      "$",
			KindConnect:     "$",
			KindDisconnect:  "$",
			KindSubscribe:   "$",
			KindUnsubscribe: "$",
		},
	}
}

func (t *StreamTransport) Protocol() string { return "redis" }

// Connect parses uri as a Redis connection string and starts one
// background reader goroutine per event-kind stream. Each reader
// tracks its own cursor (initial "$" — new entries only — per spec
// §4.C) and re-dispatches every entry it reads to local listeners; it
// survives transient read errors by logging and retrying.
func (t *StreamTransport) Connect(ctx context.Context, uri string) error {
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return fmt.Errorf("transport: invalid redis uri: %w", err)
	}

	t.mu.Lock()
	if t.client != nil {
		t.mu.Unlock()
		return nil // already connected; Connect is idempotent
	}
	t.client = redis.NewClient(opts)
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.mu.Unlock()

	for _, kind := range []EventKind{KindUpdate, KindConnect, KindDisconnect, KindSubscribe, KindUnsubscribe} {
		t.wg.Add(1)
		go t.readLoop(runCtx, kind)
	}
	return nil
}

func (t *StreamTransport) streamName(kind EventKind) string {
	return "mercure:" + string(kind)
}

func (t *StreamTransport) readLoop(ctx context.Context, kind EventKind) {
	defer t.wg.Done()
	stream := t.streamName(kind)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		t.cursorMu.Lock()
		cursor := t.cursors[kind]
		t.cursorMu.Unlock()

		res, err := t.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{stream, cursor},
			Block:   5 * time.Second,
			Count:   100,
		}).Result()

		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			t.logger.Error("stream transport read failed, retrying", "stream", stream, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, s := range res {
			for _, msg := range s.Messages {
				t.dispatchMessage(ctx, kind, msg)
				t.cursorMu.Lock()
				t.cursors[kind] = msg.ID
				t.cursorMu.Unlock()
			}
		}
	}
}

func (t *StreamTransport) dispatchMessage(ctx context.Context, kind EventKind, msg redis.XMessage) {
	raw, _ := msg.Values["payload"].(string)

	if kind == KindUpdate {
		var u update.Update
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			t.logger.Error("stream transport: malformed update payload, skipping", "error", err)
			return
		}
		t.notify(ctx, KindUpdate, "transport.redis", &u)
		return
	}

	var data interface{}
	_ = json.Unmarshal([]byte(raw), &data)
	t.notify(ctx, kind, "transport.redis", data)
}

func (t *StreamTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	cancel := t.cancel
	client := t.client
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.wg.Wait()
	if client != nil {
		return client.Close()
	}
	return nil
}

func (t *StreamTransport) Publish(ctx context.Context, u *update.Update) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("transport: marshal update: %w", err)
	}

	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}

	entry := streamEntry{ID: u.ID, Payload: string(payload)}
	_, err = client.XAdd(ctx, &redis.XAddArgs{
		Stream: t.streamName(KindUpdate),
		Values: map[string]interface{}{"id": entry.ID, "payload": entry.Payload},
	}).Result()
	return err
}

// EventsAfter reads the "update" stream and streams every entry after
// the one whose "id" field equals id, in stream order. An id not found
// in the stream yields an immediately-closed, empty channel, the same
// policy as the memory adapter.
func (t *StreamTransport) EventsAfter(ctx context.Context, id string) (<-chan *update.Update, error) {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil {
		return nil, ErrNotConnected
	}

	entries, err := client.XRange(ctx, t.streamName(KindUpdate), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("transport: eventsAfter: %w", err)
	}

	// Stream entry ids are generated by Redis; the update id is carried
	// in each entry's "id" field, so the start position is found by scan.
	if id != EarliestID {
		start := len(entries)
		for i, e := range entries {
			if v, _ := e.Values["id"].(string); v == id {
				start = i + 1
				break
			}
		}
		entries = entries[start:]
	}

	out := make(chan *update.Update, len(entries))
	for _, e := range entries {
		raw, _ := e.Values["payload"].(string)
		var u update.Update
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			t.logger.Error("stream transport: malformed replay entry, skipping", "error", err)
			continue
		}
		out <- &u
	}
	close(out)
	return out, nil
}

func (t *StreamTransport) On(kind EventKind, fn Listener) Unregister {
	id := fmt.Sprintf("%p-%d", fn, time.Now().UnixNano())

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

func (t *StreamTransport) Emit(ctx context.Context, kind EventKind, source string, data interface{}) error {
	if kind == KindUpdate {
		return ErrUnsupportedKindForEmit
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("transport: marshal emit payload: %w", err)
	}

	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}

	_, err = client.XAdd(ctx, &redis.XAddArgs{
		Stream: t.streamName(kind),
		Values: map[string]interface{}{"id": update.NewID(), "payload": string(payload)},
	}).Result()
	return err
}

func (t *StreamTransport) notify(ctx context.Context, kind EventKind, source string, data interface{}) {
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
