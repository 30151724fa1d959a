package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/mercure-hub/hub/internal/auth"
	"github.com/mercure-hub/hub/internal/config"
	"github.com/mercure-hub/hub/internal/hub"
	"github.com/mercure-hub/hub/internal/logging"
	"github.com/mercure-hub/hub/internal/selector"
	"github.com/mercure-hub/hub/internal/subscriber"
	"github.com/mercure-hub/hub/internal/transport"
	"github.com/mercure-hub/hub/internal/update"
)

// flusherWriter adapts an http.ResponseWriter (which must also
// implement http.Flusher, true for net/http's standard
// implementation) to subscriber.StreamWriter.
type flusherWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func (fw flusherWriter) Write(p []byte) (int, error) { return fw.w.Write(p) }
func (fw flusherWriter) Flush()                       { fw.f.Flush() }

// decodeUpdateEvent unmarshals a KindUpdate cloudevents.Event's JSON
// payload back into the *update.Update the Transport published.
func decodeUpdateEvent(evt cloudevents.Event) (*update.Update, bool) {
	var u update.Update
	if err := evt.DataAs(&u); err != nil {
		return nil, false
	}
	return &u, true
}

// replayCoordinator closes the gap between historical replay and live
// dispatch (spec §4.G step 7): the Hub listener is registered before
// replay starts, so a MemoryTransport.EventsAfter snapshot taken
// mid-replay never loses an update published in between, but that
// means the listener and the replay loop can both see the same
// update. While replay is draining, the coordinator buffers live
// updates instead of delivering them immediately, so nothing can
// reach the subscriber out of transport order; once replay ends,
// finish returns that buffer with anything replay already delivered
// removed.
type replayCoordinator struct {
	mu        sync.Mutex
	draining  bool
	delivered map[string]struct{}
	pending   []*update.Update
}

func newReplayCoordinator() *replayCoordinator {
	return &replayCoordinator{draining: true, delivered: make(map[string]struct{})}
}

// observeLive records a live update reaching the Hub listener. It
// reports whether the caller should deliver u immediately (replay has
// already finished) or leave it queued for finish's post-replay drain.
func (rc *replayCoordinator) observeLive(u *update.Update) (deliverNow bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if !rc.draining {
		return true
	}
	rc.pending = append(rc.pending, u)
	return false
}

// observeReplay records that replay itself delivered id, so an
// identical update arriving live is dropped instead of repeated.
func (rc *replayCoordinator) observeReplay(id string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.delivered[id] = struct{}{}
}

// finish ends the draining window and returns the live updates
// buffered during replay, in arrival order, with anything replay
// already delivered removed.
func (rc *replayCoordinator) finish() []*update.Update {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.draining = false
	out := make([]*update.Update, 0, len(rc.pending))
	for _, u := range rc.pending {
		if _, ok := rc.delivered[u.ID]; ok {
			continue
		}
		out = append(out, u)
	}
	rc.pending = nil
	return out
}

// SubscribeHandler implements GET /.well-known/mercure, spec §4.G.
type SubscribeHandler struct {
	Config   config.Configuration
	Hub      *hub.Hub
	Resolver auth.KeyResolver
	Logger   logging.Logger

	subscriberCount int64
}

func (h *SubscribeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	authorizedSelectors, _, err := h.authorize(ctx, r)
	if err != nil {
		Render(w, r, err)
		return
	}

	if h.Config.MaxSubscribers > 0 {
		if atomic.AddInt64(&h.subscriberCount, 1) > int64(h.Config.MaxSubscribers) {
			atomic.AddInt64(&h.subscriberCount, -1)
			Render(w, r, newError(KindForbidden, "subscriber limit reached"))
			return
		}
		defer atomic.AddInt64(&h.subscriberCount, -1)
	}

	topics := r.URL.Query()["topic"]
	nonEmpty := make([]string, 0, len(topics))
	for _, t := range topics {
		if t != "" {
			nonEmpty = append(nonEmpty, t)
		}
	}
	if len(nonEmpty) == 0 {
		Render(w, r, newError(KindMalformedRequest, "at least one topic parameter is required"))
		return
	}
	if h.Config.MaxTopicsPerSubscription > 0 && len(nonEmpty) > h.Config.MaxTopicsPerSubscription {
		Render(w, r, newError(KindMalformedRequest, "too many topic parameters"))
		return
	}

	selectors := make([]*selector.Selector, 0, len(nonEmpty))
	for _, raw := range nonEmpty {
		sel, err := selector.Compile(raw, r.URL)
		if err != nil {
			Render(w, r, wrapError(KindMalformedRequest, "invalid topic selector", err))
			return
		}
		selectors = append(selectors, sel)
	}

	lastEventID := r.Header.Get("Last-Event-ID")
	if lastEventID == "" {
		lastEventID = r.URL.Query().Get("lastEventId")
	}
	if lastEventID == "" {
		lastEventID = r.URL.Query().Get("last-event-id")
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		Render(w, r, newError(KindInternal, "streaming unsupported"))
		return
	}

	wh := w.Header()
	wh.Set("Content-Type", "text/event-stream")
	wh.Set("Cache-Control", "private, no-cache, no-store, must-revalidate, max-age=0")
	wh.Set("Connection", "keep-alive")
	wh.Set("X-Accel-Buffering", "no")
	wh.Set("Transfer-Encoding", "chunked")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := subscriber.New(update.NewID(), flusherWriter{w: w, f: flusher}, authorizedSelectors)
	sub.Activate()
	sub.RunDispatchLoop(ctx)
	for i, sel := range selectors {
		sub.AddSubscription(&subscriber.Subscription{
			ID:           fmt.Sprintf("%s#%d", sub.ID, i),
			SubscriberID: sub.ID,
			Selector:     sel,
		})
	}
	if h.Config.HeartbeatInterval > 0 {
		sub.EnableHeartbeats(h.Config.HeartbeatInterval)
	}

	// The listener is registered before replay starts: EventsAfter's
	// buffer snapshot can include an update whose Publish() call hasn't
	// notified listeners yet, so registering afterward would miss it
	// entirely. coord keeps the two sources from ever interleaving out
	// of order in the meantime.
	coord := newReplayCoordinator()
	unregister := h.Hub.On(transport.KindUpdate, func(listenerCtx context.Context, evt cloudevents.Event) {
		u, ok := decodeUpdateEvent(evt)
		if !ok {
			return
		}
		if !sub.CanAccess(u, h.Config.AnonymousAccess) {
			return
		}
		// Enqueue never blocks: a stalled subscriber's slow writer must
		// not delay this Hub.Publish() call on the publisher's socket
		// (spec §5 invariant 6). RunDispatchLoop performs the actual
		// write from its own goroutine.
		if coord.observeLive(u) {
			_ = sub.Enqueue(u)
		}
	})
	defer h.Hub.Off(unregister)

	if lastEventID != "" {
		h.replay(ctx, sub, coord, lastEventID)
		if id := sub.LastEventID(); id != "" {
			wh.Set("Last-Event-ID", id)
		}
	}
	for _, u := range coord.finish() {
		if sub.CanAccess(u, h.Config.AnonymousAccess) {
			_ = sub.Enqueue(u)
		}
	}

	for _, sel := range selectors {
		_ = h.Hub.Emit(ctx, transport.KindSubscribe, sub.ID, map[string]string{"topic": sel.Raw()})
	}
	_ = h.Hub.Emit(ctx, transport.KindConnect, sub.ID, nil)

	<-ctx.Done()

	sub.Close(context.Background(), h.Hub)
	for _, sel := range selectors {
		_ = h.Hub.Emit(context.Background(), transport.KindUnsubscribe, sub.ID, map[string]string{"topic": sel.Raw()})
	}
	_ = h.Hub.Emit(context.Background(), transport.KindDisconnect, sub.ID, nil)
}

// replay drains Transport.EventsAfter(lastEventID) into sub before
// live dispatch begins, per spec §4.G step 7. A Transport read failure
// is logged and simply ends the replay; the subscriber joins live
// without further catch-up. Every delivered id is recorded on coord so
// the concurrently running Hub listener drops a duplicate instead of
// repeating it; delivery goes through sub.Enqueue rather than a direct
// Dispatch so replayed updates and buffered live updates end up in the
// same ordered dispatch queue.
func (h *SubscribeHandler) replay(ctx context.Context, sub *subscriber.Subscriber, coord *replayCoordinator, lastEventID string) {
	ch, err := h.Hub.EventsAfter(ctx, lastEventID)
	if err != nil {
		h.Logger.Warn("replay failed to start", "lastEventId", lastEventID, "error", err)
		return
	}
	for u := range ch {
		if !sub.CanAccess(u, h.Config.AnonymousAccess) {
			continue
		}
		coord.observeReplay(u.ID)
		if err := sub.Enqueue(u); err != nil {
			return
		}
	}
}

// authorize resolves the subscriber's token (if any) into its
// authorized subscribe selectors and payload, per spec §4.F/§4.G
// step 1.
func (h *SubscribeHandler) authorize(ctx context.Context, r *http.Request) ([]*selector.Selector, interface{}, error) {
	if err := h.checkOrigin(r); err != nil {
		return nil, nil, err
	}

	tokenString := auth.ExtractToken(r, h.Config.ExtractionConfig())
	if tokenString == "" {
		if h.Config.AnonymousAccess {
			return nil, nil, nil
		}
		return nil, nil, newError(KindAuthRequired, "authorization required")
	}

	claims, err := auth.Verify(ctx, h.Resolver, auth.RoleSubscriber, tokenString)
	if err != nil {
		return nil, nil, wrapError(KindForbidden, "invalid token", err)
	}

	selectors := make([]*selector.Selector, 0, len(claims.Subscribe))
	for _, raw := range claims.Subscribe {
		sel, err := selector.Compile(raw, r.URL)
		if err != nil {
			continue
		}
		selectors = append(selectors, sel)
	}
	return selectors, claims.Payload, nil
}

func (h *SubscribeHandler) checkOrigin(r *http.Request) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = r.Header.Get("Referer")
	}
	if !h.Config.OriginAllowed(origin) {
		return newError(KindForbidden, "origin not allowed")
	}
	return nil
}
