package subscriber

import (
	"bytes"
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercure-hub/hub/internal/selector"
	"github.com/mercure-hub/hub/internal/transport"
	"github.com/mercure-hub/hub/internal/update"
)

type bufWriter struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	flushed int
	failOn  int // write call count after which writes start failing
	writes  int
}

func (w *bufWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes++
	if w.failOn > 0 && w.writes >= w.failOn {
		return 0, assert.AnError
	}
	return w.buf.Write(p)
}

func (w *bufWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushed++
}

func (w *bufWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func mustSelector(t *testing.T, raw string) *selector.Selector {
	t.Helper()
	sel, err := selector.Compile(raw, &url.URL{Scheme: "https", Host: "example.com"})
	require.NoError(t, err)
	return sel
}

func TestSubscriber_DispatchFormatsFrame(t *testing.T) {
	w := &bufWriter{}
	s := New("urn:uuid:sub1", w, nil)
	s.Activate()
	s.AddSubscription(&Subscription{ID: "s1", Selector: mustSelector(t, "*")})

	retry := 3000
	u := &update.Update{ID: "urn:uuid:u1", CanonicalTopic: "https://example.com/a", Data: "hello\nworld", Type: "greeting", Retry: &retry}
	require.NoError(t, s.Dispatch(u))

	assert.Equal(t, "id: urn:uuid:u1\nevent: greeting\nretry: 3000\ndata: hello\ndata: world\n\n", w.String())
	assert.Equal(t, "urn:uuid:u1", s.LastEventID())
}

func TestSubscriber_DispatchBeforeActiveFails(t *testing.T) {
	w := &bufWriter{}
	s := New("urn:uuid:sub1", w, nil)

	err := s.Dispatch(&update.Update{ID: "u1", CanonicalTopic: "https://example.com/a"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSubscriber_DispatchWriteErrorClosesSubscriber(t *testing.T) {
	w := &bufWriter{failOn: 1}
	s := New("urn:uuid:sub1", w, nil)
	s.Activate()

	err := s.Dispatch(&update.Update{ID: "u1", CanonicalTopic: "https://example.com/a"})
	assert.Error(t, err)
	assert.Equal(t, StateClosing, s.State())
}

func TestSubscriber_CanAccess_PublicUpdateMatchesSubscription(t *testing.T) {
	s := New("sub1", &bufWriter{}, nil)
	s.AddSubscription(&Subscription{Selector: mustSelector(t, "https://example.com/a")})

	u := &update.Update{CanonicalTopic: "https://example.com/a"}
	assert.True(t, s.CanAccess(u, true))
}

func TestSubscriber_CanAccess_NoMatchingSubscription(t *testing.T) {
	s := New("sub1", &bufWriter{}, nil)
	s.AddSubscription(&Subscription{Selector: mustSelector(t, "https://example.com/b")})

	u := &update.Update{CanonicalTopic: "https://example.com/a"}
	assert.False(t, s.CanAccess(u, true))
}

func TestSubscriber_CanAccess_PrivateRequiresAuthorizedSubscribe(t *testing.T) {
	s := New("sub1", &bufWriter{}, nil)
	s.AddSubscription(&Subscription{Selector: mustSelector(t, "https://example.com/a")})

	u := &update.Update{CanonicalTopic: "https://example.com/a", Private: true}
	assert.False(t, s.CanAccess(u, true))
}

func TestSubscriber_CanAccess_PrivateWithAuthorizedSubscribe(t *testing.T) {
	s := New("sub1", &bufWriter{}, []*selector.Selector{mustSelector(t, "https://example.com/a")})
	s.AddSubscription(&Subscription{Selector: mustSelector(t, "*")})

	u := &update.Update{CanonicalTopic: "https://example.com/a", Private: true}
	assert.True(t, s.CanAccess(u, true))
}

func TestSubscriber_Close_CancelsHeartbeatAndClearsSubscriptions(t *testing.T) {
	w := &bufWriter{}
	s := New("sub1", w, nil)
	s.Activate()
	s.AddSubscription(&Subscription{Selector: mustSelector(t, "*")})
	s.EnableHeartbeats(10 * time.Millisecond)

	tr := transport.NewMemoryTransport(0)
	require.NoError(t, tr.Connect(context.Background(), "memory://"))

	s.Close(context.Background(), tr)

	assert.Equal(t, StateClosed, s.State())
	assert.Empty(t, s.Subscriptions())
}

func TestSubscriber_Enqueue_BeforeActiveFails(t *testing.T) {
	s := New("sub1", &bufWriter{}, nil)
	err := s.Enqueue(&update.Update{ID: "u1", CanonicalTopic: "https://example.com/a"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSubscriber_Enqueue_DrainedByDispatchLoop(t *testing.T) {
	w := &bufWriter{}
	s := New("sub1", w, nil)
	s.Activate()
	s.AddSubscription(&Subscription{Selector: mustSelector(t, "*")})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.RunDispatchLoop(ctx)

	require.NoError(t, s.Enqueue(&update.Update{ID: "u1", CanonicalTopic: "https://example.com/a"}))

	require.Eventually(t, func() bool {
		return s.LastEventID() == "u1"
	}, time.Second, 5*time.Millisecond)
}

func TestSubscriber_Enqueue_OverflowClosesWithoutBlocking(t *testing.T) {
	// failOn never fires: the dispatch loop is never started, so the
	// bounded buffer fills up from Enqueue calls alone and the
	// (capacity+1)th call must return immediately rather than block.
	w := &bufWriter{}
	s := NewWithQueueCapacity("sub1", w, nil, 2)
	s.Activate()

	require.NoError(t, s.Enqueue(&update.Update{ID: "u1", CanonicalTopic: "https://example.com/a"}))
	require.NoError(t, s.Enqueue(&update.Update{ID: "u2", CanonicalTopic: "https://example.com/a"}))

	done := make(chan error, 1)
	go func() { done <- s.Enqueue(&update.Update{ID: "u3", CanonicalTopic: "https://example.com/a"}) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrOverflow)
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full buffer instead of disconnecting")
	}
	assert.Equal(t, StateClosing, s.State())
}

func TestSubscriber_EnableHeartbeats_WritesCommentLines(t *testing.T) {
	w := &bufWriter{}
	s := New("sub1", w, nil)
	s.Activate()
	s.EnableHeartbeats(5 * time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	s.transitionToClosing()

	assert.Contains(t, w.String(), ":")
}
