package subscriber

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mercure-hub/hub/internal/selector"
	"github.com/mercure-hub/hub/internal/transport"
	"github.com/mercure-hub/hub/internal/update"
)

// ErrClosed is returned by Dispatch and Enqueue whenever the
// Subscriber is not in the Active state.
var ErrClosed = errors.New("subscriber: closed")

// ErrOverflow is returned by Enqueue when the subscriber's bounded
// dispatch buffer is full; the Subscriber is transitioned to Closing
// as a side effect. Per spec §5 invariant 6 a slow subscriber must not
// stall the publisher, and an update must not be silently dropped from
// the middle of the stream either, so disconnect is the only option
// left once the buffer overflows.
var ErrOverflow = errors.New("subscriber: dispatch buffer overflow")

// DefaultQueueCapacity bounds the per-subscriber dispatch buffer when
// New is called directly (use NewWithQueueCapacity to override).
const DefaultQueueCapacity = 64

// Subscriber is the per-connection state machine from spec §4.E: it
// exclusively owns its SSE writer and heartbeat timer, and knows
// nothing about the Hub or HTTP layer beyond the StreamWriter it is
// handed at construction.
type Subscriber struct {
	ID      string
	Payload interface{}

	authorizedSubscribe []*selector.Selector

	mu            sync.Mutex
	state         State
	lastEventID   string
	subscriptions []*Subscription
	writer        StreamWriter

	// writeMu serializes every Write+Flush pair onto writer. The
	// dispatch loop and the heartbeat goroutine both write to the same
	// SSE stream concurrently when heartbeats are enabled; without this
	// a heartbeat comment line can interleave mid-frame with an
	// update, violating the one-write-per-Update atomicity spec §5
	// requires.
	writeMu sync.Mutex

	queue      chan *update.Update
	queueDone  chan struct{}
	queueStart sync.Once

	heartbeatCancel context.CancelFunc
	heartbeatDone   chan struct{}
}

// New constructs a Subscriber in the Opening state with a dispatch
// buffer of DefaultQueueCapacity. authorizedSubscribe is the caller's
// `mercure.subscribe` selector list (nil/empty for an anonymous
// connection).
func New(id string, writer StreamWriter, authorizedSubscribe []*selector.Selector) *Subscriber {
	return NewWithQueueCapacity(id, writer, authorizedSubscribe, DefaultQueueCapacity)
}

// NewWithQueueCapacity is New with an explicit dispatch buffer size;
// tests use a small capacity to exercise overflow without publishing
// thousands of updates.
func NewWithQueueCapacity(id string, writer StreamWriter, authorizedSubscribe []*selector.Selector, queueCapacity int) *Subscriber {
	if queueCapacity <= 0 {
		queueCapacity = DefaultQueueCapacity
	}
	return &Subscriber{
		ID:                  id,
		writer:              writer,
		state:               StateOpening,
		authorizedSubscribe: authorizedSubscribe,
		queue:               make(chan *update.Update, queueCapacity),
		queueDone:           make(chan struct{}),
	}
}

// State reports the Subscriber's current lifecycle state.
func (s *Subscriber) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastEventID reports the id of the most recently dispatched update.
func (s *Subscriber) LastEventID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEventID
}

// Activate transitions Opening → Active, which spec §4.E requires only
// after the response head has been written successfully.
func (s *Subscriber) Activate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateOpening {
		s.state = StateActive
	}
}

// AddSubscription registers one per-topic Subscription, one per
// `topic` query parameter per spec §3.
func (s *Subscriber) AddSubscription(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions = append(s.subscriptions, sub)
}

// Subscriptions returns a snapshot of the currently registered
// subscriptions.
func (s *Subscriber) Subscriptions() []*Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Subscription, len(s.subscriptions))
	copy(out, s.subscriptions)
	return out
}

// CanAccess implements the access invariant from spec §3: the update
// must match one of the subscriber's subscribed topic selectors, and —
// if the update is private — must also match one of the subscriber's
// authorized `mercure.subscribe` selectors. anonymousAccessEnabled is
// accepted for symmetry with the rest of this package's signatures;
// whether an anonymous (tokenless) connection was allowed to subscribe
// at all is already enforced at connection time (spec §4.G step 1), so
// it plays no further role once a Subscriber exists.
func (s *Subscriber) CanAccess(u *update.Update, anonymousAccessEnabled bool) bool {
	topics := u.Topics()

	if !s.matchesSubscriptions(topics) {
		return false
	}
	if !u.Private {
		return true
	}
	return s.matchesAuthorizedSubscribe(topics)
}

func (s *Subscriber) matchesSubscriptions(topics []string) bool {
	for _, sub := range s.Subscriptions() {
		if sub.Selector.Match(topics) {
			return true
		}
	}
	return false
}

func (s *Subscriber) matchesAuthorizedSubscribe(topics []string) bool {
	for _, sel := range s.authorizedSubscribe {
		if sel.Match(topics) {
			return true
		}
	}
	return false
}

// Dispatch records lastEventID before attempting the write (so a
// resumed connection never replays an update it already started
// writing), serializes u as an SSE frame, and writes+flushes it. A
// write error transitions the Subscriber to Closing.
func (s *Subscriber) Dispatch(u *update.Update) error {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return ErrClosed
	}
	s.lastEventID = u.ID
	writer := s.writer
	s.mu.Unlock()

	s.writeMu.Lock()
	_, err := writer.Write(formatFrame(u))
	if err == nil {
		writer.Flush()
	}
	s.writeMu.Unlock()

	if err != nil {
		s.transitionToClosing()
		return err
	}
	return nil
}

// Enqueue hands u to the subscriber's dispatch goroutine without
// blocking the caller. If the subscriber isn't Active the update is
// dropped. If the dispatch buffer is full — the subscriber's writer
// can't keep up with the publish rate — the Subscriber is transitioned
// to Closing and ErrOverflow is returned, so a stalled subscriber never
// delays the publisher that called Enqueue.
func (s *Subscriber) Enqueue(u *update.Update) error {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return ErrClosed
	}
	queue := s.queue
	s.mu.Unlock()

	select {
	case queue <- u:
		return nil
	default:
		s.transitionToClosing()
		return ErrOverflow
	}
}

// RunDispatchLoop drains the dispatch buffer and writes each update in
// order, until the Subscriber stops being Active or ctx is done. It
// must run in its own goroutine for the lifetime of the connection;
// callers should start it once, immediately after Activate.
func (s *Subscriber) RunDispatchLoop(ctx context.Context) {
	s.queueStart.Do(func() {
		go func() {
			defer close(s.queueDone)
			for {
				select {
				case <-ctx.Done():
					return
				case u, ok := <-s.queue:
					if !ok {
						return
					}
					if err := s.Dispatch(u); err != nil {
						return
					}
				}
			}
		}()
	})
}

// EnableHeartbeats arms a recurring timer that writes a colon-prefixed
// comment line every interval, per spec §4.E. It is a no-op once the
// Subscriber has left the Active state, and stops itself automatically
// if the Subscriber closes.
func (s *Subscriber) EnableHeartbeats(interval time.Duration) {
	if interval <= 0 {
		return
	}

	s.mu.Lock()
	if s.state != StateActive || s.heartbeatCancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.heartbeatCancel = cancel
	s.heartbeatDone = make(chan struct{})
	s.mu.Unlock()

	go s.runHeartbeats(ctx, interval)
}

func (s *Subscriber) runHeartbeats(ctx context.Context, interval time.Duration) {
	defer close(s.heartbeatDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			active := s.state == StateActive
			writer := s.writer
			s.mu.Unlock()
			if !active {
				return
			}

			s.writeMu.Lock()
			_, err := writer.Write(formatHeartbeat(""))
			if err == nil {
				writer.Flush()
			}
			s.writeMu.Unlock()

			if err != nil {
				s.transitionToClosing()
				return
			}
		}
	}
}

func (s *Subscriber) transitionToClosing() {
	s.mu.Lock()
	if s.state == StateClosing || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosing
	cancel := s.heartbeatCancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Close transitions the Subscriber through Closing to Closed,
// cancelling its heartbeat and clearing its subscriptions. Idempotent.
func (s *Subscriber) Close(ctx context.Context, h emitter) {
	s.transitionToClosing()

	s.mu.Lock()
	alreadyClosed := s.state == StateClosed
	s.subscriptions = nil
	s.state = StateClosed
	s.mu.Unlock()

	if h != nil && !alreadyClosed {
		_ = h.Emit(ctx, transport.KindDisconnect, s.ID, nil)
	}
}

// emitter is the minimal Hub surface Close needs, kept narrow so this
// package doesn't import internal/hub.
type emitter interface {
	Emit(ctx context.Context, kind transport.EventKind, source string, data interface{}) error
}
