// Package subscriber implements the per-connection Subscriber state
// machine (spec §4.E): authorization context, active subscriptions, SSE
// writer and heartbeat timer, all exclusively owned by the Subscriber
// that created them.
package subscriber

// State is one of the four points in the Subscriber lifecycle.
type State int

const (
	StateOpening State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
