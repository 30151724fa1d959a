package subscriber

import "github.com/mercure-hub/hub/internal/selector"

// Subscription binds one `topic` query parameter to its compiled
// selector, for the lifetime of the owning Subscriber. Per spec §3 it
// holds a non-owning back-reference to its Subscriber (here, just the
// subscriber's id) to avoid a reference cycle between the two.
type Subscription struct {
	ID           string
	SubscriberID string
	Selector     *selector.Selector
}
