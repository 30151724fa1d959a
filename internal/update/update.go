// Package update defines the immutable Mercure update record and the
// helpers that build one from an incoming publication.
package update

import (
	"github.com/google/uuid"
)

// Update is a single Mercure event: a canonical topic, zero or more
// alternate topics associated with the same event for matching
// purposes, an optional payload, and the private flag that gates
// delivery to subscribers whose authorization doesn't cover it.
//
// Update is immutable once constructed; every field is set at
// construction time and never mutated afterwards.
type Update struct {
	ID              string
	CanonicalTopic  string
	AlternateTopics []string
	Data            string
	Type            string
	Retry           *int
	Private         bool
}

// Topics returns the canonical topic followed by the alternate topics,
// the candidate set a TopicSelector is matched against.
func (u *Update) Topics() []string {
	topics := make([]string, 0, len(u.AlternateTopics)+1)
	topics = append(topics, u.CanonicalTopic)
	topics = append(topics, u.AlternateTopics...)
	return topics
}

// NewID mints a URN-formatted UUID v4, the default id assigned to a
// published update when the client did not supply one.
func NewID() string {
	return "urn:uuid:" + uuid.NewString()
}
