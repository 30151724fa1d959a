package update

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFromForm_CanonicalAndAlternateTopics(t *testing.T) {
	form := url.Values{
		"topic": {"https://example.com/a", "https://example.com/b"},
		"data":  {"hello"},
	}

	u, err := BuildFromForm(FromURLValues(form))
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", u.CanonicalTopic)
	assert.Equal(t, []string{"https://example.com/b"}, u.AlternateTopics)
	assert.Equal(t, "hello", u.Data)
	assert.False(t, u.Private)
	assert.Contains(t, u.ID, "urn:uuid:")
}

func TestBuildFromForm_NoTopicRejected(t *testing.T) {
	_, err := BuildFromForm(FromURLValues(url.Values{}))
	assert.ErrorIs(t, err, ErrNoTopic)
}

func TestBuildFromForm_InvalidRetryRejected(t *testing.T) {
	form := url.Values{"topic": {"https://example.com/a"}, "retry": {"-1"}}
	_, err := BuildFromForm(FromURLValues(form))
	assert.ErrorIs(t, err, ErrInvalidRetry)

	form["retry"] = []string{"not-a-number"}
	_, err = BuildFromForm(FromURLValues(form))
	assert.ErrorIs(t, err, ErrInvalidRetry)
}

func TestBuildFromForm_InvalidIDRejected(t *testing.T) {
	form := url.Values{"topic": {"https://example.com/a"}, "id": {"not-an-iri"}}
	_, err := BuildFromForm(FromURLValues(form))
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestBuildFromForm_PrivateFlagTruthyWhenPresent(t *testing.T) {
	form := url.Values{"topic": {"https://example.com/a"}, "private": {"on"}}
	u, err := BuildFromForm(FromURLValues(form))
	require.NoError(t, err)
	assert.True(t, u.Private)
}

func TestRoundTrip_BuildThenToPublishForm(t *testing.T) {
	retry := 2000
	original := &Update{
		ID:              "https://example.com/events/1",
		CanonicalTopic:  "https://example.com/a",
		AlternateTopics: []string{"https://example.com/b"},
		Data:            "payload",
		Type:            "message",
		Retry:           &retry,
		Private:         true,
	}

	form := ToPublishForm(original)
	roundTripped, err := BuildFromForm(FromURLValues(form))
	require.NoError(t, err)

	assert.Equal(t, original.CanonicalTopic, roundTripped.CanonicalTopic)
	assert.Equal(t, original.AlternateTopics, roundTripped.AlternateTopics)
	assert.Equal(t, original.Data, roundTripped.Data)
	assert.Equal(t, original.Type, roundTripped.Type)
	require.NotNil(t, roundTripped.Retry)
	assert.Equal(t, *original.Retry, *roundTripped.Retry)
	assert.Equal(t, original.Private, roundTripped.Private)
}

func TestUpdate_TopicsReturnsCanonicalThenAlternates(t *testing.T) {
	u := &Update{CanonicalTopic: "a", AlternateTopics: []string{"b", "c"}}
	assert.Equal(t, []string{"a", "b", "c"}, u.Topics())
}
