package update

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

// Sentinel errors returned by BuildFromForm; the server layer maps
// these onto the MalformedRequest error kind.
var (
	ErrNoTopic      = errors.New("update: at least one topic field is required")
	ErrInvalidID    = errors.New("update: id must be an absolute IRI")
	ErrInvalidRetry = errors.New("update: retry must be a non-negative integer")
)

// FormValues is the minimal view of a parsed publish form this package
// needs; FromURLValues adapts a net/url.Values to it.
type FormValues interface {
	Get(key string) string
	// Values returns every value submitted for key, preserving order.
	Values(key string) []string
}

// urlValues adapts url.Values (which has no multi-value getter of its
// own beyond map access) to FormValues.
type urlValues struct{ v url.Values }

func (u urlValues) Get(key string) string    { return u.v.Get(key) }
func (u urlValues) Values(key string) []string { return u.v[key] }

// FromURLValues wraps a decoded url.Values as FormValues.
func FromURLValues(v url.Values) FormValues { return urlValues{v} }

// BuildFromForm reads the publish form fields described in spec §4.A:
// one or more `topic` fields (first is canonical, rest are alternate),
// optional `data`, `id`, `type`, `retry`, and `private`. When `id` is
// absent a fresh urn:uuid is minted.
func BuildFromForm(form FormValues) (*Update, error) {
	topics := form.Values("topic")
	if len(topics) == 0 || topics[0] == "" {
		return nil, ErrNoTopic
	}

	u := &Update{
		CanonicalTopic:  topics[0],
		AlternateTopics: append([]string(nil), topics[1:]...),
		Data:            form.Get("data"),
		Type:            form.Get("type"),
	}

	if id := form.Get("id"); id != "" {
		parsed, err := url.Parse(id)
		if err != nil || !parsed.IsAbs() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
		}
		u.ID = id
	} else {
		u.ID = NewID()
	}

	if retry := form.Get("retry"); retry != "" {
		n, err := strconv.Atoi(retry)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRetry, retry)
		}
		u.Retry = &n
	}

	if private := form.Get("private"); private != "" {
		u.Private = true
	}

	return u, nil
}

// ToPublishForm renders an Update back into the url.Values shape a
// publish POST would have carried, the inverse of BuildFromForm used
// to round-trip an Update through the wire encoding in tests.
func ToPublishForm(u *Update) url.Values {
	v := url.Values{}
	v["topic"] = append([]string{u.CanonicalTopic}, u.AlternateTopics...)
	if u.Data != "" {
		v.Set("data", u.Data)
	}
	if u.Type != "" {
		v.Set("type", u.Type)
	}
	if u.Retry != nil {
		v.Set("retry", strconv.Itoa(*u.Retry))
	}
	if u.Private {
		v.Set("private", "1")
	}
	v.Set("id", u.ID)
	return v
}
