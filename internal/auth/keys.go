package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// Role distinguishes the publisher and subscriber key configuration
// groups, which spec §4.F allows to be configured independently.
type Role int

const (
	RolePublisher Role = iota
	RoleSubscriber
)

// ErrAmbiguousKeyConfig is returned when more than one of the four
// mutually exclusive key-configuration groups (shared JWK, separate
// publisher/subscriber JWKs, shared JWK-Set URL, separate
// publisher/subscriber JWK-Set URLs) is populated at once.
var ErrAmbiguousKeyConfig = errors.New("auth: key configuration groups are mutually exclusive")

// KeyConfig is the resolved (already layered/merged) key configuration
// handed to NewKeyResolver. Exactly one of the following groups must
// be non-empty: {JWK}, {PublisherJWK, SubscriberJWK}, {JWKSURL},
// {PublisherJWKSURL, SubscriberJWKSURL}.
type KeyConfig struct {
	JWK []byte // raw JWK JSON, used for both roles

	PublisherJWK  []byte
	SubscriberJWK []byte

	JWKSURL string // shared JWK-Set URL, used for both roles

	PublisherJWKSURL  string
	SubscriberJWKSURL string
}

// Validate enforces the mutual exclusion spec §4.F requires of the
// configuration layer: exactly one key-resolution strategy (shared or
// separate publisher/subscriber, static JWK or JWK-Set URL) may be set.
func (c KeyConfig) Validate() error {
	groups := 0
	if len(c.JWK) > 0 {
		groups++
	}
	if len(c.PublisherJWK) > 0 || len(c.SubscriberJWK) > 0 {
		groups++
	}
	if c.JWKSURL != "" {
		groups++
	}
	if c.PublisherJWKSURL != "" || c.SubscriberJWKSURL != "" {
		groups++
	}
	if groups > 1 {
		return ErrAmbiguousKeyConfig
	}
	if groups == 0 {
		return fmt.Errorf("auth: no key configuration supplied")
	}
	return nil
}

// KeyResolver resolves the verification key set for a given role.
type KeyResolver interface {
	// Resolve returns the currently cached key set for role.
	Resolve(ctx context.Context, role Role) (jwk.Set, error)
	// Refresh re-fetches the key set for role, e.g. after a
	// verification failure that might indicate key rotation.
	Refresh(ctx context.Context, role Role) error
}

// NewKeyResolver builds the KeyResolver for a validated KeyConfig. For
// the static-JWK groups this parses the key material once; for the
// JWK-Set-URL groups, it fetches eagerly (Fetch below) so that startup
// failure can be treated as fatal, per spec §7.
func NewKeyResolver(ctx context.Context, cfg KeyConfig) (KeyResolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch {
	case len(cfg.JWK) > 0:
		set, err := parseKeySet(cfg.JWK)
		if err != nil {
			return nil, err
		}
		return &staticResolver{publisher: set, subscriber: set}, nil

	case len(cfg.PublisherJWK) > 0 || len(cfg.SubscriberJWK) > 0:
		pub, err := parseKeySet(cfg.PublisherJWK)
		if err != nil {
			return nil, err
		}
		sub, err := parseKeySet(cfg.SubscriberJWK)
		if err != nil {
			return nil, err
		}
		return &staticResolver{publisher: pub, subscriber: sub}, nil

	case cfg.JWKSURL != "":
		r := &urlResolver{publisherURL: cfg.JWKSURL, subscriberURL: cfg.JWKSURL}
		if err := r.Fetch(ctx); err != nil {
			return nil, fmt.Errorf("auth: startup jwk-set fetch: %w", err)
		}
		return r, nil

	default: // PublisherJWKSURL / SubscriberJWKSURL
		r := &urlResolver{publisherURL: cfg.PublisherJWKSURL, subscriberURL: cfg.SubscriberJWKSURL}
		if err := r.Fetch(ctx); err != nil {
			return nil, fmt.Errorf("auth: startup jwk-set fetch: %w", err)
		}
		return r, nil
	}
}

// parseKeySet accepts either a single JWK object or a JWK-Set JSON
// document and normalizes it to a jwk.Set.
func parseKeySet(raw []byte) (jwk.Set, error) {
	if len(raw) == 0 {
		return jwk.NewSet(), nil
	}
	if set, err := jwk.Parse(raw); err == nil {
		return set, nil
	}
	key, err := jwk.ParseKey(raw)
	if err != nil {
		return nil, fmt.Errorf("auth: parse jwk: %w", err)
	}
	set := jwk.NewSet()
	_ = set.AddKey(key)
	return set, nil
}

// staticResolver serves pre-parsed key material; Refresh is a no-op
// since there is nothing remote to re-fetch.
type staticResolver struct {
	publisher  jwk.Set
	subscriber jwk.Set
}

func (r *staticResolver) Resolve(ctx context.Context, role Role) (jwk.Set, error) {
	if role == RolePublisher {
		return r.publisher, nil
	}
	return r.subscriber, nil
}

func (r *staticResolver) Refresh(ctx context.Context, role Role) error { return nil }

// urlResolver fetches each role's JWK-Set from its configured URL and
// caches it; Refresh re-fetches, used on verification failure to pick
// up key rotation per spec §4.F.
type urlResolver struct {
	publisherURL  string
	subscriberURL string

	mu         sync.RWMutex
	publisher  jwk.Set
	subscriber jwk.Set
}

func (r *urlResolver) Fetch(ctx context.Context) error {
	if err := r.Refresh(ctx, RolePublisher); err != nil {
		return err
	}
	if r.subscriberURL == r.publisherURL {
		r.mu.Lock()
		r.subscriber = r.publisher
		r.mu.Unlock()
		return nil
	}
	return r.Refresh(ctx, RoleSubscriber)
}

func (r *urlResolver) Resolve(ctx context.Context, role Role) (jwk.Set, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if role == RolePublisher {
		if r.publisher == nil {
			return nil, fmt.Errorf("auth: publisher jwk-set not yet fetched")
		}
		return r.publisher, nil
	}
	if r.subscriber == nil {
		return nil, fmt.Errorf("auth: subscriber jwk-set not yet fetched")
	}
	return r.subscriber, nil
}

func (r *urlResolver) Refresh(ctx context.Context, role Role) error {
	url := r.publisherURL
	if role == RoleSubscriber {
		url = r.subscriberURL
	}

	set, err := jwk.Fetch(ctx, url)
	if err != nil {
		return fmt.Errorf("auth: fetch jwk-set %s: %w", url, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if role == RolePublisher {
		r.publisher = set
	} else {
		r.subscriber = set
	}
	return nil
}
