// Package config defines the hub's runtime Configuration and its
// validation: a struct-tag-annotated config style (json/yaml/env tags,
// a hand-written Validate method).
package config

import (
	"fmt"
	"time"

	"github.com/mercure-hub/hub/internal/auth"
)

// Configuration is the hub's complete runtime configuration, loaded by
// cmd/mercure-hub from command-line flags and handed to every internal
// package that needs it.
type Configuration struct {
	// Addr is the listen address, e.g. ":3000".
	Addr string `json:"addr" yaml:"addr" env:"ADDR"`

	// TransportDSN selects and configures the Transport: "memory://"
	// or "redis://host:port/db".
	TransportDSN string `json:"transportDsn" yaml:"transportDsn" env:"TRANSPORT_DSN"`

	// MemoryRetention bounds the in-memory transport's ring buffer
	// when TransportDSN selects "memory://". Zero means unbounded.
	MemoryRetention int `json:"memoryRetention" yaml:"memoryRetention" env:"MEMORY_RETENTION"`

	// Keys is the JWT key configuration; exactly one of its four
	// mutually exclusive groups must be populated (see
	// auth.KeyConfig.Validate).
	Keys auth.KeyConfig `json:"keys" yaml:"keys"`

	// AnonymousAccess allows tokenless subscription when true.
	AnonymousAccess bool `json:"anonymousAccess" yaml:"anonymousAccess" env:"ANONYMOUS_ACCESS"`

	// AllowedOrigins gates cross-origin subscribe/publish requests;
	// "*" permits any origin.
	AllowedOrigins []string `json:"allowedOrigins" yaml:"allowedOrigins" env:"ALLOWED_ORIGINS"`

	// QueryAuthorizationEnabled opts in to the ?authorization= token
	// source (disabled by default).
	QueryAuthorizationEnabled bool `json:"queryAuthorizationEnabled" yaml:"queryAuthorizationEnabled" env:"QUERY_AUTHORIZATION_ENABLED"`

	// CookieName overrides the default "mercureAuthorization" cookie.
	CookieName string `json:"cookieName" yaml:"cookieName" env:"COOKIE_NAME"`

	// HeartbeatInterval is the per-subscriber heartbeat period; zero
	// disables heartbeats entirely.
	HeartbeatInterval time.Duration `json:"heartbeatInterval" yaml:"heartbeatInterval" env:"HEARTBEAT_INTERVAL"`

	// MaxSubscribers caps total concurrent subscribers; zero means
	// unbounded. Per spec §5's implementation-defined resource limits.
	MaxSubscribers int `json:"maxSubscribers" yaml:"maxSubscribers" env:"MAX_SUBSCRIBERS"`

	// MaxTopicsPerSubscription caps the number of `topic` query
	// parameters a single subscribe request may register; zero means
	// unbounded.
	MaxTopicsPerSubscription int `json:"maxTopicsPerSubscription" yaml:"maxTopicsPerSubscription" env:"MAX_TOPICS_PER_SUBSCRIPTION"`

	// ShutdownTimeout bounds how long graceful shutdown waits for
	// in-flight requests to drain before forcing the HTTP server closed;
	// the Transport is closed after that in either case.
	ShutdownTimeout time.Duration `json:"shutdownTimeout" yaml:"shutdownTimeout" env:"SHUTDOWN_TIMEOUT"`
}

// Default returns a Configuration with conservative defaults: no
// anonymous access, the default cookie name, query-param auth
// disabled, and a 5-second shutdown grace period.
func Default() Configuration {
	return Configuration{
		Addr:            ":3000",
		TransportDSN:    "memory://",
		CookieName:      "mercureAuthorization",
		ShutdownTimeout: 5 * time.Second,
	}
}

// Validate checks cross-field invariants the zero-value struct tags
// can't express: a non-empty Addr and TransportDSN, and a valid key
// configuration.
func (c Configuration) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: addr must not be empty")
	}
	if c.TransportDSN == "" {
		return fmt.Errorf("config: transportDsn must not be empty")
	}
	if err := c.Keys.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.MemoryRetention < 0 {
		return fmt.Errorf("config: memoryRetention must not be negative")
	}
	if c.MaxSubscribers < 0 {
		return fmt.Errorf("config: maxSubscribers must not be negative")
	}
	if c.MaxTopicsPerSubscription < 0 {
		return fmt.Errorf("config: maxTopicsPerSubscription must not be negative")
	}
	return nil
}

// OriginAllowed reports whether origin is permitted by AllowedOrigins,
// per spec §4.F's "non-empty, absent from the list, and '*' absent" 403
// rule. An empty origin (no Origin/Referer header present) is always
// allowed; the check only fires once an origin is actually supplied.
func (c Configuration) OriginAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// ExtractionConfig projects the fields auth.ExtractToken needs out of
// the full Configuration.
func (c Configuration) ExtractionConfig() auth.ExtractionConfig {
	return auth.ExtractionConfig{
		QueryAuthorizationEnabled: c.QueryAuthorizationEnabled,
		CookieName:                c.CookieName,
	}
}
