package auth

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hmacJWK(t *testing.T, secret string) []byte {
	t.Helper()
	key, err := jwk.FromRaw([]byte(secret))
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, "test-key"))
	raw, err := json.Marshal(key)
	require.NoError(t, err)
	return raw
}

func TestKeyConfig_Validate_RejectsMultipleGroups(t *testing.T) {
	cfg := KeyConfig{JWK: []byte(`{}`), JWKSURL: "https://example.com/.well-known/jwks.json"}
	assert.ErrorIs(t, cfg.Validate(), ErrAmbiguousKeyConfig)
}

func TestKeyConfig_Validate_RejectsEmpty(t *testing.T) {
	assert.Error(t, KeyConfig{}.Validate())
}

func TestKeyConfig_Validate_AcceptsSingleSharedJWK(t *testing.T) {
	cfg := KeyConfig{JWK: []byte(`{"kty":"oct","k":"c2VjcmV0"}`)}
	assert.NoError(t, cfg.Validate())
}

func TestKeyConfig_Validate_AcceptsSeparatePublisherSubscriberJWK(t *testing.T) {
	cfg := KeyConfig{
		PublisherJWK:  []byte(`{"kty":"oct","k":"cHVi"}`),
		SubscriberJWK: []byte(`{"kty":"oct","k":"c3Vi"}`),
	}
	assert.NoError(t, cfg.Validate())
}

func TestNewKeyResolver_SharedStaticJWK(t *testing.T) {
	raw := hmacJWK(t, "shared-secret")
	resolver, err := NewKeyResolver(context.Background(), KeyConfig{JWK: raw})
	require.NoError(t, err)

	pub, err := resolver.Resolve(context.Background(), RolePublisher)
	require.NoError(t, err)
	sub, err := resolver.Resolve(context.Background(), RoleSubscriber)
	require.NoError(t, err)
	assert.Equal(t, pub, sub)
	assert.Equal(t, 1, pub.Len())
}

func TestNewKeyResolver_SeparateStaticJWKs(t *testing.T) {
	resolver, err := NewKeyResolver(context.Background(), KeyConfig{
		PublisherJWK:  hmacJWK(t, "pub-secret"),
		SubscriberJWK: hmacJWK(t, "sub-secret"),
	})
	require.NoError(t, err)

	pub, err := resolver.Resolve(context.Background(), RolePublisher)
	require.NoError(t, err)
	sub, err := resolver.Resolve(context.Background(), RoleSubscriber)
	require.NoError(t, err)
	assert.NotEqual(t, pub, sub)
}

func TestStaticResolver_RefreshIsNoop(t *testing.T) {
	resolver, err := NewKeyResolver(context.Background(), KeyConfig{JWK: hmacJWK(t, "secret")})
	require.NoError(t, err)
	assert.NoError(t, resolver.Refresh(context.Background(), RolePublisher))
}
