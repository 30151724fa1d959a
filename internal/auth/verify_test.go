package auth

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signHS256(t *testing.T, secret []byte, mercureClaim map[string]interface{}) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"mercure": mercureClaim,
	})
	token.Header["kid"] = "test-key"
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func TestVerify_ValidSubscriberToken(t *testing.T) {
	secret := "subscriber-secret"
	resolver, err := NewKeyResolver(context.Background(), KeyConfig{JWK: hmacJWK(t, secret)})
	require.NoError(t, err)

	tokenString := signHS256(t, []byte(secret), map[string]interface{}{
		"subscribe": []interface{}{"*"},
	})

	claims, err := Verify(context.Background(), resolver, RoleSubscriber, tokenString)
	require.NoError(t, err)
	assert.Equal(t, []string{"*"}, claims.Subscribe)
}

func TestVerify_WrongSecretRetriesThenFails(t *testing.T) {
	resolver, err := NewKeyResolver(context.Background(), KeyConfig{JWK: hmacJWK(t, "correct-secret")})
	require.NoError(t, err)

	tokenString := signHS256(t, []byte("wrong-secret"), map[string]interface{}{
		"subscribe": []interface{}{"*"},
	})

	_, err = Verify(context.Background(), resolver, RoleSubscriber, tokenString)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerify_MissingMercureClaimRejected(t *testing.T) {
	secret := "secret"
	resolver, err := NewKeyResolver(context.Background(), KeyConfig{JWK: hmacJWK(t, secret)})
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "someone"})
	token.Header["kid"] = "test-key"
	tokenString, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	_, err = Verify(context.Background(), resolver, RoleSubscriber, tokenString)
	assert.Error(t, err)
}

func TestVerify_PublisherAndSubscriberRolesIsolated(t *testing.T) {
	resolver, err := NewKeyResolver(context.Background(), KeyConfig{
		PublisherJWK:  hmacJWK(t, "pub-secret"),
		SubscriberJWK: hmacJWK(t, "sub-secret"),
	})
	require.NoError(t, err)

	pubToken := signHS256(t, []byte("pub-secret"), map[string]interface{}{"publish": []interface{}{"*"}})

	_, err = Verify(context.Background(), resolver, RolePublisher, pubToken)
	require.NoError(t, err)

	_, err = Verify(context.Background(), resolver, RoleSubscriber, pubToken)
	assert.Error(t, err)
}
