package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/rsa"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// ErrTokenInvalid wraps any signature, expiry, or structural failure
// while verifying a token; the server layer maps it onto Forbidden.
var ErrTokenInvalid = fmt.Errorf("auth: token is invalid")

// Verify parses and verifies tokenString against the key resolver for
// role, retrying once against a freshly refreshed key set if the first
// attempt fails — per spec §4.F's "refreshed on verification failure"
// rotation contract — then extracts and returns its mercure claim.
func Verify(ctx context.Context, resolver KeyResolver, role Role, tokenString string) (*MercureClaims, error) {
	claims, err := verifyOnce(ctx, resolver, role, tokenString)
	if err == nil {
		return claims, nil
	}

	if refreshErr := resolver.Refresh(ctx, role); refreshErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, err = verifyOnce(ctx, resolver, role, tokenString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return claims, nil
}

func verifyOnce(ctx context.Context, resolver KeyResolver, role Role, tokenString string) (*MercureClaims, error) {
	set, err := resolver.Resolve(ctx, role)
	if err != nil {
		return nil, err
	}

	token, err := jwt.Parse(tokenString, keyFuncFor(set), jwt.WithValidMethods([]string{
		"HS256", "HS384", "HS512",
		"RS256", "RS384", "RS512",
		"ES256", "ES384", "ES512",
	}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}

	return extractMercureClaims(mapClaims)
}

// keyFuncFor adapts a jwx jwk.Set to the golang-jwt Keyfunc contract,
// selecting the signing key by the token header's `kid` when present
// and falling back to the set's sole key otherwise.
func keyFuncFor(set jwk.Set) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		var key jwk.Key
		if kid, ok := token.Header["kid"].(string); ok && kid != "" {
			found, ok := set.LookupKeyID(kid)
			if !ok {
				return nil, fmt.Errorf("auth: no key for kid %q", kid)
			}
			key = found
		} else if set.Len() == 1 {
			key, _ = set.Key(0)
		} else {
			return nil, fmt.Errorf("auth: token has no kid and key set is ambiguous")
		}

		return rawKey(key)
	}
}

// rawKey materializes the concrete crypto key (HMAC secret, RSA/ECDSA
// public key) jwx parsed out of the JWK, for golang-jwt to verify
// against.
func rawKey(key jwk.Key) (interface{}, error) {
	switch key.KeyType() {
	case "oct":
		var raw []byte
		if err := key.Raw(&raw); err != nil {
			return nil, err
		}
		return raw, nil
	case "RSA":
		var raw rsa.PublicKey
		if err := key.Raw(&raw); err != nil {
			return nil, err
		}
		return &raw, nil
	case "EC":
		var raw ecdsa.PublicKey
		if err := key.Raw(&raw); err != nil {
			return nil, err
		}
		return &raw, nil
	default:
		return nil, fmt.Errorf("auth: unsupported key type %q", key.KeyType())
	}
}
