package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// MercureClaims is the decoded `mercure` claim from spec §4.F: a JSON
// object carrying the token's publish/subscribe topic-selector lists
// and an opaque payload made available to handlers as the
// subscriber's authorization context.
type MercureClaims struct {
	Publish   []string
	Subscribe []string
	Payload   interface{}
}

// ErrMissingMercureClaim is returned when an otherwise valid,
// signature-verified token carries no `mercure` claim.
var ErrMissingMercureClaim = fmt.Errorf("auth: token is missing the required mercure claim")

// extractMercureClaims pulls the `mercure` claim out of a verified
// token's claim set.
func extractMercureClaims(claims jwt.MapClaims) (*MercureClaims, error) {
	raw, ok := claims["mercure"]
	if !ok {
		return nil, ErrMissingMercureClaim
	}

	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, ErrMissingMercureClaim
	}

	mc := &MercureClaims{Payload: obj["payload"]}
	if pub, ok := obj["publish"].([]interface{}); ok {
		mc.Publish = toStringSlice(pub)
	}
	if sub, ok := obj["subscribe"].([]interface{}); ok {
		mc.Subscribe = toStringSlice(sub)
	}
	return mc, nil
}

func toStringSlice(raw []interface{}) []string {
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
