package auth

import (
	"net/http"
	"strings"
)

// ExtractionConfig configures where ExtractToken is willing to look,
// per spec §4.F.
type ExtractionConfig struct {
	// QueryAuthorizationEnabled opts in to reading ?authorization=...
	// (disabled by default: query strings end up in server logs).
	QueryAuthorizationEnabled bool
	// CookieName defaults to "mercureAuthorization" when empty.
	CookieName string
}

func (c ExtractionConfig) cookieName() string {
	if c.CookieName == "" {
		return "mercureAuthorization"
	}
	return c.CookieName
}

// ExtractToken implements spec §4.F's extraction order: the
// Authorization header wins outright if present (no fallback even if
// it turns out malformed); otherwise the opt-in query parameter;
// otherwise the configured cookie. Returns "" if none is found.
func ExtractToken(r *http.Request, cfg ExtractionConfig) string {
	if h := r.Header.Get("Authorization"); h != "" {
		const prefix = "Bearer "
		if strings.HasPrefix(h, prefix) {
			return strings.TrimPrefix(h, prefix)
		}
		return ""
	}

	if cfg.QueryAuthorizationEnabled {
		if tok := r.URL.Query().Get("authorization"); tok != "" {
			return tok
		}
	}

	if cookie, err := r.Cookie(cfg.cookieName()); err == nil {
		return cookie.Value
	}

	return ""
}
