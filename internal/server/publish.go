package server

import (
	"context"
	"net/http"

	"github.com/mercure-hub/hub/internal/auth"
	"github.com/mercure-hub/hub/internal/config"
	"github.com/mercure-hub/hub/internal/hub"
	"github.com/mercure-hub/hub/internal/logging"
	"github.com/mercure-hub/hub/internal/selector"
	"github.com/mercure-hub/hub/internal/update"
)

// PublishHandler implements POST /.well-known/mercure, spec §4.H.
type PublishHandler struct {
	Config   config.Configuration
	Hub      *hub.Hub
	Resolver auth.KeyResolver
	Logger   logging.Logger
}

func (h *PublishHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if origin := originOf(r); !h.Config.OriginAllowed(origin) {
		Render(w, r, newError(KindForbidden, "origin not allowed"))
		return
	}

	publishSelectors, err := h.authorize(ctx, r)
	if err != nil {
		Render(w, r, err)
		return
	}

	ct := r.Header.Get("Content-Type")
	if mediaType(ct) != "application/x-www-form-urlencoded" {
		w.Header().Set("Accept", "application/x-www-form-urlencoded")
		Render(w, r, newError(KindUnsupportedMediaType, "content-type must be application/x-www-form-urlencoded"))
		return
	}

	if err := r.ParseForm(); err != nil {
		Render(w, r, wrapError(KindMalformedRequest, "malformed form body", err))
		return
	}

	u, err := update.BuildFromForm(update.FromURLValues(r.PostForm))
	if err != nil {
		Render(w, r, wrapError(KindMalformedRequest, "malformed publication", err))
		return
	}

	if r.PostForm.Get("id") != "" {
		if !matchesAny(publishSelectors, u.ID) {
			Render(w, r, newError(KindForbidden, "publisher token does not authorize the supplied id"))
			return
		}
	}

	// Strictest reading of the under-specified source (spec §9): every
	// published topic, not merely one, must be covered by some
	// publisher selector.
	for _, topic := range u.Topics() {
		if !matchesAny(publishSelectors, topic) {
			Render(w, r, newError(KindForbidden, "publisher token does not authorize all published topics"))
			return
		}
	}

	if err := h.Hub.Publish(ctx, u); err != nil {
		Render(w, r, wrapError(KindInternal, "publish failed", err))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(u.ID))
}

// authorize requires a valid, non-anonymous publisher token carrying a
// `mercure.publish` selector list, per spec §4.H step 1.
func (h *PublishHandler) authorize(ctx context.Context, r *http.Request) ([]*selector.Selector, error) {
	tokenString := auth.ExtractToken(r, h.Config.ExtractionConfig())
	if tokenString == "" {
		return nil, newError(KindAuthRequired, "authorization required")
	}

	claims, err := auth.Verify(ctx, h.Resolver, auth.RolePublisher, tokenString)
	if err != nil {
		return nil, wrapError(KindForbidden, "invalid token", err)
	}

	selectors := make([]*selector.Selector, 0, len(claims.Publish))
	for _, raw := range claims.Publish {
		sel, err := selector.Compile(raw, r.URL)
		if err != nil {
			continue
		}
		selectors = append(selectors, sel)
	}
	if len(selectors) == 0 {
		return nil, newError(KindForbidden, "token carries no publish selectors")
	}
	return selectors, nil
}

func matchesAny(selectors []*selector.Selector, topics ...string) bool {
	for _, sel := range selectors {
		if sel.Match(topics) {
			return true
		}
	}
	return false
}

func originOf(r *http.Request) string {
	if o := r.Header.Get("Origin"); o != "" {
		return o
	}
	return r.Header.Get("Referer")
}

// mediaType strips any parameters (e.g. "; charset=...") from a
// Content-Type header value.
func mediaType(contentType string) string {
	for i, c := range contentType {
		if c == ';' {
			return contentType[:i]
		}
	}
	return contentType
}
