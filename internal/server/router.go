// Package server wires the hub's two handlers onto the well-known
// Mercure URL behind a chi router, applying the security-header
// middleware and the 404/405 handling spec §4.I requires.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mercure-hub/hub/internal/auth"
	"github.com/mercure-hub/hub/internal/config"
	"github.com/mercure-hub/hub/internal/hub"
	"github.com/mercure-hub/hub/internal/logging"
)

// WellKnownPath is the fixed Mercure endpoint (RFC 5785).
const WellKnownPath = "/.well-known/mercure"

// NewRouter builds the complete chi router: subscribe on GET, publish
// on POST, both at WellKnownPath, plus the shared security headers and
// 404/405 handling.
func NewRouter(cfg config.Configuration, h *hub.Hub, resolver auth.KeyResolver, logger logging.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(securityHeaders("mercure-hub"))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		Render(w, req, newError(KindNotFound, "no route matches"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Allow", "GET, POST")
		Render(w, req, newError(KindMethodNotAllowed, "method not allowed"))
	})

	subHandler := &SubscribeHandler{Config: cfg, Hub: h, Resolver: resolver, Logger: logger}
	pubHandler := &PublishHandler{Config: cfg, Hub: h, Resolver: resolver, Logger: logger}

	r.Get(WellKnownPath, subHandler.ServeHTTP)
	r.Post(WellKnownPath, pubHandler.ServeHTTP)

	return r
}
