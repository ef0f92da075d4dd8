// Package server implements the HTTP transport layer for the cachegate proxy.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eugener/cachegate/internal/app"
	"github.com/eugener/cachegate/internal/telemetry"
)

// systemPrefix is the path prefix served by the proxy itself and never
// forwarded to the origin.
const systemPrefix = "/_proxy"

// ReadyChecker reports whether the system is ready to serve traffic.
type ReadyChecker func(ctx context.Context) error

// Purger drops every cached response.
type Purger interface {
	Purge(ctx context.Context)
}

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Proxy          *app.ProxyService
	Cache          Purger             // nil = purge endpoint disabled
	ReadyCheck     ReadyChecker       // nil = always ready
	Metrics        *telemetry.Metrics // nil = no request metrics
	MetricsHandler http.Handler       // nil = no /_proxy/metrics
}

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	s := &server{deps: deps}

	r := chi.NewRouter()

	r.Use(s.recovery, s.requestID, s.observe)

	// System endpoints
	r.Route(systemPrefix, func(r chi.Router) {
		r.Get("/healthz", s.handleHealthz)
		r.Get("/readyz", s.handleReadyz)
		if deps.MetricsHandler != nil {
			r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
		}
		if deps.Cache != nil {
			r.Delete("/cache", s.handlePurge)
		}
	})

	// Everything else goes to the origin, through the cache.
	r.HandleFunc("/*", s.handleProxy)

	return r
}

type server struct {
	deps Deps
}
