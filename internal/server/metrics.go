package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	cachegate "github.com/eugener/cachegate/internal"
	"github.com/eugener/cachegate/internal/telemetry"
)

// statusLabels holds pre-rendered status code labels.
var statusLabels = func() (s [600]string) {
	for i := range s {
		s[i] = strconv.Itoa(i)
	}
	return s
}()

// noCacheLabel labels requests that never reached the proxy handler
// (system endpoints, 400s, 502s).
const noCacheLabel = "NONE"

func statusLabel(code int) string {
	if code >= 0 && code < len(statusLabels) {
		return statusLabels[code]
	}
	return strconv.Itoa(code)
}

// recordRequest updates the per-request collectors.
func recordRequest(m *telemetry.Metrics, r *http.Request, status int, outcome cachegate.CacheStatus, elapsed time.Duration) {
	cacheLabel := string(outcome)
	if cacheLabel == "" {
		cacheLabel = noCacheLabel
	}
	m.RequestsTotal.WithLabelValues(r.Method, routePattern(r), statusLabel(status)).Inc()
	m.RequestDuration.WithLabelValues(r.Method, cacheLabel).Observe(elapsed.Seconds())
}

// routePattern labels by chi route pattern, never the raw path, so every
// proxied URL shares the "/*" series.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
