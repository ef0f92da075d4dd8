package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/eugener/cachegate/internal/app"
	"github.com/eugener/cachegate/internal/cache"
	"github.com/eugener/cachegate/internal/telemetry"
	"github.com/eugener/cachegate/internal/testutil"
)

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	store, err := cache.NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg, store.Len)

	h := New(Deps{
		Proxy:          app.NewProxyService(store, &testutil.FakeForwarder{}, app.Policy{TTL: time.Minute}, app.WithMetrics(metrics)),
		Metrics:        metrics,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	// Hit a proxied path first to generate metrics.
	for range 2 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/content/page.html", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("proxy: status = %d; body = %s", rec.Code, rec.Body.String())
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/_proxy/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: status = %d; body = %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	for _, name := range []string{
		"cachegate_requests_total",
		"cachegate_request_duration_seconds",
		"cachegate_cache_lookups_total",
		"cachegate_cache_entries",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics should contain %s", name)
		}
	}

	if got := promtest.ToFloat64(metrics.RequestsTotal.WithLabelValues("GET", "/*", "200")); got != 2 {
		t.Errorf("requests_total{GET,/*,200} = %v, want 2", got)
	}
}

func TestMetricsEndpointDisabled(t *testing.T) {
	t.Parallel()
	fwd := &testutil.FakeForwarder{}
	h := newHarness(t, fwd, app.Policy{})

	rec := h.do(http.MethodGet, "/_proxy/metrics", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if fwd.Calls() != 0 {
		t.Error("system path must not be forwarded")
	}
}
