// Package telemetry provides observability primitives for the cachegate proxy.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the proxy.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ActiveRequests   prometheus.Gauge
	UpstreamDuration *prometheus.HistogramVec
	UpstreamErrors   prometheus.Counter
	CacheLookups     *prometheus.CounterVec
	CacheStores      prometheus.Counter
	CacheEntries     prometheus.GaugeFunc
}

// NewMetrics creates and registers all metrics with the given registerer.
// entries reports the current cache entry count; nil reports zero.
func NewMetrics(reg prometheus.Registerer, entries func() int) *Metrics {
	if entries == nil {
		entries = func() int { return 0 }
	}
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cachegate",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "cachegate",
			Name:                            "request_duration_seconds",
			Help:                            "HTTP request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "cache"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cachegate",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "cachegate",
			Name:                            "upstream_duration_seconds",
			Help:                            "Origin round trip duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method"}),

		UpstreamErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cachegate",
			Name:      "upstream_errors_total",
			Help:      "Total origin requests that failed without a response.",
		}),

		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cachegate",
			Name:      "cache_lookups_total",
			Help:      "Total proxied requests by cache outcome.",
		}, []string{"result"}),

		CacheStores: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cachegate",
			Name:      "cache_stores_total",
			Help:      "Total responses written to the cache.",
		}),

		CacheEntries: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "cachegate",
			Name:      "cache_entries",
			Help:      "Estimated number of cache entries, including expired ones not yet read.",
		}, func() float64 { return float64(entries()) }),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveRequests,
		m.UpstreamDuration,
		m.UpstreamErrors,
		m.CacheLookups,
		m.CacheStores,
		m.CacheEntries,
	)

	return m
}
