package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	cachegate "github.com/eugener/cachegate/internal"
	"github.com/eugener/cachegate/internal/cache"
	"github.com/eugener/cachegate/internal/telemetry"
	"github.com/eugener/cachegate/internal/upstream"
)

// Forwarder sends a request to the origin and returns its buffered response.
type Forwarder interface {
	Forward(ctx context.Context, r *http.Request) (*upstream.Response, error)
	// Backend returns the origin authority reported in X-Proxy-Backend.
	Backend() string
}

// Policy is the caching policy, resolved once at startup.
type Policy struct {
	Mode         cachegate.CredentialMode
	TTL          time.Duration
	BypassIfAuth bool // never cache requests that carry Authorization
	Coalesce     bool // collapse concurrent GET misses per key onto one origin call
}

// Result is the response to send to the client.
type Result struct {
	Status int
	Header http.Header
	Body   []byte
	Cache  cachegate.CacheStatus
}

// ProxyService decides, per request, whether to answer from the cache or
// forward to the origin, and whether a forwarded response is stored.
type ProxyService struct {
	store   cache.Store
	fwd     Forwarder
	policy  Policy
	now     func() time.Time
	metrics *telemetry.Metrics
	flights singleflight.Group
}

// Option configures a ProxyService.
type Option func(*ProxyService)

// WithClock overrides the time source used to stamp entry expiry.
func WithClock(now func() time.Time) Option {
	return func(ps *ProxyService) { ps.now = now }
}

// WithMetrics records cache and origin metrics on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(ps *ProxyService) { ps.metrics = m }
}

// NewProxyService returns a ProxyService over the given store and forwarder.
func NewProxyService(store cache.Store, fwd Forwarder, policy Policy, opts ...Option) *ProxyService {
	ps := &ProxyService{store: store, fwd: fwd, policy: policy, now: time.Now}
	for _, opt := range opts {
		opt(ps)
	}
	return ps
}

// Policy returns the active caching policy.
func (ps *ProxyService) Policy() Policy { return ps.policy }

// Serve produces the response for r. Only GET requests consult the cache.
// Everything else, and every GET without a live entry, is forwarded.
// Forwarding failures are returned wrapped in cachegate.ErrUpstreamUnavailable
// and leave the cache untouched.
func (ps *ProxyService) Serve(ctx context.Context, r *http.Request) (*Result, error) {
	if r.URL == nil || r.URL.Opaque != "" {
		return nil, fmt.Errorf("%w: request URL has no path", cachegate.ErrBadRequest)
	}

	isGet := r.Method == http.MethodGet
	key := cache.KeyForRequest(r, ps.policy.Mode)

	if isGet {
		if e, ok := ps.store.Get(ctx, key); ok {
			ps.countLookup(cachegate.CacheHit)
			slog.LogAttrs(ctx, slog.LevelDebug, "cache hit",
				slog.String("key", string(key)),
			)
			return hitResult(e), nil
		}
	}

	if isGet && ps.policy.Coalesce && !ps.bypass(r) {
		return ps.coalesced(ctx, r, key)
	}

	return ps.forward(ctx, r, key)
}

// coalesced joins the in-flight origin call for key, starting one if none
// exists. The shared call is detached from the starting caller's
// cancellation and bounded by the origin client timeout; each caller only
// waits on its own ctx.
func (ps *ProxyService) coalesced(ctx context.Context, r *http.Request, key cache.Key) (*Result, error) {
	ch := ps.flights.DoChan(string(key), func() (any, error) {
		return ps.forward(context.WithoutCancel(ctx), r, key)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", cachegate.ErrUpstreamUnavailable, context.Cause(ctx))
	case out := <-ch:
		if out.Err != nil {
			return nil, out.Err
		}
		res := out.Val.(*Result)
		if out.Shared {
			// Each caller writes its own header map.
			cp := *res
			cp.Header = res.Header.Clone()
			res = &cp
		}
		return res, nil
	}
}

// forward calls the origin and applies the populate decision.
func (ps *ProxyService) forward(ctx context.Context, r *http.Request, key cache.Key) (*Result, error) {
	start := ps.now()
	resp, err := ps.fwd.Forward(ctx, r)
	if ps.metrics != nil {
		ps.metrics.UpstreamDuration.WithLabelValues(r.Method).Observe(ps.now().Sub(start).Seconds())
	}
	if err != nil {
		if ps.metrics != nil {
			ps.metrics.UpstreamErrors.Inc()
		}
		return nil, err
	}

	header := resp.Header
	if header == nil {
		header = make(http.Header)
	}
	header[cachegate.HeaderBackend] = []string{ps.fwd.Backend()}

	status := cachegate.CacheMiss
	switch {
	case ps.bypass(r):
		status = cachegate.CacheBypass
	case r.Method == http.MethodGet && resp.Status == http.StatusOK && ctx.Err() == nil:
		stored := header.Clone()
		delete(stored, cachegate.HeaderCache)
		ps.store.Set(ctx, key, &cachegate.Entry{
			Status:    resp.Status,
			Header:    stored,
			Body:      resp.Body,
			ExpiresAt: ps.now().Add(ps.policy.TTL),
		})
		if ps.metrics != nil {
			ps.metrics.CacheStores.Inc()
		}
		slog.LogAttrs(ctx, slog.LevelDebug, "cache store",
			slog.String("key", string(key)),
			slog.Duration("ttl", ps.policy.TTL),
		)
	}
	header[cachegate.HeaderCache] = []string{string(status)}
	ps.countLookup(status)

	return &Result{Status: resp.Status, Header: header, Body: resp.Body, Cache: status}, nil
}

// bypass reports whether r must never be cached under the bypass policy.
func (ps *ProxyService) bypass(r *http.Request) bool {
	return ps.policy.BypassIfAuth && r.Header.Get("Authorization") != ""
}

func (ps *ProxyService) countLookup(s cachegate.CacheStatus) {
	if ps.metrics != nil {
		ps.metrics.CacheLookups.WithLabelValues(string(s)).Inc()
	}
}

// hitResult copies e's header so the stored entry is never mutated.
func hitResult(e *cachegate.Entry) *Result {
	header := e.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header[cachegate.HeaderCache] = []string{string(cachegate.CacheHit)}
	return &Result{Status: e.Status, Header: header, Body: e.Body, Cache: cachegate.CacheHit}
}
