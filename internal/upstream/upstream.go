// Package upstream forwards proxied requests to the single origin server.
//
// This file provides NewTransport for HTTP client setup and Forwarder, which
// rewrites a client request for the origin and buffers the origin response.
package upstream

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/dnscache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	cachegate "github.com/eugener/cachegate/internal"
	"github.com/eugener/cachegate/internal/telemetry"
)

// NewTransport returns a tuned *http.Transport with connection pooling and
// optional DNS caching. The origin is plain HTTP/1.1, so HTTP/2 is not forced.
func NewTransport(resolver *dnscache.Resolver) *http.Transport {
	t := &http.Transport{
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     200,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	if resolver != nil {
		t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(ips[0], port))
		}
	}
	return t
}

// NewClient returns an origin client over NewTransport. Redirects are
// returned to the caller as-is, never followed. A zero timeout means none.
func NewClient(resolver *dnscache.Resolver, timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: NewTransport(resolver),
		Timeout:   timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// hopByHopHeaders must not be forwarded between client and origin, nor stored.
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Proxy-Connection":    {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// IsHopByHop reports whether the canonical header name is hop-by-hop.
func IsHopByHop(key string) bool {
	_, ok := hopByHopHeaders[key]
	return ok
}

// copyEndToEnd copies src into dst, skipping the fixed hop-by-hop set and
// every header the Connection header names (RFC 9110 section 7.6.1).
func copyEndToEnd(dst, src http.Header) {
	named := connectionTokens(src)
	for key, vals := range src {
		if IsHopByHop(key) {
			continue
		}
		if _, ok := named[key]; ok {
			continue
		}
		dst[key] = vals
	}
}

// connectionTokens returns the canonical header names listed in h's
// Connection values, or nil when there are none.
func connectionTokens(h http.Header) map[string]struct{} {
	vals := h["Connection"]
	if len(vals) == 0 {
		return nil
	}
	named := make(map[string]struct{})
	for _, v := range vals {
		for tok := range strings.SplitSeq(v, ",") {
			if tok = strings.TrimSpace(tok); tok != "" {
				named[http.CanonicalHeaderKey(tok)] = struct{}{}
			}
		}
	}
	return named
}

// Response is a fully buffered origin response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Forwarder sends requests to a fixed origin authority (host:port).
// It is safe for concurrent use.
type Forwarder struct {
	client    *http.Client
	authority string
	tracer    trace.Tracer
}

// New returns a Forwarder for the origin at host:port. A nil client selects
// NewClient(nil, 0).
func New(host string, port int, client *http.Client) *Forwarder {
	if client == nil {
		client = NewClient(nil, 0)
	}
	return &Forwarder{
		client:    client,
		authority: net.JoinHostPort(host, strconv.Itoa(port)),
		tracer:    telemetry.Tracer("cachegate/upstream"),
	}
}

// Backend returns the origin authority, e.g. "localhost:4502".
func (f *Forwarder) Backend() string { return f.authority }

// pingTimeout bounds a readiness dial when ctx has no earlier deadline.
const pingTimeout = 2 * time.Second

// Ping reports whether a TCP connection to the origin can be opened. It
// dials through the client's transport, so a DNS cache is honoured.
func (f *Forwarder) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	dial := (&net.Dialer{}).DialContext
	if t, ok := f.client.Transport.(*http.Transport); ok && t.DialContext != nil {
		dial = t.DialContext
	}
	conn, err := dial(ctx, "tcp", f.authority)
	if err != nil {
		return fmt.Errorf("%w: %w", cachegate.ErrUpstreamUnavailable, err)
	}
	return conn.Close()
}

// Forward replays r against the origin: same method, path, raw query,
// headers and body, with Host rewritten to the origin authority. The
// outbound request is bound to ctx, so a departed client abandons it.
// Any transport or body read failure is reported as
// cachegate.ErrUpstreamUnavailable.
func (f *Forwarder) Forward(ctx context.Context, r *http.Request) (*Response, error) {
	ctx, span := f.tracer.Start(ctx, "upstream.forward", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", r.Method),
		attribute.String("server.address", f.authority),
	)

	body := r.Body
	if r.ContentLength == 0 {
		body = nil
	}
	outReq, err := http.NewRequestWithContext(ctx, r.Method, "http://"+f.authority, body)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", cachegate.ErrBadRequest, err)
	}
	outReq.URL = &url.URL{
		Scheme:   "http",
		Host:     f.authority,
		Path:     r.URL.Path,
		RawPath:  r.URL.RawPath,
		RawQuery: r.URL.RawQuery,
	}
	outReq.Host = f.authority
	outReq.ContentLength = r.ContentLength

	copyEndToEnd(outReq.Header, r.Header)

	resp, err := f.client.Do(outReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, fmt.Errorf("%w: %w", cachegate.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read body failed")
		return nil, fmt.Errorf("%w: read response: %w", cachegate.ErrUpstreamUnavailable, err)
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	header := make(http.Header, len(resp.Header))
	copyEndToEnd(header, resp.Header)

	return &Response{Status: resp.StatusCode, Header: header, Body: data}, nil
}
