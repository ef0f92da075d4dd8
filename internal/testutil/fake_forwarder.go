// Package testutil provides configurable test fakes for proxy interfaces.
package testutil

import (
	"context"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eugener/cachegate/internal/upstream"
)

// ForwardedRequest records what a FakeForwarder received.
type ForwardedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// FakeForwarder is a configurable app.Forwarder for testing. It is safe for
// concurrent use.
type FakeForwarder struct {
	BackendAddr string
	ForwardFn   func(ctx context.Context, r *http.Request) (*upstream.Response, error)

	calls atomic.Int64
	mu    sync.Mutex
	seen  []ForwardedRequest
}

// Forward records the request and delegates to ForwardFn, or returns
// 200 "ok" when ForwardFn is nil.
func (f *FakeForwarder) Forward(ctx context.Context, r *http.Request) (*upstream.Response, error) {
	f.calls.Add(1)
	var body []byte
	if r.Body != nil {
		body, _ = io.ReadAll(r.Body)
	}
	f.mu.Lock()
	f.seen = append(f.seen, ForwardedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Header: r.Header.Clone(),
		Body:   body,
	})
	f.mu.Unlock()

	if f.ForwardFn != nil {
		return f.ForwardFn(ctx, r)
	}
	return &upstream.Response{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": {"text/plain"}},
		Body:   []byte("ok"),
	}, nil
}

// Backend returns BackendAddr, defaulting to "localhost:4502".
func (f *FakeForwarder) Backend() string {
	if f.BackendAddr == "" {
		return "localhost:4502"
	}
	return f.BackendAddr
}

// Calls returns the number of Forward invocations.
func (f *FakeForwarder) Calls() int { return int(f.calls.Load()) }

// Requests returns a copy of the recorded requests.
func (f *FakeForwarder) Requests() []ForwardedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ForwardedRequest, len(f.seen))
	copy(out, f.seen)
	return out
}

// Respond returns a ForwardFn that always answers with status and body.
// Each call gets a fresh header map.
func Respond(status int, body string) func(context.Context, *http.Request) (*upstream.Response, error) {
	return func(context.Context, *http.Request) (*upstream.Response, error) {
		return &upstream.Response{
			Status: status,
			Header: http.Header{"Content-Type": {"text/plain"}},
			Body:   []byte(body),
		}, nil
	}
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock starting at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
