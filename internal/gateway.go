// Package cachegate defines domain types for the cachegate caching reverse proxy.
// This package has no project imports -- it is the dependency root.
package cachegate

import (
	"context"
	"net/http"
	"time"
)

// --- Cache entries ---

// Entry is a buffered origin response stored in the cache. Entries are never
// mutated after creation; a later write for the same key replaces the pointer.
type Entry struct {
	Status    int
	Header    http.Header
	Body      []byte
	ExpiresAt time.Time
}

// Expired reports whether the entry is no longer live at now.
// An entry whose ExpiresAt equals now is already expired.
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// CacheStatus is the value of the diagnostic response header.
type CacheStatus string

const (
	CacheHit    CacheStatus = "HIT"
	CacheMiss   CacheStatus = "MISS"
	CacheBypass CacheStatus = "BYPASS"
)

// Response header names added by the proxy. Canonical MIME form so direct
// map access skips textproto canonicalization.
const (
	HeaderCache   = "X-Proxy-Cache"
	HeaderBackend = "X-Proxy-Backend"
)

// --- Credential policy ---

// CredentialMode controls whether the Authorization header participates in
// cache key derivation.
type CredentialMode int

const (
	// CredentialExclude shares one cache entry across all credentials.
	CredentialExclude CredentialMode = iota
	// CredentialInclude partitions the cache per Authorization value.
	CredentialInclude
)

// String returns a human-readable mode name.
func (m CredentialMode) String() string {
	switch m {
	case CredentialExclude:
		return "exclude"
	case CredentialInclude:
		return "include"
	default:
		return "unknown"
	}
}

// ParseAllowAuthorized maps the ALLOW_AUTHORIZED flag to a CredentialMode.
// Only the literal "0" selects CredentialInclude; every other value,
// including the empty string, selects CredentialExclude.
func ParseAllowAuthorized(v string) CredentialMode {
	if v == "0" {
		return CredentialInclude
	}
	return CredentialExclude
}

// AllowAuthorized returns the flag value ("1" or "0") for the mode.
func (m CredentialMode) AllowAuthorized() string {
	if m == CredentialInclude {
		return "0"
	}
	return "1"
}

// --- Context keys ---

type contextKey int

const ctxKeyMeta contextKey = 0

// requestMeta bundles per-request values into a single context allocation.
// CacheStatus is set later by the proxy handler via mutation of the same
// pointer, so the logging middleware can read it after the handler returns.
type requestMeta struct {
	RequestID   string
	CacheStatus CacheStatus
}

// metaFromContext returns the requestMeta stored in ctx, or nil.
func metaFromContext(ctx context.Context) *requestMeta {
	m, _ := ctx.Value(ctxKeyMeta).(*requestMeta)
	return m
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if m := metaFromContext(ctx); m != nil {
		return m.RequestID
	}
	return ""
}

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{RequestID: id})
}

// CacheStatusFromContext returns the cache outcome recorded for the request,
// or "" when the request never reached the proxy handler.
func CacheStatusFromContext(ctx context.Context) CacheStatus {
	if m := metaFromContext(ctx); m != nil {
		return m.CacheStatus
	}
	return ""
}

// SetCacheStatus records the cache outcome on the request metadata.
// It is a no-op when ctx carries no metadata (e.g., in tests).
func SetCacheStatus(ctx context.Context, s CacheStatus) {
	if m := metaFromContext(ctx); m != nil {
		m.CacheStatus = s
	}
}
