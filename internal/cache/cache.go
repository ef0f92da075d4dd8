// Package cache provides the response cache store and the cache key policy
// for the proxy.
package cache

import (
	"context"

	cachegate "github.com/eugener/cachegate/internal"
)

// Store is the interface for response caching.
type Store interface {
	// Get returns the live entry for key. An expired entry is evicted
	// as a side effect and reported as absent.
	Get(ctx context.Context, key Key) (*cachegate.Entry, bool)
	// Set stores e under key, replacing any prior entry. The caller sets
	// e.ExpiresAt.
	Set(ctx context.Context, key Key, e *cachegate.Entry)
	// Delete removes a cached entry.
	Delete(ctx context.Context, key Key)
	// Purge removes all cached entries.
	Purge(ctx context.Context)
	// Len returns the approximate number of stored entries, live or not.
	Len() int
}
