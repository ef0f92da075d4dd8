package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter/v2"

	cachegate "github.com/eugener/cachegate/internal"
)

// Memory is an unbounded in-memory store backed by otter. Expiry is lazy:
// no otter expiry policy is configured, so entries leave the map only when
// Get observes them past ExpiresAt, or on Delete/Purge.
type Memory struct {
	cache *otter.Cache[Key, *cachegate.Entry]
	now   func() time.Time
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory creates an empty in-memory store.
func NewMemory(opts ...MemoryOption) (*Memory, error) {
	c, err := otter.New[Key, *cachegate.Entry](&otter.Options[Key, *cachegate.Entry]{})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	m := &Memory{cache: c, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Get retrieves an entry if present and not expired. An expired entry is
// removed under the bucket lock, and only if it is still the stored value,
// so a concurrent Set of a fresh entry is never lost.
func (m *Memory) Get(_ context.Context, key Key) (*cachegate.Entry, bool) {
	e, ok := m.cache.GetIfPresent(key)
	if !ok {
		return nil, false
	}
	now := m.now()
	if !e.Expired(now) {
		return e, true
	}
	return m.cache.ComputeIfPresent(key, func(cur *cachegate.Entry) (*cachegate.Entry, otter.ComputeOp) {
		if cur.Expired(now) {
			return nil, otter.InvalidateOp
		}
		return cur, otter.CancelOp
	})
}

// Set stores an entry, replacing any existing one.
func (m *Memory) Set(_ context.Context, key Key, e *cachegate.Entry) {
	m.cache.Set(key, e)
}

// Delete removes an entry from the store.
func (m *Memory) Delete(_ context.Context, key Key) {
	m.cache.Invalidate(key)
}

// Purge removes all entries from the store.
func (m *Memory) Purge(_ context.Context) {
	m.cache.InvalidateAll()
}

// Len returns the estimated number of stored entries.
func (m *Memory) Len() int {
	return m.cache.EstimatedSize()
}
