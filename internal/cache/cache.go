// Package cache provides a generic in-memory TTL store that keeps expired
// entries readable until they are overwritten or deleted.
package cache

import (
	"context"
	"sync"
	"time"
)

// Clock returns the current time.
type Clock func() time.Time

type entry[V any] struct {
	value     V
	storedAt  time.Time
	expiresAt time.Time
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	clock Clock
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(clock Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// Cache is safe for concurrent use. Writers are serialized, readers share a read lock.
type Cache[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]entry[V]
	clock Clock
}

// New creates an empty Cache.
func New[K comparable, V any](opts ...Option) *Cache[K, V] {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	return &Cache[K, V]{
		items: make(map[K]entry[V]),
		clock: o.clock,
	}
}

// Get returns the value only while it is unexpired.
func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, bool) {
	v, fresh, ok := c.Lookup(ctx, key)
	if !ok || !fresh {
		var zero V
		return zero, false
	}
	return v, true
}

// Lookup returns the value regardless of expiry and reports whether it is still fresh.
func (c *Cache[K, V]) Lookup(_ context.Context, key K) (v V, fresh bool, found bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		return v, false, false
	}
	return e.value, c.clock().Before(e.expiresAt), true
}

// StoredAt returns when key was last written.
func (c *Cache[K, V]) StoredAt(key K) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.items[key]
	return e.storedAt, ok
}

// Set stores value under key, fresh for ttl. A non-positive ttl stores an already expired entry.
func (c *Cache[K, V]) Set(_ context.Context, key K, value V, ttl time.Duration) {
	now := c.clock()

	c.mu.Lock()
	c.items[key] = entry[V]{
		value:     value,
		storedAt:  now,
		expiresAt: now.Add(ttl),
	}
	c.mu.Unlock()
}

// Update atomically replaces the entry for key using fn, which receives the
// current value and whether one exists. Returning false from fn leaves the entry untouched.
func (c *Cache[K, V]) Update(_ context.Context, key K, ttl time.Duration, fn func(old V, exists bool) (V, bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old, exists := c.items[key]
	next, ok := fn(old.value, exists)
	if !ok {
		return
	}

	now := c.clock()
	c.items[key] = entry[V]{
		value:     next,
		storedAt:  now,
		expiresAt: now.Add(ttl),
	}
}

// Delete removes key.
func (c *Cache[K, V]) Delete(_ context.Context, key K) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Keys returns a snapshot of stored keys.
func (c *Cache[K, V]) Keys() []K {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]K, 0, len(c.items))
	for k := range c.items {
		keys = append(keys, k)
	}
	return keys
}
