package app

import (
	"context"
	"time"

	"github.com/fd1az/pricegap-monitor/business/pricing/domain"
	"github.com/fd1az/pricegap-monitor/internal/cache"
)

// DefaultCacheTTL is how long a quote counts as fresh after it was observed.
const DefaultCacheTTL = 30 * time.Second

// PriceCache holds the last successful quote per (chain, pair).
// Expired quotes are kept and served as stale fallbacks.
type PriceCache struct {
	store *cache.Cache[string, domain.PriceQuote]
	ttl   time.Duration
	clock cache.Clock
}

// NewPriceCache creates a cache with the given freshness window. A nil clock uses time.Now.
func NewPriceCache(ttl time.Duration, clock cache.Clock) *PriceCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if clock == nil {
		clock = time.Now
	}

	return &PriceCache{
		store: cache.New[string, domain.PriceQuote](cache.WithClock(clock)),
		ttl:   ttl,
		clock: clock,
	}
}

// Get returns the stored quote, whether it is fresh, and whether one exists.
// A stale quote comes back with Stale set.
func (c *PriceCache) Get(ctx context.Context, chain, pair string) (domain.PriceQuote, bool, bool) {
	q, fresh, found := c.store.Lookup(ctx, cacheKey(chain, pair))
	if !found {
		return domain.PriceQuote{}, false, false
	}
	q.Stale = !fresh
	return q, fresh, true
}

// Put stores a successful quote. Failed quotes and quotes older than the
// stored one are ignored.
func (c *PriceCache) Put(ctx context.Context, chain, pair string, q domain.PriceQuote) {
	if !q.Usable() {
		return
	}

	q.Stale = false
	q.Error = ""
	remaining := c.ttl - c.clock().Sub(q.ObservedAt)

	c.store.Update(ctx, cacheKey(chain, pair), remaining, func(old domain.PriceQuote, exists bool) (domain.PriceQuote, bool) {
		if exists && old.ObservedAt.After(q.ObservedAt) {
			return old, false
		}
		return q, true
	})
}

// TTL returns the freshness window.
func (c *PriceCache) TTL() time.Duration {
	return c.ttl
}

// Len returns the number of cached quotes, stale ones included.
func (c *PriceCache) Len() int {
	return c.store.Len()
}

func cacheKey(chain, pair string) string {
	return chain + "|" + pair
}
