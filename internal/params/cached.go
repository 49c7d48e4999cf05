package params

import (
	"context"
	"sync"
	"time"

	"influencegen/internal/metrics"
)

type cacheEntry struct {
	value   string
	ok      bool
	expires time.Time
}

// Cached serves reads from memory for ttl and invalidates entries it writes.
// Writes made by other processes become visible after at most ttl.
type Cached struct {
	next Store
	ttl  time.Duration
	now  func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
	// gens counts invalidations per key. A fetch started before a write
	// must not repopulate the entry that write cleared.
	gens map[string]uint64
}

// NewCached wraps next. A ttl <= 0 disables caching.
func NewCached(next Store, ttl time.Duration) *Cached {
	return &Cached{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: map[string]cacheEntry{},
		gens:    map[string]uint64{},
	}
}

func (c *Cached) Get(ctx context.Context, key string) (string, bool, error) {
	if c.ttl <= 0 {
		return c.next.Get(ctx, key)
	}
	now := c.now()
	c.mu.RLock()
	e, hit := c.entries[key]
	gen := c.gens[key]
	c.mu.RUnlock()
	if hit && now.Before(e.expires) {
		metrics.ParamCacheHits.WithLabelValues("hit").Inc()
		return e.value, e.ok, nil
	}
	metrics.ParamCacheHits.WithLabelValues("miss").Inc()
	v, ok, err := c.next.Get(ctx, key)
	if err != nil {
		return "", false, err
	}
	c.mu.Lock()
	if c.gens[key] == gen {
		c.entries[key] = cacheEntry{value: v, ok: ok, expires: now.Add(c.ttl)}
	}
	c.mu.Unlock()
	return v, ok, nil
}

func (c *Cached) Set(ctx context.Context, key, value string) error {
	err := c.next.Set(ctx, key, value)
	c.invalidate(key)
	return err
}

func (c *Cached) Delete(ctx context.Context, key string) error {
	err := c.next.Delete(ctx, key)
	c.invalidate(key)
	return err
}

func (c *Cached) List(ctx context.Context) ([]Param, error) { return c.next.List(ctx) }

func (c *Cached) invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.gens[key]++
	c.mu.Unlock()
}
