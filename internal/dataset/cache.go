package dataset

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/hexrisk/internal/metrics"
)

// lookupTimeout bounds a shared backend call once it is detached from the
// caller that started it.
const lookupTimeout = 30 * time.Second

// CachedLookup is a concurrency-safe LRU cache with TTL expiration in front
// of a Lookup. Only successful lookups are cached; concurrent misses for the
// same key share one backend call.
type CachedLookup struct {
	next       Lookup
	lru        *expirable.LRU[string, []GridDataset]
	group      singleflight.Group
	maxEntries int
	hits       atomic.Int64
	misses     atomic.Int64
}

// CacheStats contains cache performance statistics.
type CacheStats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

// NewCachedLookup wraps next with a cache of maxEntries keys that expire
// after ttl.
func NewCachedLookup(next Lookup, maxEntries int, ttl time.Duration) *CachedLookup {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &CachedLookup{
		next:       next,
		lru:        expirable.NewLRU[string, []GridDataset](maxEntries, nil, ttl),
		maxEntries: maxEntries,
	}
}

// cacheKey builds the cache key for an owner and kind.
func cacheKey(ownerID string, kind Kind) string {
	return ownerID + "/" + string(kind)
}

// ListDatasets implements Lookup.
func (c *CachedLookup) ListDatasets(ctx context.Context, ownerID string, kind Kind) ([]GridDataset, error) {
	key := cacheKey(ownerID, kind)
	if cached, ok := c.lru.Get(key); ok {
		c.hits.Add(1)
		metrics.RegistryCache.WithLabelValues("hit").Inc()
		return clone(cached), nil
	}
	c.misses.Add(1)
	metrics.RegistryCache.WithLabelValues("miss").Inc()

	// The shared call must not inherit one caller's cancellation: waiters
	// for the same key belong to unrelated requests. Each caller still
	// stops waiting when its own ctx ends.
	ch := c.group.DoChan(key, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		ds, err := c.next.ListDatasets(lctx, ownerID, kind)
		if err != nil {
			return nil, err
		}
		c.lru.Add(key, clone(ds))
		return ds, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return clone(res.Val.([]GridDataset)), nil
	}
}

// Invalidate drops every cached entry for ownerID.
func (c *CachedLookup) Invalidate(ownerID string) {
	prefix := ownerID + "/"
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.lru.Remove(key)
		}
	}
}

// Purge drops every cached entry.
func (c *CachedLookup) Purge() {
	c.lru.Purge()
}

// Stats returns current cache statistics.
func (c *CachedLookup) Stats() CacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return CacheStats{
		Entries:    c.lru.Len(),
		MaxEntries: c.maxEntries,
		Hits:       hits,
		Misses:     misses,
		HitRate:    rate,
	}
}

func clone(ds []GridDataset) []GridDataset {
	if ds == nil {
		return nil
	}
	out := make([]GridDataset, len(ds))
	copy(out, ds)
	return out
}
