package scope

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// DefaultSnapshotCacheSize bounds the number of cached tenant hierarchies.
const DefaultSnapshotCacheSize = 1024

// SnapshotCache holds tenant hierarchies for a bounded time. Concurrent
// misses for the same tenant share one load.
type SnapshotCache struct {
	lru   *expirable.LRU[int64, *Hierarchy]
	group singleflight.Group

	// generations counts invalidations per tenant. A load only caches its
	// result if no invalidation happened while it ran.
	mu          sync.Mutex
	generations map[int64]uint64
}

// NewSnapshotCache creates a cache of at most size tenants, each kept for
// at most ttl.
func NewSnapshotCache(size int, ttl time.Duration) *SnapshotCache {
	if size <= 0 {
		size = DefaultSnapshotCacheSize
	}
	return &SnapshotCache{
		lru:         expirable.NewLRU[int64, *Hierarchy](size, nil, ttl),
		generations: make(map[int64]uint64),
	}
}

// Get returns the cached hierarchy or loads it. hit reports whether the
// value came from the cache.
func (c *SnapshotCache) Get(ctx context.Context, tenantID int64, load func(context.Context) (*Hierarchy, error)) (h *Hierarchy, hit bool, err error) {
	if h, ok := c.lru.Get(tenantID); ok {
		return h, true, nil
	}

	v, err, _ := c.group.Do(strconv.FormatInt(tenantID, 10), func() (interface{}, error) {
		if h, ok := c.lru.Get(tenantID); ok {
			return h, nil
		}
		gen := c.generation(tenantID)
		h, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.generations[tenantID] == gen {
			c.lru.Add(tenantID, h)
		}
		c.mu.Unlock()
		return h, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*Hierarchy), false, nil
}

// Invalidate removes a tenant's hierarchy. A load already running for
// the tenant still answers its callers but is not cached.
func (c *SnapshotCache) Invalidate(tenantID int64) {
	c.mu.Lock()
	c.generations[tenantID]++
	c.lru.Remove(tenantID)
	c.mu.Unlock()
	c.group.Forget(strconv.FormatInt(tenantID, 10))
}

func (c *SnapshotCache) generation(tenantID int64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[tenantID]
}

// Len returns the number of cached tenants.
func (c *SnapshotCache) Len() int {
	return c.lru.Len()
}
