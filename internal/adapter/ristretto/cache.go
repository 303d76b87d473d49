// Package ristretto implements the route cache port using
// dgraph-io/ristretto as the in-process TTL cache.
package ristretto

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/portyard/fleetsim/internal/domain/route"
	"github.com/portyard/fleetsim/internal/port/routecache"
)

// Cache holds active routes keyed by AGV id. Ristretto owns TTL and
// eviction; the side index makes Active enumeration possible and is
// pruned lazily when a lookup misses.
type Cache struct {
	c *ristretto.Cache[string, route.Route]

	mu    sync.Mutex
	index map[string]struct{}
}

var _ routecache.Cache = (*Cache)(nil)

// New creates a route cache admitting up to maxRoutes entries.
func New(maxRoutes int64) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, route.Route]{
		NumCounters: maxRoutes * 10, // ~10x expected items
		MaxCost:     maxRoutes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{
		c:     c,
		index: make(map[string]struct{}),
	}, nil
}

// Get retrieves the live route for an AGV.
func (c *Cache) Get(_ context.Context, agvID string) (*route.Route, bool, error) {
	val, found := c.c.Get(agvID)
	if !found {
		c.unindex(agvID)
		return nil, false, nil
	}
	r := cloneRoute(val)
	return &r, true, nil
}

// Set stores r as the active route for r.AGVID. The write is flushed
// before returning so the route is readable immediately.
func (c *Cache) Set(_ context.Context, r *route.Route, ttl time.Duration) error {
	c.mu.Lock()
	c.index[r.AGVID] = struct{}{}
	c.mu.Unlock()

	c.c.SetWithTTL(r.AGVID, cloneRoute(*r), 1, ttl)
	c.c.Wait()
	return nil
}

// Delete drops the active route for an AGV.
func (c *Cache) Delete(_ context.Context, agvID string) error {
	c.unindex(agvID)
	c.c.Del(agvID)
	return nil
}

// Active returns every route still live in the cache, ordered by AGV id.
func (c *Cache) Active(_ context.Context) ([]route.Route, error) {
	c.mu.Lock()
	ids := make([]string, 0, len(c.index))
	for id := range c.index {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	slices.Sort(ids)

	var out []route.Route
	for _, id := range ids {
		val, found := c.c.Get(id)
		if !found {
			c.unindex(id)
			continue
		}
		out = append(out, cloneRoute(val))
	}
	return out, nil
}

// Close shuts down the cache and releases resources.
func (c *Cache) Close() {
	c.c.Close()
}

func (c *Cache) unindex(agvID string) {
	c.mu.Lock()
	delete(c.index, agvID)
	c.mu.Unlock()
}

// cloneRoute copies the waypoint slice so callers never alias cached
// state.
func cloneRoute(r route.Route) route.Route {
	r.Waypoints = slices.Clone(r.Waypoints)
	return r
}
