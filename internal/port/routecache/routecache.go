// Package routecache defines the cache port for planned routes.
//
// Planned routes are short-lived: they matter only while their AGV is
// in transit, so they live in a TTL'd cache keyed by AGV id rather
// than in the fleet repository.
package routecache

import (
	"context"
	"time"

	"github.com/portyard/fleetsim/internal/domain/route"
)

// Cache holds the active route per AGV.
type Cache interface {
	// Get returns the cached route for an AGV, if one is live.
	Get(ctx context.Context, agvID string) (*route.Route, bool, error)

	// Set stores r as the active route for r.AGVID.
	Set(ctx context.Context, r *route.Route, ttl time.Duration) error

	// Delete drops the active route for an AGV.
	Delete(ctx context.Context, agvID string) error

	// Active returns every live route. Order is not specified.
	Active(ctx context.Context) ([]route.Route, error)
}
