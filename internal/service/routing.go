package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/portyard/fleetsim/internal/domain/agv"
	"github.com/portyard/fleetsim/internal/domain/fleet"
	"github.com/portyard/fleetsim/internal/domain/geo"
	"github.com/portyard/fleetsim/internal/domain/route"
	"github.com/portyard/fleetsim/internal/domain/task"
	"github.com/portyard/fleetsim/internal/port/advisor"
	"github.com/portyard/fleetsim/internal/port/repository"
	"github.com/portyard/fleetsim/internal/port/routecache"
	"github.com/portyard/fleetsim/internal/resilience"
)

// Congestion fallback parameters: waypoints are bucketed into fixed
// grid cells; a cell crossed by more than congestionThreshold waypoints
// is reported, above congestionHighAbove it is HIGH.
const (
	congestionCellSize     = 50.0
	congestionThreshold    = 2
	congestionHighAbove    = 4
	congestionDelayMinutes = 2.5 // per waypoint in the cell
)

// RoutingService plans routes for working AGVs and reports congestion.
// Advisor-planned routes are preferred; every path degrades to the
// deterministic three-point fallback.
type RoutingService struct {
	store    repository.Store
	advisor  advisor.Advisor // nil when no advisor is configured
	guard    *resilience.Guard
	pool     *resilience.Pool
	cache    routecache.Cache
	routeTTL time.Duration
}

// NewRoutingService creates a RoutingService. Planned routes live in
// cache for routeTTL; pool bounds the per-AGV planning fan-out.
func NewRoutingService(store repository.Store, adv advisor.Advisor, guard *resilience.Guard,
	pool *resilience.Pool, cache routecache.Cache, routeTTL time.Duration) *RoutingService {
	return &RoutingService{
		store:    store,
		advisor:  adv,
		guard:    guard,
		pool:     pool,
		cache:    cache,
		routeTTL: routeTTL,
	}
}

// workingPair couples an active AGV with the task it is carrying.
type workingPair struct {
	agv  agv.AGV
	task task.Task
}

// PlanRoute returns a route for one AGV and its task, caching it under
// the AGV id. It never fails: a missing or failing advisor yields the
// three-point fallback.
func (s *RoutingService) PlanRoute(ctx context.Context, a agv.AGV, t task.Task) *route.Route {
	r := s.adviseRoute(ctx, a, t)
	if r == nil {
		r = fallbackRoute(a, t)
	}
	s.cacheRoute(ctx, r)
	return r
}

// OptimizeFleetRoutes replans routes for every AGV currently working a
// task and reports congestion over the planned set.
func (s *RoutingService) OptimizeFleetRoutes(ctx context.Context) (map[string]*route.Route, []fleet.CongestionZone, error) {
	agvs, err := s.store.ListAGVs(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list agvs: %w", err)
	}

	var pairs []workingPair
	for _, a := range agvs {
		if a.CurrentTaskID == "" || (a.Status != agv.StatusMoving && a.Status != agv.StatusTransporting) {
			continue
		}
		t, err := s.store.GetTask(ctx, a.CurrentTaskID)
		if err != nil {
			slog.Warn("active agv references unknown task",
				"agv_id", a.ID, "task_id", a.CurrentTaskID, "error", err)
			continue
		}
		pairs = append(pairs, workingPair{agv: a, task: *t})
	}
	if len(pairs) == 0 {
		return map[string]*route.Route{}, nil, nil
	}

	routes := s.adviseFleetRoutes(ctx, pairs)
	if routes == nil {
		routes = s.planEach(ctx, pairs)
	}

	return routes, s.predictCongestion(ctx, routes), nil
}

// ActiveRoutes returns every route still live in the cache.
func (s *RoutingService) ActiveRoutes(ctx context.Context) ([]route.Route, error) {
	return s.cache.Active(ctx)
}

// ClearRoute drops the cached route for an AGV, if any.
func (s *RoutingService) ClearRoute(ctx context.Context, agvID string) {
	if err := s.cache.Delete(ctx, agvID); err != nil {
		slog.Warn("route cache delete failed", "agv_id", agvID, "error", err)
	}
}

// adviseRoute asks the advisor for a single route. Nil means no usable
// advice.
func (s *RoutingService) adviseRoute(ctx context.Context, a agv.AGV, t task.Task) *route.Route {
	if s.advisor == nil {
		return nil
	}
	var r *route.Route
	err := s.guard.Do(ctx, "optimize_route", func(ctx context.Context) error {
		var err error
		r, err = s.advisor.OptimizeRoute(ctx, a, t)
		return err
	})
	if err != nil || r == nil {
		return nil
	}
	if len(r.Waypoints) < 2 || r.AGVID != a.ID {
		slog.Warn("discarding malformed advisor route",
			"agv_id", a.ID, "route_agv_id", r.AGVID, "waypoints", len(r.Waypoints))
		return nil
	}
	return r
}

// adviseFleetRoutes asks the advisor for the whole batch. Nil means no
// usable advice; malformed per-AGV entries are dropped individually.
func (s *RoutingService) adviseFleetRoutes(ctx context.Context, pairs []workingPair) map[string]*route.Route {
	if s.advisor == nil {
		return nil
	}

	agvs := make([]agv.AGV, 0, len(pairs))
	tasks := make([]task.Task, 0, len(pairs))
	for _, p := range pairs {
		agvs = append(agvs, p.agv)
		tasks = append(tasks, p.task)
	}

	var advised map[string]*route.Route
	err := s.guard.Do(ctx, "optimize_fleet_routes", func(ctx context.Context) error {
		var err error
		advised, err = s.advisor.OptimizeFleetRoutes(ctx, agvs, tasks)
		return err
	})
	if err != nil || advised == nil {
		return nil
	}

	routes := make(map[string]*route.Route, len(pairs))
	for _, p := range pairs {
		r, ok := advised[p.agv.ID]
		if !ok || r == nil || len(r.Waypoints) < 2 {
			slog.Warn("advisor batch missing usable route, using fallback", "agv_id", p.agv.ID)
			r = fallbackRoute(p.agv, p.task)
		}
		routes[p.agv.ID] = r
		s.cacheRoute(ctx, r)
	}
	return routes
}

// planEach plans per-AGV routes concurrently. Each PlanRoute may still
// consult the advisor, so the fan-out runs through the bounded pool.
func (s *RoutingService) planEach(ctx context.Context, pairs []workingPair) map[string]*route.Route {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		routes = make(map[string]*route.Route, len(pairs))
	)
	for _, p := range pairs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.pool.Run(ctx, func() error {
				r := s.PlanRoute(ctx, p.agv, p.task)
				mu.Lock()
				routes[p.agv.ID] = r
				mu.Unlock()
				return nil
			})
			if err != nil {
				slog.Warn("route planning slot unavailable", "agv_id", p.agv.ID, "error", err)
			}
		}()
	}
	wg.Wait()
	return routes
}

// predictCongestion asks the advisor first and falls back to the grid
// heuristic.
func (s *RoutingService) predictCongestion(ctx context.Context, routes map[string]*route.Route) []fleet.CongestionZone {
	ids := make([]string, 0, len(routes))
	for id := range routes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	flat := make([]route.Route, 0, len(ids))
	for _, id := range ids {
		flat = append(flat, *routes[id])
	}

	if s.advisor != nil {
		var zones []fleet.CongestionZone
		err := s.guard.Do(ctx, "predict_congestion", func(ctx context.Context) error {
			var err error
			zones, err = s.advisor.PredictCongestion(ctx, flat)
			return err
		})
		if err == nil && zones != nil {
			return zones
		}
	}
	return fallbackCongestion(flat)
}

func (s *RoutingService) cacheRoute(ctx context.Context, r *route.Route) {
	if err := s.cache.Set(ctx, r, s.routeTTL); err != nil {
		slog.Warn("route cache store failed", "agv_id", r.AGVID, "error", err)
	}
}

// fallbackRoute is the deterministic three-point path: current
// position, task origin, task destination.
func fallbackRoute(a agv.AGV, t task.Task) *route.Route {
	return route.New("RTE-"+shortID(), a.ID, t.ID, []geo.Position{a.Position, t.Origin, t.Destination})
}

// fallbackCongestion buckets waypoints into grid cells and reports the
// crowded ones, ordered by zone name.
func fallbackCongestion(routes []route.Route) []fleet.CongestionZone {
	type cell struct{ gx, gy int }
	counts := make(map[cell]int)
	for _, r := range routes {
		for _, wp := range r.Waypoints {
			c := cell{
				gx: int(math.Floor(wp.X / congestionCellSize)),
				gy: int(math.Floor(wp.Y / congestionCellSize)),
			}
			counts[c]++
		}
	}

	var zones []fleet.CongestionZone
	for c, n := range counts {
		if n <= congestionThreshold {
			continue
		}
		level := fleet.ImpactMedium
		recommendation := "Monitor the cell and route new trips around it"
		if n > congestionHighAbove {
			level = fleet.ImpactHigh
			recommendation = "Stagger departures and reroute crossing AGVs"
		}
		zones = append(zones, fleet.CongestionZone{
			Zone:           fmt.Sprintf("GRID_%d_%d", c.gx, c.gy),
			X:              (float64(c.gx) + 0.5) * congestionCellSize,
			Y:              (float64(c.gy) + 0.5) * congestionCellSize,
			Level:          level,
			EstimatedDelay: float64(n) * congestionDelayMinutes,
			Recommendation: recommendation,
		})
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i].Zone < zones[j].Zone })
	return zones
}

// shortID returns the first uuid segment, enough for unique readable
// ids within one yard.
func shortID() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}
