// Package advisor defines the optional fleet intelligence port.
//
// An Advisor may be absent entirely (the engine holds a nil value) or
// may fail at call time; the engine treats both identically and falls
// back to its local deterministic heuristics. Implementations are
// expected to be network-bound and slow; callers bound every call with
// a deadline and never hold entity locks across one.
package advisor

import (
	"context"

	"github.com/portyard/fleetsim/internal/domain/agv"
	"github.com/portyard/fleetsim/internal/domain/fleet"
	"github.com/portyard/fleetsim/internal/domain/route"
	"github.com/portyard/fleetsim/internal/domain/task"
)

// Advisor suggests routes, assignments and fleet analysis.
type Advisor interface {
	// OptimizeRoute plans a route for one AGV and its task.
	OptimizeRoute(ctx context.Context, a agv.AGV, t task.Task) (*route.Route, error)

	// OptimizeFleetRoutes plans routes for every active AGV, keyed by
	// AGV id.
	OptimizeFleetRoutes(ctx context.Context, agvs []agv.AGV, tasks []task.Task) (map[string]*route.Route, error)

	// PredictCongestion reports zones where the given routes overlap
	// too densely.
	PredictCongestion(ctx context.Context, routes []route.Route) ([]fleet.CongestionZone, error)

	// RecommendAssignment proposes a full {agvID -> taskID} matching in
	// one call.
	RecommendAssignment(ctx context.Context, agvs []agv.AGV, tasks []task.Task) (map[string]string, error)

	// AnalyzeFleetPerformance scores the fleet given the current
	// snapshot and recent history.
	AnalyzeFleetPerformance(ctx context.Context, m fleet.Metrics, history []fleet.Metrics) (*fleet.PerformanceReport, error)

	// PredictMaintenanceNeeds returns a per-AGV maintenance verdict,
	// keyed by AGV id.
	PredictMaintenanceNeeds(ctx context.Context, agvs []agv.AGV) (map[string]fleet.MaintenancePrediction, error)

	// GenerateFleetInsights turns a metrics snapshot into actionable
	// observations.
	GenerateFleetInsights(ctx context.Context, m fleet.Metrics) ([]fleet.Insight, error)
}
