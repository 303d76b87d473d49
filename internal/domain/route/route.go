// Package route defines the Route domain entity: an ordered waypoint
// path an AGV follows for one task.
package route

import (
	"time"

	"github.com/portyard/fleetsim/internal/domain/geo"
)

// Route is a planned path with derived cost metrics. Metrics are
// recomputed whenever the waypoint list changes.
type Route struct {
	ID              string         `json:"id"`
	AGVID           string         `json:"agv_id"`
	TaskID          string         `json:"task_id"`
	Waypoints       []geo.Position `json:"waypoints"`
	TotalDistance   float64        `json:"total_distance"`   // yard units
	EstimatedTime   float64        `json:"estimated_time"`   // minutes
	FuelConsumption float64        `json:"fuel_consumption"` // battery percent
	CreatedAt       time.Time      `json:"created_at"`
}

// New builds a Route over the given waypoints with metrics derived
// from the segment distances.
func New(id, agvID, taskID string, waypoints []geo.Position) *Route {
	r := &Route{
		ID:        id,
		AGVID:     agvID,
		TaskID:    taskID,
		Waypoints: waypoints,
		CreatedAt: time.Now(),
	}
	r.recalculate()
	return r
}

// AddWaypoint appends a position and rederives the route metrics.
func (r *Route) AddWaypoint(p geo.Position) {
	r.Waypoints = append(r.Waypoints, p)
	r.recalculate()
}

// recalculate re-sums consecutive segment distances and rederives time
// and fuel from the fleet planning constants. Routes with fewer than
// two waypoints keep their current metrics.
func (r *Route) recalculate() {
	if len(r.Waypoints) < 2 {
		return
	}
	var total float64
	for i := 0; i < len(r.Waypoints)-1; i++ {
		total += r.Waypoints[i].DistanceTo(r.Waypoints[i+1])
	}
	r.TotalDistance = total
	r.EstimatedTime = geo.TravelMinutes(total)
	r.FuelConsumption = geo.BatteryCost(total)
}
