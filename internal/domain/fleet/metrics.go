// Package fleet defines fleet-level snapshot and advisory types.
package fleet

import "time"

// Efficiency weighting between AGV utilization and battery health.
const (
	utilizationWeight = 0.7
	batteryWeight     = 0.3
)

// Metrics is a point-in-time snapshot of the fleet. It is recomputed
// on demand and has no identity beyond its timestamp.
type Metrics struct {
	TotalAGVs      int       `json:"total_agvs"`
	ActiveAGVs     int       `json:"active_agvs"`
	IdleAGVs       int       `json:"idle_agvs"`
	ChargingAGVs   int       `json:"charging_agvs"`
	PendingTasks   int       `json:"pending_tasks"`
	CompletedTasks int       `json:"completed_tasks"`
	AverageBattery float64   `json:"average_battery"`
	Efficiency     float64   `json:"fleet_efficiency"` // 0..1
	Timestamp      time.Time `json:"timestamp"`
}

// ComputeEfficiency derives the weighted efficiency blend in [0, 1]:
// 0.7 * utilization + 0.3 * battery health, and 0 for an empty fleet.
func (m *Metrics) ComputeEfficiency() float64 {
	if m.TotalAGVs == 0 {
		return 0
	}
	utilization := float64(m.ActiveAGVs) / float64(m.TotalAGVs)
	battery := m.AverageBattery / 100
	eff := utilizationWeight*utilization + batteryWeight*battery
	if eff < 0 {
		return 0
	}
	if eff > 1 {
		return 1
	}
	return eff
}
