// Package geo defines the coordinate primitives and motion constants
// shared across the yard model. Distances are expressed in yard units
// and converted to kilometers at a fixed 1000 units per km.
package geo

import "math"

const (
	// averageSpeedKMH is the fleet-wide planning speed used for every
	// travel time estimate, regardless of an AGV's nominal rating.
	averageSpeedKMH = 20.0

	// unitsPerKM converts yard units to kilometers.
	unitsPerKM = 1000.0

	// unitsPerBatteryPercent is the distance an AGV covers per percent
	// of battery.
	unitsPerBatteryPercent = 100.0
)

// Position is an immutable point in the yard. Zone is an optional
// human-readable label such as "DOCK_A" or "STORAGE_3".
type Position struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zone string  `json:"zone,omitempty"`
}

// DistanceTo returns the Euclidean distance to other, in yard units.
func (p Position) DistanceTo(other Position) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// KM converts a distance in yard units to kilometers.
func KM(units float64) float64 {
	return units / unitsPerKM
}

// TravelMinutes returns the planning-speed travel time for a distance
// in yard units.
func TravelMinutes(units float64) float64 {
	return KM(units) / averageSpeedKMH * 60
}

// BatteryCost returns the battery percentage consumed by driving a
// distance in yard units.
func BatteryCost(units float64) float64 {
	return units / unitsPerBatteryPercent
}
