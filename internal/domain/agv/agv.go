// Package agv defines the AGV domain entity and its status vocabulary.
package agv

import (
	"time"

	"github.com/portyard/fleetsim/internal/domain/geo"
)

// Status represents the operational state of an AGV.
type Status string

const (
	StatusIdle         Status = "IDLE"
	StatusMoving       Status = "MOVING"
	StatusTransporting Status = "TRANSPORTING"
	StatusCharging     Status = "CHARGING"
	// StatusMaintenance is part of the vocabulary but nothing in the
	// engine currently transitions into or out of it.
	StatusMaintenance Status = "MAINTENANCE"
)

const (
	// availabilityFloor is the battery level an idle AGV must exceed
	// before it is offered new work.
	availabilityFloor = 20.0

	// chargePlanningFloor is the battery level below which a charge
	// should be planned.
	chargePlanningFloor = 30.0

	// reachabilityMargin is the battery buffer required on top of the
	// estimated trip consumption.
	reachabilityMargin = 10.0

	// DefaultMaxSpeed is the nominal drivetrain rating in km/h.
	DefaultMaxSpeed = 20.0

	// DefaultLoadCapacity is the rated payload in kg.
	DefaultLoadCapacity = 2000.0
)

// AGV represents one autonomous guided vehicle in the yard.
type AGV struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Position      geo.Position `json:"position"`
	Battery       float64      `json:"battery"` // percent, 0..100
	Status        Status       `json:"status"`
	CurrentTaskID string       `json:"current_task_id,omitempty"`
	MaxSpeed      float64      `json:"max_speed"`     // km/h, nominal rating only
	LoadCapacity  float64      `json:"load_capacity"` // kg
	LastUpdate    time.Time    `json:"last_update"`
}

// New provisions an AGV at pos with a full battery and default
// drivetrain ratings.
func New(id, name string, pos geo.Position) *AGV {
	return &AGV{
		ID:           id,
		Name:         name,
		Position:     pos,
		Battery:      100,
		Status:       StatusIdle,
		MaxSpeed:     DefaultMaxSpeed,
		LoadCapacity: DefaultLoadCapacity,
		LastUpdate:   time.Now(),
	}
}

// IsAvailable reports whether the AGV can take a new task: idle, no
// task attached, battery above the availability floor.
func (a *AGV) IsAvailable() bool {
	return a.Status == StatusIdle && a.Battery > availabilityFloor && a.CurrentTaskID == ""
}

// NeedsCharging reports whether a charge should be planned soon.
func (a *AGV) NeedsCharging() bool {
	return a.Battery < chargePlanningFloor
}

// CanReach reports whether the current battery covers the trip to dest
// plus the safety margin.
func (a *AGV) CanReach(dest geo.Position) bool {
	need := geo.BatteryCost(a.Position.DistanceTo(dest)) + reachabilityMargin
	return a.Battery >= need
}

// ClampBattery forces the battery level back into [0, 100].
func (a *AGV) ClampBattery() {
	if a.Battery < 0 {
		a.Battery = 0
	}
	if a.Battery > 100 {
		a.Battery = 100
	}
}
