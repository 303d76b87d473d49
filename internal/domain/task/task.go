// Package task defines the container transport Task domain entity.
package task

import (
	"time"

	"github.com/portyard/fleetsim/internal/domain/geo"
)

// Priority orders tasks by urgency.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// handlingMinutes is the fixed pickup/dropoff overhead added to every
// transport estimate.
const handlingMinutes = 5.0

// Task represents one container movement between two yard positions.
type Task struct {
	ID                string       `json:"id"`
	Description       string       `json:"description"`
	Origin            geo.Position `json:"origin"`
	Destination       geo.Position `json:"destination"`
	Priority          Priority     `json:"priority"`
	ContainerID       string       `json:"container_id,omitempty"`
	AssignedAGVID     string       `json:"assigned_agv_id,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	StartedAt         *time.Time   `json:"started_at,omitempty"`
	CompletedAt       *time.Time   `json:"completed_at,omitempty"`
	EstimatedDuration float64      `json:"estimated_duration"` // minutes
}

// New builds a Task with its duration estimate derived once from the
// origin-to-destination distance.
func New(id, description string, origin, destination geo.Position, priority Priority) *Task {
	return &Task{
		ID:                id,
		Description:       description,
		Origin:            origin,
		Destination:       destination,
		Priority:          priority,
		CreatedAt:         time.Now(),
		EstimatedDuration: EstimateDuration(origin, destination),
	}
}

// EstimateDuration returns planning-speed travel time plus the fixed
// handling overhead, in minutes.
func EstimateDuration(origin, destination geo.Position) float64 {
	return geo.TravelMinutes(origin.DistanceTo(destination)) + handlingMinutes
}

// IsPending reports whether the task is still waiting for an AGV.
func (t *Task) IsPending() bool {
	return t.CompletedAt == nil && t.AssignedAGVID == ""
}

// IsCompleted reports whether the task has finished.
func (t *Task) IsCompleted() bool {
	return t.CompletedAt != nil
}

// IsInProgress reports whether an AGV is currently working the task.
func (t *Task) IsInProgress() bool {
	return t.StartedAt != nil && t.CompletedAt == nil && t.AssignedAGVID != ""
}

// Progress returns completion percent at now: 0 before start, 100 after
// completion, otherwise elapsed time over the estimate clamped to
// [0, 100].
func (t *Task) Progress(now time.Time) float64 {
	if t.IsCompleted() {
		return 100
	}
	if t.StartedAt == nil || t.EstimatedDuration <= 0 {
		return 0
	}
	elapsed := now.Sub(*t.StartedAt).Minutes()
	pct := elapsed / t.EstimatedDuration * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
