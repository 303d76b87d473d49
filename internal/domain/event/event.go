// Package event defines the fleet event vocabulary published through
// the notifier port.
package event

// Type identifies the kind of fleet event.
type Type string

const (
	TypeTaskAssigned  Type = "task_assigned"
	TypeTaskCompleted Type = "task_completed"
	TypeManualMove    Type = "manual_agv_move"
	TypeEmergencyTask Type = "emergency_task_created"
	TypeEmergencyStop Type = "emergency_stop"
)

// Alert severities accepted by the notifier port.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
	SeverityUrgent = "urgent"
)
