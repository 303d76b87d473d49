package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/portyard/fleetsim/internal/domain"
	"github.com/portyard/fleetsim/internal/domain/agv"
	"github.com/portyard/fleetsim/internal/domain/event"
	"github.com/portyard/fleetsim/internal/domain/geo"
	"github.com/portyard/fleetsim/internal/domain/task"
	"github.com/portyard/fleetsim/internal/port/notifier"
	"github.com/portyard/fleetsim/internal/port/repository"
)

// ControlService executes direct operator commands against single AGVs
// and handles task intake.
type ControlService struct {
	store      repository.Store
	assignment *AssignmentService
	routing    *RoutingService
	notifier   notifier.Notifier
	mu         *sync.Mutex      // fleet commit lock, shared with assignment and simulator
	now        func() time.Time // for testing
}

// NewControlService creates a ControlService sharing the fleet commit
// lock mu.
func NewControlService(store repository.Store, assignment *AssignmentService,
	routing *RoutingService, n notifier.Notifier, mu *sync.Mutex) *ControlService {
	return &ControlService{
		store:      store,
		assignment: assignment,
		routing:    routing,
		notifier:   n,
		mu:         mu,
		now:        time.Now,
	}
}

// SendToPosition orders an available AGV to a position and returns the
// estimated travel time in minutes. The AGV reports MOVING with no task
// attached and holds that state until an operator intervenes.
func (s *ControlService) SendToPosition(ctx context.Context, agvID string, dest geo.Position) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.store.GetAGV(ctx, agvID)
	if err != nil {
		return 0, err
	}
	if !a.IsAvailable() {
		return 0, fmt.Errorf("agv %s: %w", agvID, domain.ErrUnavailable)
	}
	if !a.CanReach(dest) {
		return 0, fmt.Errorf("agv %s cannot reach (%.0f, %.0f): %w", agvID, dest.X, dest.Y, domain.ErrUnreachable)
	}

	eta := geo.TravelMinutes(a.Position.DistanceTo(dest))
	a.Status = agv.StatusMoving
	a.LastUpdate = s.now()
	if err := s.store.UpdateAGV(ctx, a); err != nil {
		return 0, fmt.Errorf("update agv %s: %w", agvID, err)
	}

	if err := s.notifier.LogEvent(ctx, event.TypeManualMove, map[string]any{
		"agv_id":      a.ID,
		"x":           dest.X,
		"y":           dest.Y,
		"eta_minutes": eta,
	}); err != nil {
		slog.Warn("event delivery failed", "event", event.TypeManualMove, "error", err)
	}
	slog.Info("agv sent to position", "agv_id", a.ID, "x", dest.X, "y", dest.Y, "eta_minutes", eta)
	return eta, nil
}

// EmergencyStop forces an AGV to IDLE and detaches its task. The
// interrupted task keeps its assignment stamps and never completes;
// Dangling lists such tasks for reconciliation.
func (s *ControlService) EmergencyStop(ctx context.Context, agvID string) error {
	s.mu.Lock()

	a, err := s.store.GetAGV(ctx, agvID)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	interrupted := a.CurrentTaskID
	a.Status = agv.StatusIdle
	a.CurrentTaskID = ""
	a.LastUpdate = s.now()
	if err := s.store.UpdateAGV(ctx, a); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("update agv %s: %w", agvID, err)
	}
	s.mu.Unlock()

	s.routing.ClearRoute(ctx, a.ID)

	if err := s.notifier.SendAlert(ctx,
		fmt.Sprintf("Emergency stop executed for %s", a.Name), event.SeverityUrgent); err != nil {
		slog.Warn("alert delivery failed", "agv_id", a.ID, "error", err)
	}
	if err := s.notifier.LogEvent(ctx, event.TypeEmergencyStop, map[string]any{
		"agv_id":           a.ID,
		"interrupted_task": interrupted,
	}); err != nil {
		slog.Warn("event delivery failed", "event", event.TypeEmergencyStop, "error", err)
	}
	slog.Warn("emergency stop", "agv_id", a.ID, "interrupted_task", interrupted)
	return nil
}

// Dangling lists started tasks whose assigned AGV no longer carries
// them. Emergency stops produce these.
func (s *ControlService) Dangling(ctx context.Context) ([]task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	var dangling []task.Task
	for _, t := range tasks {
		if !t.IsInProgress() {
			continue
		}
		a, err := s.store.GetAGV(ctx, t.AssignedAGVID)
		if err != nil || a.CurrentTaskID != t.ID {
			dangling = append(dangling, t)
		}
	}
	return dangling, nil
}

// CreateTask registers a new transport task. An empty id gets a
// generated TSK- id.
func (s *ControlService) CreateTask(ctx context.Context, id, description string,
	origin, dest geo.Position, priority task.Priority, containerID string) (*task.Task, error) {
	if id == "" {
		id = "TSK-" + shortID()
	}

	t := task.New(id, description, origin, dest, priority)
	t.ContainerID = containerID
	if err := s.store.CreateTask(ctx, t); err != nil {
		return nil, err
	}

	slog.Info("task created", "task_id", t.ID, "priority", string(t.Priority), "container_id", containerID)
	return t, nil
}

// CreateEmergencyTask registers an URGENT task and immediately tries to
// dispatch the pending backlog so it gets an AGV as soon as possible.
func (s *ControlService) CreateEmergencyTask(ctx context.Context, description string,
	origin, dest geo.Position, containerID string) (*task.Task, error) {
	id := "URGENT_" + s.now().Format("20060102_150405")

	t := task.New(id, description, origin, dest, task.PriorityUrgent)
	t.ContainerID = containerID
	if err := s.store.CreateTask(ctx, t); err != nil {
		return nil, err
	}

	if err := s.notifier.SendAlert(ctx,
		fmt.Sprintf("Emergency task %s created: %s", id, description), event.SeverityUrgent); err != nil {
		slog.Warn("alert delivery failed", "task_id", id, "error", err)
	}
	if err := s.notifier.LogEvent(ctx, event.TypeEmergencyTask, map[string]any{
		"task_id":      id,
		"container_id": containerID,
	}); err != nil {
		slog.Warn("event delivery failed", "event", event.TypeEmergencyTask, "error", err)
	}

	assigned, err := s.assignment.AssignPendingTasks(ctx)
	if err != nil {
		slog.Warn("emergency dispatch failed", "task_id", id, "error", err)
	} else {
		slog.Info("emergency dispatch", "task_id", id, "assigned", assigned)
	}
	return t, nil
}
