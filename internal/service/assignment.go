// Package service implements the fleet orchestration engine: task
// assignment, simulation, routing, monitoring, insights and manual
// control, all speaking to storage, advisor and notification ports.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/portyard/fleetsim/internal/domain/agv"
	"github.com/portyard/fleetsim/internal/domain/event"
	"github.com/portyard/fleetsim/internal/domain/task"
	"github.com/portyard/fleetsim/internal/port/advisor"
	"github.com/portyard/fleetsim/internal/port/notifier"
	"github.com/portyard/fleetsim/internal/port/repository"
	"github.com/portyard/fleetsim/internal/resilience"
)

// greedyBatteryFloor is the battery level the greedy fallback requires
// before pairing an AGV with a task.
const greedyBatteryFloor = 30.0

// AssignmentService matches pending tasks to available AGVs.
type AssignmentService struct {
	store    repository.Store
	advisor  advisor.Advisor // nil when no advisor is configured
	guard    *resilience.Guard
	routing  *RoutingService
	notifier notifier.Notifier
	metrics  *Instruments
	mu       *sync.Mutex      // fleet commit lock, shared with Simulator and Control
	now      func() time.Time // for testing
}

// NewAssignmentService creates an AssignmentService sharing the fleet
// commit lock mu.
func NewAssignmentService(store repository.Store, adv advisor.Advisor, guard *resilience.Guard,
	routing *RoutingService, n notifier.Notifier, metrics *Instruments, mu *sync.Mutex) *AssignmentService {
	return &AssignmentService{
		store:    store,
		advisor:  adv,
		guard:    guard,
		routing:  routing,
		notifier: n,
		metrics:  metrics,
		mu:       mu,
		now:      time.Now,
	}
}

// AssignPendingTasks matches every pending task it can and returns the
// number of assignments committed. The advisor proposes the matching
// when available, otherwise the greedy nearest-AGV heuristic decides.
// Every proposed pair is re-validated under the commit lock before it
// is persisted, so stale advice ends as a skipped pair, never a double
// booking.
func (s *AssignmentService) AssignPendingTasks(ctx context.Context) (int, error) {
	agvs, err := s.store.ListAvailableAGVs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list available agvs: %w", err)
	}
	tasks, err := s.store.ListPendingTasks(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending tasks: %w", err)
	}
	if len(agvs) == 0 || len(tasks) == 0 {
		return 0, nil
	}

	matching := s.adviseMatching(ctx, agvs, tasks)
	if matching == nil {
		matching = greedyMatching(agvs, tasks)
	}

	// Commit in AGV id order so repeated runs behave identically.
	ids := make([]string, 0, len(matching))
	for agvID := range matching {
		ids = append(ids, agvID)
	}
	sort.Strings(ids)

	assigned := 0
	for _, agvID := range ids {
		select {
		case <-ctx.Done():
			return assigned, ctx.Err()
		default:
		}
		if s.commit(ctx, agvID, matching[agvID]) {
			assigned++
		}
	}
	return assigned, nil
}

// adviseMatching asks the advisor for a full matching. Nil means no
// usable advice.
func (s *AssignmentService) adviseMatching(ctx context.Context, agvs []agv.AGV, tasks []task.Task) map[string]string {
	if s.advisor == nil {
		return nil
	}

	var proposed map[string]string
	err := s.guard.Do(ctx, "recommend_assignment", func(ctx context.Context) error {
		var err error
		proposed, err = s.advisor.RecommendAssignment(ctx, agvs, tasks)
		return err
	})
	if err != nil || len(proposed) == 0 {
		return nil
	}

	// Enforce injectivity: a task may appear under at most one AGV.
	ids := make([]string, 0, len(proposed))
	for agvID := range proposed {
		ids = append(ids, agvID)
	}
	sort.Strings(ids)

	matching := make(map[string]string, len(proposed))
	taken := make(map[string]bool, len(proposed))
	for _, agvID := range ids {
		taskID := proposed[agvID]
		if taken[taskID] {
			slog.Warn("advisor proposed task twice, dropping duplicate",
				"task_id", taskID, "agv_id", agvID)
			continue
		}
		taken[taskID] = true
		matching[agvID] = taskID
	}
	return matching
}

// greedyMatching pairs each pending task with the nearest AGV holding
// more than greedyBatteryFloor battery. Tasks are walked in listed
// order; each AGV is used at most once.
func greedyMatching(agvs []agv.AGV, tasks []task.Task) map[string]string {
	matching := make(map[string]string)
	used := make(map[string]bool, len(agvs))
	for _, t := range tasks {
		bestID := ""
		bestDist := math.MaxFloat64
		for _, a := range agvs {
			if used[a.ID] || a.Battery <= greedyBatteryFloor {
				continue
			}
			if d := a.Position.DistanceTo(t.Origin); d < bestDist {
				bestDist = d
				bestID = a.ID
			}
		}
		if bestID == "" {
			continue
		}
		used[bestID] = true
		matching[bestID] = t.ID
	}
	return matching
}

// commit pushes one proposed pair through validation and persistence,
// then plans the route and emits the assignment event outside the lock.
func (s *AssignmentService) commit(ctx context.Context, agvID, taskID string) bool {
	a, t, ok := s.commitLocked(ctx, agvID, taskID)
	if !ok {
		return false
	}

	s.routing.PlanRoute(ctx, *a, *t)

	if err := s.notifier.LogEvent(ctx, event.TypeTaskAssigned, map[string]any{
		"task_id": t.ID,
		"agv_id":  a.ID,
	}); err != nil {
		slog.Warn("event delivery failed", "event", event.TypeTaskAssigned, "error", err)
	}
	if s.metrics != nil {
		s.metrics.TasksAssigned.Add(ctx, 1)
	}
	slog.Info("task assigned", "task_id", t.ID, "agv_id", a.ID, "priority", string(t.Priority))
	return true
}

// commitLocked re-reads both entities under the fleet commit lock,
// re-validates the pair and persists the assignment. A failed AGV write
// reverts the task so the pair never half-commits.
func (s *AssignmentService) commitLocked(ctx context.Context, agvID, taskID string) (*agv.AGV, *task.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.store.GetAGV(ctx, agvID)
	if err != nil {
		slog.Warn("assignment agv vanished", "agv_id", agvID, "error", err)
		return nil, nil, false
	}
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		slog.Warn("assignment task vanished", "task_id", taskID, "error", err)
		return nil, nil, false
	}
	if !a.IsAvailable() || !t.IsPending() || !a.CanReach(t.Origin) {
		slog.Debug("assignment no longer valid, skipping", "agv_id", agvID, "task_id", taskID)
		return nil, nil, false
	}

	now := s.now()
	t.AssignedAGVID = a.ID
	t.StartedAt = &now
	a.CurrentTaskID = t.ID
	a.Status = agv.StatusMoving
	a.LastUpdate = now

	if err := s.store.UpdateTask(ctx, t); err != nil {
		slog.Error("assignment task update failed", "task_id", t.ID, "error", err)
		return nil, nil, false
	}
	if err := s.store.UpdateAGV(ctx, a); err != nil {
		slog.Error("assignment agv update failed, reverting task", "agv_id", a.ID, "error", err)
		t.AssignedAGVID = ""
		t.StartedAt = nil
		if revertErr := s.store.UpdateTask(ctx, t); revertErr != nil {
			slog.Error("assignment task revert failed", "task_id", t.ID, "error", revertErr)
		}
		return nil, nil, false
	}
	return a, t, true
}
