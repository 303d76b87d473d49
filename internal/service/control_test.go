package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/portyard/fleetsim/internal/domain"
	"github.com/portyard/fleetsim/internal/domain/agv"
	"github.com/portyard/fleetsim/internal/domain/event"
	"github.com/portyard/fleetsim/internal/domain/geo"
	"github.com/portyard/fleetsim/internal/domain/task"
	"github.com/portyard/fleetsim/internal/port/advisor"
	"github.com/portyard/fleetsim/internal/resilience"
)

func newControlFixture(store *mockStore, adv advisor.Advisor) (*ControlService, *mockNotifier, *mockCache) {
	guard := testGuard()
	cache := newMockCache()
	routing := NewRoutingService(store, adv, guard, resilience.NewPool(4), cache, time.Minute)
	n := &mockNotifier{}
	var mu sync.Mutex
	assignment := NewAssignmentService(store, adv, guard, routing, n, nil, &mu)
	assignment.now = func() time.Time { return testNow }
	ctl := NewControlService(store, assignment, routing, n, &mu)
	ctl.now = func() time.Time { return testNow }
	return ctl, n, cache
}

func TestSendToPosition(t *testing.T) {
	store := &mockStore{agvs: []agv.AGV{idleAGV("AGV-001", geo.Position{X: 0, Y: 0}, 100)}}
	ctl, n, _ := newControlFixture(store, nil)

	eta, err := ctl.SendToPosition(context.Background(), "AGV-001", geo.Position{X: 300, Y: 400})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 500 units at planning speed: 1.5 minutes.
	if math.Abs(eta-1.5) > 1e-9 {
		t.Fatalf("expected ETA 1.5 minutes, got %v", eta)
	}

	got, _ := store.GetAGV(context.Background(), "AGV-001")
	if got.Status != agv.StatusMoving {
		t.Fatalf("expected MOVING, got %s", got.Status)
	}
	if got.CurrentTaskID != "" {
		t.Fatalf("manual moves carry no task, got %q", got.CurrentTaskID)
	}
	if !got.LastUpdate.Equal(testNow) {
		t.Fatalf("expected LastUpdate %v, got %v", testNow, got.LastUpdate)
	}

	if len(n.events) != 1 || n.events[0].eventType != event.TypeManualMove {
		t.Fatalf("expected one manual_agv_move event, got %+v", n.events)
	}
	data := n.events[0].data
	if data["agv_id"] != "AGV-001" || data["x"] != 300.0 || data["y"] != 400.0 {
		t.Fatalf("move event mislabeled: %v", data)
	}
}

func TestSendToPositionUnavailable(t *testing.T) {
	charging := idleAGV("AGV-001", geo.Position{}, 60)
	charging.Status = agv.StatusCharging
	store := &mockStore{agvs: []agv.AGV{charging}}
	ctl, _, _ := newControlFixture(store, nil)

	_, err := ctl.SendToPosition(context.Background(), "AGV-001", geo.Position{X: 100})
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	got, _ := store.GetAGV(context.Background(), "AGV-001")
	if got.Status != agv.StatusCharging {
		t.Fatalf("refused command must not change state, got %s", got.Status)
	}
}

func TestSendToPositionUnreachable(t *testing.T) {
	store := &mockStore{agvs: []agv.AGV{idleAGV("AGV-001", geo.Position{X: 0, Y: 0}, 21)}}
	ctl, _, _ := newControlFixture(store, nil)

	// 5000 units needs 50% battery plus the safety margin.
	_, err := ctl.SendToPosition(context.Background(), "AGV-001", geo.Position{X: 3000, Y: 4000})
	if !errors.Is(err, domain.ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}

func TestSendToPositionUnknownAGV(t *testing.T) {
	ctl, _, _ := newControlFixture(&mockStore{}, nil)

	_, err := ctl.SendToPosition(context.Background(), "AGV-404", geo.Position{X: 100})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEmergencyStop(t *testing.T) {
	a := workingAGV("AGV-001", geo.Position{X: 50, Y: 50}, "TSK-001")
	a.Status = agv.StatusTransporting

	tk := pendingTask("TSK-001", geo.Position{}, geo.Position{X: 500})
	tk.AssignedAGVID = "AGV-001"
	tk.StartedAt = &testNow

	store := &mockStore{agvs: []agv.AGV{a}, tasks: []task.Task{tk}}
	ctl, n, cache := newControlFixture(store, nil)

	if err := ctl.EmergencyStop(context.Background(), "AGV-001"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := store.GetAGV(context.Background(), "AGV-001")
	if got.Status != agv.StatusIdle || got.CurrentTaskID != "" {
		t.Fatalf("expected forced idle, got %+v", got)
	}

	// The interrupted task keeps its assignment stamps.
	left, _ := store.GetTask(context.Background(), "TSK-001")
	if left.AssignedAGVID != "AGV-001" || left.StartedAt == nil || left.CompletedAt != nil {
		t.Fatalf("interrupted task should dangle: %+v", left)
	}

	if len(n.alerts) != 1 || n.alerts[0].severity != event.SeverityUrgent {
		t.Fatalf("expected one urgent alert, got %+v", n.alerts)
	}
	if !strings.Contains(n.alerts[0].message, "Emergency stop") {
		t.Fatalf("unexpected alert message: %q", n.alerts[0].message)
	}
	if len(n.events) != 1 || n.events[0].eventType != event.TypeEmergencyStop {
		t.Fatalf("expected one emergency_stop event, got %+v", n.events)
	}
	if n.events[0].data["interrupted_task"] != "TSK-001" {
		t.Fatalf("event should name the interrupted task: %v", n.events[0].data)
	}

	if len(cache.deletes) != 1 || cache.deletes[0] != "AGV-001" {
		t.Fatalf("expected the cached route dropped, got %+v", cache.deletes)
	}
}

func TestEmergencyStopUnknownAGV(t *testing.T) {
	ctl, _, _ := newControlFixture(&mockStore{}, nil)

	if err := ctl.EmergencyStop(context.Background(), "AGV-404"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDangling(t *testing.T) {
	stopped := idleAGV("AGV-001", geo.Position{}, 80)

	carrying := workingAGV("AGV-002", geo.Position{}, "TSK-002")

	orphaned := pendingTask("TSK-001", geo.Position{}, geo.Position{X: 500})
	orphaned.AssignedAGVID = "AGV-001"
	orphaned.StartedAt = &testNow

	healthy := pendingTask("TSK-002", geo.Position{}, geo.Position{X: 500})
	healthy.AssignedAGVID = "AGV-002"
	healthy.StartedAt = &testNow

	ghost := pendingTask("TSK-003", geo.Position{}, geo.Position{X: 500})
	ghost.AssignedAGVID = "AGV-404"
	ghost.StartedAt = &testNow

	store := &mockStore{
		agvs:  []agv.AGV{stopped, carrying},
		tasks: []task.Task{orphaned, healthy, ghost},
	}
	ctl, _, _ := newControlFixture(store, nil)

	dangling, err := ctl.Dangling(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dangling) != 2 {
		t.Fatalf("expected 2 dangling tasks, got %+v", dangling)
	}
	if dangling[0].ID != "TSK-001" || dangling[1].ID != "TSK-003" {
		t.Fatalf("wrong tasks flagged: %+v", dangling)
	}
}

func TestCreateTask(t *testing.T) {
	store := &mockStore{}
	ctl, _, _ := newControlFixture(store, nil)

	created, err := ctl.CreateTask(context.Background(), "", "Move reefer to cold storage",
		geo.Position{X: 100, Y: 0}, geo.Position{X: 900, Y: 0}, task.PriorityHigh, "MSKU-2345678")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(created.ID, "TSK-") {
		t.Fatalf("expected generated TSK- id, got %q", created.ID)
	}
	if created.ContainerID != "MSKU-2345678" || created.Priority != task.PriorityHigh {
		t.Fatalf("task fields wrong: %+v", created)
	}
	if created.EstimatedDuration <= 0 {
		t.Fatalf("expected a duration estimate, got %v", created.EstimatedDuration)
	}

	stored, err := store.GetTask(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("task not persisted: %v", err)
	}
	if !stored.IsPending() {
		t.Fatalf("new task should be pending: %+v", stored)
	}
}

func TestCreateTaskKeepsExplicitID(t *testing.T) {
	ctl, _, _ := newControlFixture(&mockStore{}, nil)

	created, err := ctl.CreateTask(context.Background(), "TSK-CUSTOM", "Shuffle empties",
		geo.Position{}, geo.Position{X: 200}, task.PriorityLow, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ID != "TSK-CUSTOM" {
		t.Fatalf("expected explicit id kept, got %q", created.ID)
	}
}

func TestCreateEmergencyTask(t *testing.T) {
	// An idle AGV near the origin, ready to be drafted.
	store := &mockStore{agvs: []agv.AGV{idleAGV("AGV-001", geo.Position{X: 90, Y: 0}, 95)}}
	ctl, n, _ := newControlFixture(store, nil)

	created, err := ctl.CreateEmergencyTask(context.Background(), "Hazmat spill response",
		geo.Position{X: 100, Y: 0}, geo.Position{X: 500, Y: 0}, "HAZMAT-5555")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ID != "URGENT_20260314_093000" {
		t.Fatalf("expected timestamped URGENT id, got %q", created.ID)
	}
	if created.Priority != task.PriorityUrgent {
		t.Fatalf("expected URGENT priority, got %q", created.Priority)
	}

	if len(n.alerts) != 1 || n.alerts[0].severity != event.SeverityUrgent {
		t.Fatalf("expected one urgent alert, got %+v", n.alerts)
	}

	// Creation event first, then the immediate dispatch.
	if len(n.events) != 2 {
		t.Fatalf("expected creation and assignment events, got %+v", n.events)
	}
	if n.events[0].eventType != event.TypeEmergencyTask || n.events[1].eventType != event.TypeTaskAssigned {
		t.Fatalf("event order wrong: %+v", n.events)
	}

	stored, _ := store.GetTask(context.Background(), created.ID)
	if stored.AssignedAGVID != "AGV-001" {
		t.Fatalf("expected immediate dispatch, got %+v", stored)
	}
	drafted, _ := store.GetAGV(context.Background(), "AGV-001")
	if drafted.Status != agv.StatusMoving || drafted.CurrentTaskID != created.ID {
		t.Fatalf("AGV not drafted: %+v", drafted)
	}
}
