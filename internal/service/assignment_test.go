package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/portyard/fleetsim/internal/domain"
	"github.com/portyard/fleetsim/internal/domain/agv"
	"github.com/portyard/fleetsim/internal/domain/event"
	"github.com/portyard/fleetsim/internal/domain/fleet"
	"github.com/portyard/fleetsim/internal/domain/geo"
	"github.com/portyard/fleetsim/internal/domain/route"
	"github.com/portyard/fleetsim/internal/domain/task"
	"github.com/portyard/fleetsim/internal/port/advisor"
	"github.com/portyard/fleetsim/internal/port/repository"
	"github.com/portyard/fleetsim/internal/resilience"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// testGuard returns an advisor guard that effectively never trips, so
// service tests exercise advice handling rather than breaker behavior.
func testGuard() *resilience.Guard {
	return resilience.NewGuard(resilience.NewBreaker(100, time.Minute),
		time.Second, time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// Ensure mockStore implements repository.Store at compile time.
var _ repository.Store = (*mockStore)(nil)

// mockStore is a minimal in-memory implementation of repository.Store
// for testing. Get methods return copies, so mutations only land once
// the matching Update is called.
type mockStore struct {
	agvs  []agv.AGV
	tasks []task.Task

	// Error hooks; set these to inject failures.
	listAGVsErr      error
	listAvailableErr error
	getAGVErr        error
	updateAGVErr     error
	listTasksErr     error
	listPendingErr   error
	getTaskErr       error
	createTaskErr    error
	updateTaskErr    error
}

func (m *mockStore) ListAGVs(_ context.Context) ([]agv.AGV, error) {
	if m.listAGVsErr != nil {
		return nil, m.listAGVsErr
	}
	return append([]agv.AGV(nil), m.agvs...), nil
}

func (m *mockStore) ListAvailableAGVs(_ context.Context) ([]agv.AGV, error) {
	if m.listAvailableErr != nil {
		return nil, m.listAvailableErr
	}
	var out []agv.AGV
	for i := range m.agvs {
		if m.agvs[i].IsAvailable() {
			out = append(out, m.agvs[i])
		}
	}
	return out, nil
}

func (m *mockStore) GetAGV(_ context.Context, id string) (*agv.AGV, error) {
	if m.getAGVErr != nil {
		return nil, m.getAGVErr
	}
	for i := range m.agvs {
		if m.agvs[i].ID == id {
			a := m.agvs[i]
			return &a, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) CreateAGV(_ context.Context, a *agv.AGV) error {
	for i := range m.agvs {
		if m.agvs[i].ID == a.ID {
			return domain.ErrAlreadyExists
		}
	}
	m.agvs = append(m.agvs, *a)
	return nil
}

func (m *mockStore) UpdateAGV(_ context.Context, a *agv.AGV) error {
	if m.updateAGVErr != nil {
		return m.updateAGVErr
	}
	for i := range m.agvs {
		if m.agvs[i].ID == a.ID {
			m.agvs[i] = *a
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) ListTasks(_ context.Context) ([]task.Task, error) {
	if m.listTasksErr != nil {
		return nil, m.listTasksErr
	}
	return append([]task.Task(nil), m.tasks...), nil
}

func (m *mockStore) ListPendingTasks(_ context.Context) ([]task.Task, error) {
	if m.listPendingErr != nil {
		return nil, m.listPendingErr
	}
	var out []task.Task
	for i := range m.tasks {
		if m.tasks[i].IsPending() {
			out = append(out, m.tasks[i])
		}
	}
	return out, nil
}

func (m *mockStore) ListTasksByAGV(_ context.Context, agvID string) ([]task.Task, error) {
	var out []task.Task
	for i := range m.tasks {
		if m.tasks[i].AssignedAGVID == agvID {
			out = append(out, m.tasks[i])
		}
	}
	return out, nil
}

func (m *mockStore) GetTask(_ context.Context, id string) (*task.Task, error) {
	if m.getTaskErr != nil {
		return nil, m.getTaskErr
	}
	for i := range m.tasks {
		if m.tasks[i].ID == id {
			t := m.tasks[i]
			return &t, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) CreateTask(_ context.Context, t *task.Task) error {
	if m.createTaskErr != nil {
		return m.createTaskErr
	}
	for i := range m.tasks {
		if m.tasks[i].ID == t.ID {
			return domain.ErrAlreadyExists
		}
	}
	m.tasks = append(m.tasks, *t)
	return nil
}

func (m *mockStore) UpdateTask(_ context.Context, t *task.Task) error {
	if m.updateTaskErr != nil {
		return m.updateTaskErr
	}
	for i := range m.tasks {
		if m.tasks[i].ID == t.ID {
			m.tasks[i] = *t
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) DeleteTask(_ context.Context, id string) error {
	for i := range m.tasks {
		if m.tasks[i].ID == id {
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

// Ensure mockAdvisor implements advisor.Advisor at compile time.
var _ advisor.Advisor = (*mockAdvisor)(nil)

// mockAdvisor is a scriptable advisor. Zero value means "reachable but
// silent": every call succeeds with nil advice. Route planning may run
// concurrently, hence the mutex.
type mockAdvisor struct {
	mu sync.Mutex

	route      *route.Route
	routeErr   error
	routeCalls int

	fleetRoutes    map[string]*route.Route
	fleetRoutesErr error

	zones    []fleet.CongestionZone
	zonesErr error

	assignment      map[string]string
	assignmentErr   error
	assignmentCalls int

	report    *fleet.PerformanceReport
	reportErr error

	predictions    map[string]fleet.MaintenancePrediction
	predictionsErr error

	insights    []fleet.Insight
	insightsErr error
}

func (m *mockAdvisor) OptimizeRoute(_ context.Context, _ agv.AGV, _ task.Task) (*route.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routeCalls++
	return m.route, m.routeErr
}

func (m *mockAdvisor) OptimizeFleetRoutes(_ context.Context, _ []agv.AGV, _ []task.Task) (map[string]*route.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fleetRoutes, m.fleetRoutesErr
}

func (m *mockAdvisor) PredictCongestion(_ context.Context, _ []route.Route) ([]fleet.CongestionZone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.zones, m.zonesErr
}

func (m *mockAdvisor) RecommendAssignment(_ context.Context, _ []agv.AGV, _ []task.Task) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignmentCalls++
	return m.assignment, m.assignmentErr
}

func (m *mockAdvisor) AnalyzeFleetPerformance(_ context.Context, _ fleet.Metrics, _ []fleet.Metrics) (*fleet.PerformanceReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.report, m.reportErr
}

func (m *mockAdvisor) PredictMaintenanceNeeds(_ context.Context, _ []agv.AGV) (map[string]fleet.MaintenancePrediction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.predictions, m.predictionsErr
}

func (m *mockAdvisor) GenerateFleetInsights(_ context.Context, _ fleet.Metrics) ([]fleet.Insight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insights, m.insightsErr
}

// mockNotifier records events and alerts.
type mockNotifier struct {
	events []loggedEvent
	alerts []sentAlert

	logEventErr  error
	sendAlertErr error
}

type loggedEvent struct {
	eventType event.Type
	data      map[string]any
}

type sentAlert struct {
	message  string
	severity string
}

func (m *mockNotifier) Name() string { return "mock" }

func (m *mockNotifier) LogEvent(_ context.Context, eventType event.Type, data map[string]any) error {
	if m.logEventErr != nil {
		return m.logEventErr
	}
	m.events = append(m.events, loggedEvent{eventType, data})
	return nil
}

func (m *mockNotifier) SendAlert(_ context.Context, message, severity string) error {
	if m.sendAlertErr != nil {
		return m.sendAlertErr
	}
	m.alerts = append(m.alerts, sentAlert{message, severity})
	return nil
}

// --- AssignmentService tests ---

func newAssignmentFixture(store *mockStore, adv advisor.Advisor) (*AssignmentService, *mockNotifier, *mockCache) {
	guard := testGuard()
	cache := newMockCache()
	routing := NewRoutingService(store, adv, guard, resilience.NewPool(4), cache, time.Minute)
	n := &mockNotifier{}
	var mu sync.Mutex
	svc := NewAssignmentService(store, adv, guard, routing, n, nil, &mu)
	svc.now = func() time.Time { return testNow }
	return svc, n, cache
}

func idleAGV(id string, pos geo.Position, battery float64) agv.AGV {
	a := agv.New(id, "Test "+id, pos)
	a.Battery = battery
	return *a
}

func pendingTask(id string, origin, dest geo.Position) task.Task {
	return *task.New(id, "Move container "+id, origin, dest, task.PriorityMedium)
}

func TestAssignPendingTasksGreedyPicksNearest(t *testing.T) {
	store := &mockStore{
		agvs: []agv.AGV{
			idleAGV("AGV-001", geo.Position{X: 500, Y: 0}, 80),
			idleAGV("AGV-002", geo.Position{X: 10, Y: 0}, 80),
		},
		tasks: []task.Task{
			pendingTask("TSK-001", geo.Position{X: 0, Y: 0}, geo.Position{X: 100, Y: 100}),
		},
	}
	svc, n, cache := newAssignmentFixture(store, nil)

	assigned, err := svc.AssignPendingTasks(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if assigned != 1 {
		t.Fatalf("expected 1 assignment, got %d", assigned)
	}

	a, _ := store.GetAGV(context.Background(), "AGV-002")
	if a.Status != agv.StatusMoving || a.CurrentTaskID != "TSK-001" {
		t.Fatalf("nearest AGV not assigned: status=%s task=%q", a.Status, a.CurrentTaskID)
	}
	far, _ := store.GetAGV(context.Background(), "AGV-001")
	if far.Status != agv.StatusIdle || far.CurrentTaskID != "" {
		t.Fatalf("far AGV should stay idle: status=%s task=%q", far.Status, far.CurrentTaskID)
	}

	tk, _ := store.GetTask(context.Background(), "TSK-001")
	if tk.AssignedAGVID != "AGV-002" {
		t.Fatalf("expected task assigned to AGV-002, got %q", tk.AssignedAGVID)
	}
	if tk.StartedAt == nil || !tk.StartedAt.Equal(testNow) {
		t.Fatalf("expected StartedAt %v, got %v", testNow, tk.StartedAt)
	}

	if len(n.events) != 1 || n.events[0].eventType != event.TypeTaskAssigned {
		t.Fatalf("expected one task_assigned event, got %+v", n.events)
	}
	if n.events[0].data["agv_id"] != "AGV-002" {
		t.Fatalf("event names wrong AGV: %v", n.events[0].data)
	}
	if cache.get("AGV-002") == nil {
		t.Fatal("expected a route cached for the assigned AGV")
	}
}

func TestAssignPendingTasksHonorsAdvisor(t *testing.T) {
	store := &mockStore{
		agvs: []agv.AGV{
			idleAGV("AGV-001", geo.Position{X: 10, Y: 0}, 80),
			idleAGV("AGV-002", geo.Position{X: 500, Y: 0}, 80),
		},
		tasks: []task.Task{
			pendingTask("TSK-001", geo.Position{X: 0, Y: 0}, geo.Position{X: 100, Y: 100}),
		},
	}
	// The advisor deliberately picks the farther AGV.
	adv := &mockAdvisor{assignment: map[string]string{"AGV-002": "TSK-001"}}
	svc, _, _ := newAssignmentFixture(store, adv)

	assigned, err := svc.AssignPendingTasks(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if assigned != 1 {
		t.Fatalf("expected 1 assignment, got %d", assigned)
	}
	if adv.assignmentCalls != 1 {
		t.Fatalf("expected 1 advisor call, got %d", adv.assignmentCalls)
	}

	a, _ := store.GetAGV(context.Background(), "AGV-002")
	if a.CurrentTaskID != "TSK-001" {
		t.Fatalf("advisor choice ignored: %q", a.CurrentTaskID)
	}
}

func TestAssignPendingTasksAdvisorFailureFallsBack(t *testing.T) {
	store := &mockStore{
		agvs: []agv.AGV{
			idleAGV("AGV-001", geo.Position{X: 10, Y: 0}, 80),
		},
		tasks: []task.Task{
			pendingTask("TSK-001", geo.Position{X: 0, Y: 0}, geo.Position{X: 100, Y: 100}),
		},
	}
	adv := &mockAdvisor{assignmentErr: errors.New("advisor down")}
	svc, _, _ := newAssignmentFixture(store, adv)

	assigned, err := svc.AssignPendingTasks(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if assigned != 1 {
		t.Fatalf("expected greedy fallback to assign, got %d", assigned)
	}
}

func TestAssignPendingTasksDropsDuplicateTask(t *testing.T) {
	store := &mockStore{
		agvs: []agv.AGV{
			idleAGV("AGV-001", geo.Position{X: 10, Y: 0}, 80),
			idleAGV("AGV-002", geo.Position{X: 20, Y: 0}, 80),
		},
		tasks: []task.Task{
			pendingTask("TSK-001", geo.Position{X: 0, Y: 0}, geo.Position{X: 100, Y: 100}),
		},
	}
	adv := &mockAdvisor{assignment: map[string]string{
		"AGV-001": "TSK-001",
		"AGV-002": "TSK-001",
	}}
	svc, _, _ := newAssignmentFixture(store, adv)

	assigned, err := svc.AssignPendingTasks(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if assigned != 1 {
		t.Fatalf("expected exactly 1 assignment, got %d", assigned)
	}

	// Lowest AGV id wins the contested task.
	a1, _ := store.GetAGV(context.Background(), "AGV-001")
	a2, _ := store.GetAGV(context.Background(), "AGV-002")
	if a1.CurrentTaskID != "TSK-001" || a2.CurrentTaskID != "" {
		t.Fatalf("duplicate resolution wrong: a1=%q a2=%q", a1.CurrentTaskID, a2.CurrentTaskID)
	}
}

func TestAssignPendingTasksRejectsStaleAdvice(t *testing.T) {
	charging := idleAGV("AGV-002", geo.Position{X: 10, Y: 0}, 80)
	charging.Status = agv.StatusCharging

	store := &mockStore{
		agvs: []agv.AGV{
			idleAGV("AGV-001", geo.Position{X: 400, Y: 0}, 80),
			charging,
		},
		tasks: []task.Task{
			pendingTask("TSK-001", geo.Position{X: 0, Y: 0}, geo.Position{X: 100, Y: 100}),
		},
	}
	// The advisor names an AGV that is no longer available.
	adv := &mockAdvisor{assignment: map[string]string{"AGV-002": "TSK-001"}}
	svc, _, _ := newAssignmentFixture(store, adv)

	assigned, err := svc.AssignPendingTasks(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if assigned != 0 {
		t.Fatalf("expected stale pair skipped, got %d assignments", assigned)
	}

	tk, _ := store.GetTask(context.Background(), "TSK-001")
	if !tk.IsPending() {
		t.Fatalf("task should remain pending: %+v", tk)
	}
}

func TestAssignPendingTasksSkipsUnreachableTask(t *testing.T) {
	store := &mockStore{
		agvs: []agv.AGV{
			// Available (battery above 20) but far too weak for a
			// 5000-unit approach.
			idleAGV("AGV-001", geo.Position{X: 0, Y: 0}, 35),
		},
		tasks: []task.Task{
			pendingTask("TSK-001", geo.Position{X: 3000, Y: 4000}, geo.Position{X: 3100, Y: 4000}),
		},
	}
	svc, _, _ := newAssignmentFixture(store, nil)

	assigned, err := svc.AssignPendingTasks(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if assigned != 0 {
		t.Fatalf("expected unreachable task skipped, got %d", assigned)
	}
}

func TestAssignPendingTasksGreedyBatteryFloor(t *testing.T) {
	store := &mockStore{
		agvs: []agv.AGV{
			// Above the availability floor, below the greedy pairing
			// floor.
			idleAGV("AGV-001", geo.Position{X: 10, Y: 0}, 25),
		},
		tasks: []task.Task{
			pendingTask("TSK-001", geo.Position{X: 0, Y: 0}, geo.Position{X: 50, Y: 0}),
		},
	}
	svc, _, _ := newAssignmentFixture(store, nil)

	assigned, err := svc.AssignPendingTasks(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if assigned != 0 {
		t.Fatalf("expected no pairing below the greedy floor, got %d", assigned)
	}
}

func TestAssignPendingTasksRevertsOnAGVWriteFailure(t *testing.T) {
	store := &mockStore{
		agvs: []agv.AGV{
			idleAGV("AGV-001", geo.Position{X: 10, Y: 0}, 80),
		},
		tasks: []task.Task{
			pendingTask("TSK-001", geo.Position{X: 0, Y: 0}, geo.Position{X: 100, Y: 100}),
		},
		updateAGVErr: errors.New("connection reset"),
	}
	svc, n, _ := newAssignmentFixture(store, nil)

	assigned, err := svc.AssignPendingTasks(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if assigned != 0 {
		t.Fatalf("expected no assignment after write failure, got %d", assigned)
	}

	tk, _ := store.GetTask(context.Background(), "TSK-001")
	if tk.AssignedAGVID != "" || tk.StartedAt != nil {
		t.Fatalf("task not reverted: %+v", tk)
	}
	if len(n.events) != 0 {
		t.Fatalf("no event should be emitted for a failed commit, got %+v", n.events)
	}
}

func TestAssignPendingTasksEmptyBacklog(t *testing.T) {
	store := &mockStore{
		agvs: []agv.AGV{idleAGV("AGV-001", geo.Position{}, 80)},
	}
	adv := &mockAdvisor{}
	svc, _, _ := newAssignmentFixture(store, adv)

	assigned, err := svc.AssignPendingTasks(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if assigned != 0 {
		t.Fatalf("expected 0 assignments, got %d", assigned)
	}
	if adv.assignmentCalls != 0 {
		t.Fatalf("advisor should not be consulted for an empty backlog, got %d calls", adv.assignmentCalls)
	}
}

func TestAssignPendingTasksNilAdviceFallsBack(t *testing.T) {
	store := &mockStore{
		agvs: []agv.AGV{
			idleAGV("AGV-001", geo.Position{X: 10, Y: 0}, 80),
		},
		tasks: []task.Task{
			pendingTask("TSK-001", geo.Position{X: 0, Y: 0}, geo.Position{X: 100, Y: 100}),
		},
	}
	// Zero-value advisor answers every call with nil advice.
	svc, _, _ := newAssignmentFixture(store, &mockAdvisor{})

	assigned, err := svc.AssignPendingTasks(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if assigned != 1 {
		t.Fatalf("expected greedy fallback on nil advice, got %d", assigned)
	}
}
