package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/portyard/fleetsim/internal/domain"
	"github.com/portyard/fleetsim/internal/domain/agv"
	"github.com/portyard/fleetsim/internal/domain/geo"
	"github.com/portyard/fleetsim/internal/domain/task"
)

func TestListAGVsStableOrder(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	for _, id := range []string{"AGV-003", "AGV-001", "AGV-002"} {
		if err := s.CreateAGV(ctx, agv.New(id, "n", geo.Position{})); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListAGVs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"AGV-001", "AGV-002", "AGV-003"}
	for i, a := range got {
		if a.ID != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], a.ID)
		}
	}
}

func TestListAvailableAGVsFilters(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	ready := agv.New("AGV-001", "Ready", geo.Position{})

	lowBattery := agv.New("AGV-002", "Low", geo.Position{})
	lowBattery.Battery = 15

	busy := agv.New("AGV-003", "Busy", geo.Position{})
	busy.Status = agv.StatusMoving
	busy.CurrentTaskID = "TSK-001"

	tasked := agv.New("AGV-004", "Tasked", geo.Position{})
	tasked.CurrentTaskID = "TSK-002"

	for _, a := range []*agv.AGV{ready, lowBattery, busy, tasked} {
		if err := s.CreateAGV(ctx, a); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListAvailableAGVs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "AGV-001" {
		t.Fatalf("expected only AGV-001 available, got %+v", got)
	}
}

func TestGetAGVReturnsCopy(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if err := s.CreateAGV(ctx, agv.New("AGV-001", "One", geo.Position{})); err != nil {
		t.Fatal(err)
	}

	first, err := s.GetAGV(ctx, "AGV-001")
	if err != nil {
		t.Fatal(err)
	}
	first.Battery = 1

	second, err := s.GetAGV(ctx, "AGV-001")
	if err != nil {
		t.Fatal(err)
	}
	if second.Battery != 100 {
		t.Fatalf("store state leaked through read copy: battery %v", second.Battery)
	}
}

func TestTaskCloneBreaksAliasing(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	started := time.Now()
	tk := task.New("TSK-001", "move", geo.Position{}, geo.Position{X: 100}, task.PriorityMedium)
	tk.AssignedAGVID = "AGV-001"
	tk.StartedAt = &started

	if err := s.CreateTask(ctx, tk); err != nil {
		t.Fatal(err)
	}

	// Mutating the caller's pointer must not reach the stored task.
	*tk.StartedAt = started.Add(time.Hour)

	got, err := s.GetTask(ctx, "TSK-001")
	if err != nil {
		t.Fatal(err)
	}
	if !got.StartedAt.Equal(started) {
		t.Fatalf("expected started %v, got %v", started, got.StartedAt)
	}
}

func TestPendingTaskFilter(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Now()

	pending := task.New("TSK-001", "waiting", geo.Position{}, geo.Position{X: 10}, task.PriorityLow)

	claimed := task.New("TSK-002", "claimed", geo.Position{}, geo.Position{X: 10}, task.PriorityLow)
	claimed.AssignedAGVID = "AGV-001"
	claimed.StartedAt = &now

	finished := task.New("TSK-003", "finished", geo.Position{}, geo.Position{X: 10}, task.PriorityLow)
	finished.AssignedAGVID = "AGV-001"
	finished.StartedAt = &now
	finished.CompletedAt = &now

	for _, tk := range []*task.Task{pending, claimed, finished} {
		if err := s.CreateTask(ctx, tk); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListPendingTasks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "TSK-001" {
		t.Fatalf("expected only TSK-001 pending, got %+v", got)
	}
}

func TestListTasksByAGV(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	mine := task.New("TSK-001", "mine", geo.Position{}, geo.Position{X: 10}, task.PriorityLow)
	mine.AssignedAGVID = "AGV-001"
	other := task.New("TSK-002", "other", geo.Position{}, geo.Position{X: 10}, task.PriorityLow)
	other.AssignedAGVID = "AGV-002"

	for _, tk := range []*task.Task{mine, other} {
		if err := s.CreateTask(ctx, tk); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListTasksByAGV(ctx, "AGV-001")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "TSK-001" {
		t.Fatalf("expected TSK-001, got %+v", got)
	}
}

func TestCreateDuplicate(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if err := s.CreateAGV(ctx, agv.New("AGV-001", "One", geo.Position{})); err != nil {
		t.Fatal(err)
	}
	err := s.CreateAGV(ctx, agv.New("AGV-001", "Clone", geo.Position{}))
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestDeleteMissingTask(t *testing.T) {
	s := NewStore()
	err := s.DeleteTask(context.Background(), "TSK-missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
