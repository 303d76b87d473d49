package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/portyard/fleetsim/internal/domain/agv"
	"github.com/portyard/fleetsim/internal/domain/geo"
	"github.com/portyard/fleetsim/internal/domain/task"
	"github.com/portyard/fleetsim/internal/port/repository"
)

// seedDemoFleet provisions the demo yard into an empty store: six AGVs
// in mixed states and five tasks, three of them already under way. A
// store that already holds AGVs is left untouched.
func seedDemoFleet(ctx context.Context, store repository.Store) error {
	existing, err := store.ListAGVs(ctx)
	if err != nil {
		return fmt.Errorf("list agvs: %w", err)
	}
	if len(existing) > 0 {
		slog.Info("store already populated, skipping demo fleet", "agvs", len(existing))
		return nil
	}

	agvs := []*agv.AGV{
		demoAGV("AGV-001", "Alfa Prime", geo.Position{X: 100, Y: 50}, 85.5, agv.StatusIdle, ""),
		demoAGV("AGV-002", "Beta Runner", geo.Position{X: 250, Y: 120}, 92.0, agv.StatusMoving, "TSK-001"),
		demoAGV("AGV-003", "Gamma Loader", geo.Position{X: 180, Y: 200}, 67.3, agv.StatusTransporting, "TSK-002"),
		demoAGV("AGV-004", "Delta Force", geo.Position{X: 320, Y: 80}, 15.8, agv.StatusCharging, ""),
		demoAGV("AGV-005", "Echo Navigator", geo.Position{X: 75, Y: 300}, 88.2, agv.StatusIdle, ""),
		demoAGV("AGV-006", "Foxtrot Express", geo.Position{X: 400, Y: 150}, 73.9, agv.StatusMoving, "TSK-003"),
	}

	now := time.Now()
	tasks := []*task.Task{
		demoTask("TSK-001", "Move container MSKU-2345678 to storage zone A-12",
			geo.Position{X: 250, Y: 120}, geo.Position{X: 180, Y: 200},
			task.PriorityHigh, "MSKU-2345678", "AGV-002", now.Add(-5*time.Minute)),
		demoTask("TSK-002", "Move container COSCO-9876543 from vessel to terminal",
			geo.Position{X: 180, Y: 200}, geo.Position{X: 350, Y: 280},
			task.PriorityHigh, "COSCO-9876543", "AGV-003", now.Add(-10*time.Minute)),
		demoTask("TSK-003", "Pick up container EVERGREEN-1122334 at zone C-08",
			geo.Position{X: 400, Y: 150}, geo.Position{X: 120, Y: 350},
			task.PriorityMedium, "EVERGREEN-1122334", "AGV-006", now.Add(-2*time.Minute)),
		demoTask("TSK-004", "Move empty container to washing area",
			geo.Position{X: 75, Y: 300}, geo.Position{X: 450, Y: 100},
			task.PriorityLow, "EMPTY-001", "", time.Time{}),
		demoTask("TSK-005", "Remove hazardous container HAZMAT-5555",
			geo.Position{X: 200, Y: 250}, geo.Position{X: 500, Y: 50},
			task.PriorityUrgent, "HAZMAT-5555", "", time.Time{}),
	}

	for _, a := range agvs {
		if err := store.CreateAGV(ctx, a); err != nil {
			return fmt.Errorf("seed agv %s: %w", a.ID, err)
		}
	}
	for _, t := range tasks {
		if err := store.CreateTask(ctx, t); err != nil {
			return fmt.Errorf("seed task %s: %w", t.ID, err)
		}
	}

	slog.Info("demo fleet seeded", "agvs", len(agvs), "tasks", len(tasks))
	return nil
}

func demoAGV(id, name string, pos geo.Position, battery float64, status agv.Status, taskID string) *agv.AGV {
	a := agv.New(id, name, pos)
	a.Battery = battery
	a.Status = status
	a.CurrentTaskID = taskID
	return a
}

func demoTask(id, description string, origin, dest geo.Position, priority task.Priority,
	containerID, agvID string, startedAt time.Time) *task.Task {
	t := task.New(id, description, origin, dest, priority)
	t.ContainerID = containerID
	t.AssignedAGVID = agvID
	if !startedAt.IsZero() {
		t.StartedAt = &startedAt
	}
	return t
}
