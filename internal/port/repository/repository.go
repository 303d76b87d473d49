// Package repository defines the fleet storage port (interface).
package repository

import (
	"context"

	"github.com/portyard/fleetsim/internal/domain/agv"
	"github.com/portyard/fleetsim/internal/domain/task"
)

// Store is the port interface the engine reads and writes the fleet
// through. Single-entity reads return domain.ErrNotFound for unknown
// ids. List methods return copies in a stable order so batch decisions
// are reproducible.
type Store interface {
	// AGVs
	ListAGVs(ctx context.Context) ([]agv.AGV, error)
	ListAvailableAGVs(ctx context.Context) ([]agv.AGV, error)
	GetAGV(ctx context.Context, id string) (*agv.AGV, error)
	CreateAGV(ctx context.Context, a *agv.AGV) error
	UpdateAGV(ctx context.Context, a *agv.AGV) error

	// Tasks
	ListTasks(ctx context.Context) ([]task.Task, error)
	// ListPendingTasks returns tasks with no completion stamp and no
	// assigned AGV.
	ListPendingTasks(ctx context.Context) ([]task.Task, error)
	ListTasksByAGV(ctx context.Context, agvID string) ([]task.Task, error)
	GetTask(ctx context.Context, id string) (*task.Task, error)
	CreateTask(ctx context.Context, t *task.Task) error
	UpdateTask(ctx context.Context, t *task.Task) error
	DeleteTask(ctx context.Context, id string) error
}
