package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/portyard/fleetsim/internal/domain"
	"github.com/portyard/fleetsim/internal/domain/agv"
	"github.com/portyard/fleetsim/internal/domain/task"
	"github.com/portyard/fleetsim/internal/port/repository"
)

const (
	agvColumns = `id, name, x, y, zone, battery, status, current_task_id,
	 max_speed, load_capacity, last_update`

	taskColumns = `id, description, origin_x, origin_y, origin_zone,
	 dest_x, dest_y, dest_zone, priority, container_id, assigned_agv_id,
	 created_at, started_at, completed_at, estimated_duration`
)

// Store implements repository.Store using PostgreSQL. Queries order by
// id so list results match the contract's stable-order requirement.
type Store struct {
	pool *pgxpool.Pool
}

var _ repository.Store = (*Store)(nil)

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- AGVs ---

func (s *Store) ListAGVs(ctx context.Context) ([]agv.AGV, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+agvColumns+` FROM agvs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list agvs: %w", err)
	}
	defer rows.Close()

	return collectAGVs(rows)
}

func (s *Store) ListAvailableAGVs(ctx context.Context) ([]agv.AGV, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+agvColumns+` FROM agvs
		 WHERE status = $1 AND battery > 20 AND current_task_id = ''
		 ORDER BY id`, agv.StatusIdle)
	if err != nil {
		return nil, fmt.Errorf("list available agvs: %w", err)
	}
	defer rows.Close()

	return collectAGVs(rows)
}

func (s *Store) GetAGV(ctx context.Context, id string) (*agv.AGV, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+agvColumns+` FROM agvs WHERE id = $1`, id)

	a, err := scanAGV(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("agv %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get agv %s: %w", id, err)
	}
	return &a, nil
}

func (s *Store) CreateAGV(ctx context.Context, a *agv.AGV) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO agvs (`+agvColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.Name, a.Position.X, a.Position.Y, a.Position.Zone,
		a.Battery, a.Status, a.CurrentTaskID, a.MaxSpeed, a.LoadCapacity, a.LastUpdate)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("agv %s: %w", a.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("create agv %s: %w", a.ID, err)
	}
	return nil
}

func (s *Store) UpdateAGV(ctx context.Context, a *agv.AGV) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agvs SET name = $2, x = $3, y = $4, zone = $5, battery = $6,
		 status = $7, current_task_id = $8, max_speed = $9, load_capacity = $10,
		 last_update = $11
		 WHERE id = $1`,
		a.ID, a.Name, a.Position.X, a.Position.Y, a.Position.Zone,
		a.Battery, a.Status, a.CurrentTaskID, a.MaxSpeed, a.LoadCapacity, a.LastUpdate)
	if err != nil {
		return fmt.Errorf("update agv %s: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("agv %s: %w", a.ID, domain.ErrNotFound)
	}
	return nil
}

// --- Tasks ---

func (s *Store) ListTasks(ctx context.Context) ([]task.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

func (s *Store) ListPendingTasks(ctx context.Context) ([]task.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE completed_at IS NULL AND assigned_agv_id = ''
		 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list pending tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

func (s *Store) ListTasksByAGV(ctx context.Context, agvID string) ([]task.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE assigned_agv_id = $1 ORDER BY id`, agvID)
	if err != nil {
		return nil, fmt.Errorf("list tasks for agv %s: %w", agvID, err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)

	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return &t, nil
}

func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tasks (`+taskColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		t.ID, t.Description, t.Origin.X, t.Origin.Y, t.Origin.Zone,
		t.Destination.X, t.Destination.Y, t.Destination.Zone,
		t.Priority, t.ContainerID, t.AssignedAGVID,
		t.CreatedAt, t.StartedAt, t.CompletedAt, t.EstimatedDuration)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("task %s: %w", t.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("create task %s: %w", t.ID, err)
	}
	return nil
}

func (s *Store) UpdateTask(ctx context.Context, t *task.Task) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET description = $2, origin_x = $3, origin_y = $4,
		 origin_zone = $5, dest_x = $6, dest_y = $7, dest_zone = $8,
		 priority = $9, container_id = $10, assigned_agv_id = $11,
		 created_at = $12, started_at = $13, completed_at = $14,
		 estimated_duration = $15
		 WHERE id = $1`,
		t.ID, t.Description, t.Origin.X, t.Origin.Y, t.Origin.Zone,
		t.Destination.X, t.Destination.Y, t.Destination.Zone,
		t.Priority, t.ContainerID, t.AssignedAGVID,
		t.CreatedAt, t.StartedAt, t.CompletedAt, t.EstimatedDuration)
	if err != nil {
		return fmt.Errorf("update task %s: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s: %w", t.ID, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
