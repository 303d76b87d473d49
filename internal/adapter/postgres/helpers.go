package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/portyard/fleetsim/internal/domain/agv"
	"github.com/portyard/fleetsim/internal/domain/task"
)

// scannable abstracts pgx.Row and pgx.Rows so the scan helpers serve
// both single-row and multi-row queries.
type scannable interface {
	Scan(dest ...any) error
}

func scanAGV(row scannable) (agv.AGV, error) {
	var a agv.AGV
	err := row.Scan(
		&a.ID, &a.Name, &a.Position.X, &a.Position.Y, &a.Position.Zone,
		&a.Battery, &a.Status, &a.CurrentTaskID,
		&a.MaxSpeed, &a.LoadCapacity, &a.LastUpdate,
	)
	return a, err
}

func scanTask(row scannable) (task.Task, error) {
	var t task.Task
	err := row.Scan(
		&t.ID, &t.Description,
		&t.Origin.X, &t.Origin.Y, &t.Origin.Zone,
		&t.Destination.X, &t.Destination.Y, &t.Destination.Zone,
		&t.Priority, &t.ContainerID, &t.AssignedAGVID,
		&t.CreatedAt, &t.StartedAt, &t.CompletedAt, &t.EstimatedDuration,
	)
	return t, err
}

func collectAGVs(rows pgx.Rows) ([]agv.AGV, error) {
	var out []agv.AGV
	for rows.Next() {
		a, err := scanAGV(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func collectTasks(rows pgx.Rows) ([]task.Task, error) {
	var out []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
