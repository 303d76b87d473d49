// Package memory implements the fleet repository with in-process maps.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/portyard/fleetsim/internal/domain"
	"github.com/portyard/fleetsim/internal/domain/agv"
	"github.com/portyard/fleetsim/internal/domain/task"
	"github.com/portyard/fleetsim/internal/port/repository"
)

// Store keeps the fleet in mutex-guarded maps. Every read hands out a
// copy and list results are sorted by id, so batch decisions always see
// a stable order and callers can never mutate store state except
// through Update.
type Store struct {
	mu    sync.RWMutex
	agvs  map[string]agv.AGV
	tasks map[string]task.Task
}

var _ repository.Store = (*Store)(nil)

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		agvs:  make(map[string]agv.AGV),
		tasks: make(map[string]task.Task),
	}
}

// --- AGVs ---

func (s *Store) ListAGVs(_ context.Context) ([]agv.AGV, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]agv.AGV, 0, len(s.agvs))
	for _, id := range sortedKeys(s.agvs) {
		out = append(out, s.agvs[id])
	}
	return out, nil
}

func (s *Store) ListAvailableAGVs(_ context.Context) ([]agv.AGV, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []agv.AGV
	for _, id := range sortedKeys(s.agvs) {
		a := s.agvs[id]
		if a.IsAvailable() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) GetAGV(_ context.Context, id string) (*agv.AGV, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agvs[id]
	if !ok {
		return nil, fmt.Errorf("agv %s: %w", id, domain.ErrNotFound)
	}
	return &a, nil
}

func (s *Store) CreateAGV(_ context.Context, a *agv.AGV) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agvs[a.ID]; ok {
		return fmt.Errorf("agv %s: %w", a.ID, domain.ErrAlreadyExists)
	}
	s.agvs[a.ID] = *a
	return nil
}

func (s *Store) UpdateAGV(_ context.Context, a *agv.AGV) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agvs[a.ID]; !ok {
		return fmt.Errorf("agv %s: %w", a.ID, domain.ErrNotFound)
	}
	s.agvs[a.ID] = *a
	return nil
}

// --- Tasks ---

func (s *Store) ListTasks(_ context.Context) ([]task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]task.Task, 0, len(s.tasks))
	for _, id := range sortedKeys(s.tasks) {
		out = append(out, cloneTask(s.tasks[id]))
	}
	return out, nil
}

func (s *Store) ListPendingTasks(_ context.Context) ([]task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []task.Task
	for _, id := range sortedKeys(s.tasks) {
		t := s.tasks[id]
		if t.IsPending() {
			out = append(out, cloneTask(t))
		}
	}
	return out, nil
}

func (s *Store) ListTasksByAGV(_ context.Context, agvID string) ([]task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []task.Task
	for _, id := range sortedKeys(s.tasks) {
		t := s.tasks[id]
		if t.AssignedAGVID == agvID {
			out = append(out, cloneTask(t))
		}
	}
	return out, nil
}

func (s *Store) GetTask(_ context.Context, id string) (*task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	c := cloneTask(t)
	return &c, nil
}

func (s *Store) CreateTask(_ context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[t.ID]; ok {
		return fmt.Errorf("task %s: %w", t.ID, domain.ErrAlreadyExists)
	}
	s.tasks[t.ID] = cloneTask(*t)
	return nil
}

func (s *Store) UpdateTask(_ context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[t.ID]; !ok {
		return fmt.Errorf("task %s: %w", t.ID, domain.ErrNotFound)
	}
	s.tasks[t.ID] = cloneTask(*t)
	return nil
}

func (s *Store) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	delete(s.tasks, id)
	return nil
}

// cloneTask duplicates the timestamp pointers so a stored task can
// never alias a caller's copy.
func cloneTask(t task.Task) task.Task {
	if t.StartedAt != nil {
		s := *t.StartedAt
		t.StartedAt = &s
	}
	if t.CompletedAt != nil {
		c := *t.CompletedAt
		t.CompletedAt = &c
	}
	return t
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
