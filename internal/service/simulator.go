package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/portyard/fleetsim/internal/domain/agv"
	"github.com/portyard/fleetsim/internal/domain/event"
	"github.com/portyard/fleetsim/internal/domain/task"
	"github.com/portyard/fleetsim/internal/port/notifier"
	"github.com/portyard/fleetsim/internal/port/repository"
)

// Rand is the source of simulation randomness. A math/rand/v2 *Rand
// satisfies it; tests inject scripted sequences.
type Rand interface {
	Float64() float64
}

// Simulation step tuning. Distances in yard units, battery in percent.
const (
	arrivalRadius = 5.0  // snap to destination inside this distance
	maxStep       = 10.0 // distance covered per tick

	moveDrainBase   = 0.1 // moving drain: base + rand*spread
	moveDrainSpread = 0.2

	chargeGainBase   = 2.0 // charging gain: base + rand*spread
	chargeGainSpread = 3.0
	chargeDoneLevel  = 90.0

	idleDrainBase   = 0.01 // idle drain: base + rand*spread
	idleDrainSpread = 0.04

	chargeSeekLevel = 20.0 // idle AGVs below this may head to charge
	chargeSeekOdds  = 0.3
)

// Simulator advances the physical state of the fleet tick by tick:
// movement toward task destinations, battery drain and recharge, and
// spontaneous charging decisions for depleted idle AGVs.
type Simulator struct {
	store    repository.Store
	notifier notifier.Notifier
	metrics  *Instruments
	mu       *sync.Mutex // fleet commit lock, shared with assignment and control
	rand     Rand
	period   time.Duration
	now      func() time.Time // for testing
}

// NewSimulator creates a Simulator sharing the fleet commit lock mu.
// period is the real-time interval between ticks.
func NewSimulator(store repository.Store, n notifier.Notifier, metrics *Instruments,
	mu *sync.Mutex, src Rand, period time.Duration) *Simulator {
	return &Simulator{
		store:    store,
		notifier: n,
		metrics:  metrics,
		mu:       mu,
		rand:     src,
		period:   period,
		now:      time.Now,
	}
}

// Run ticks the simulation until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	slog.Info("simulator running", "period", s.period)
	for {
		select {
		case <-ctx.Done():
			slog.Info("simulator stopped")
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			if err := s.Tick(ctx); err != nil {
				if ctx.Err() != nil {
					slog.Info("simulator stopped")
					return ctx.Err()
				}
				slog.Error("tick failed", "error", err)
				continue
			}
			if s.metrics != nil {
				s.metrics.TickDuration.Record(ctx, time.Since(start).Seconds())
			}
		}
	}
}

// Tick advances every AGV once. Cancellation is honored between AGV
// updates: a partial tick is fine, a partial AGV update is not.
func (s *Simulator) Tick(ctx context.Context) error {
	agvs, err := s.store.ListAGVs(ctx)
	if err != nil {
		return fmt.Errorf("list agvs: %w", err)
	}

	for _, snapshot := range agvs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if done := s.updateAGV(ctx, snapshot.ID); done != nil {
			s.announceCompletion(ctx, done)
		}
	}

	if s.metrics != nil {
		s.metrics.TicksTotal.Add(ctx, 1)
	}
	return nil
}

// updateAGV advances one AGV under the commit lock. The listing that
// drove the tick may be stale, so the entity is re-read first. Returns
// the task completed by this update, if any.
func (s *Simulator) updateAGV(ctx context.Context, id string) *task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.store.GetAGV(ctx, id)
	if err != nil {
		slog.Warn("tick skipping agv", "agv_id", id, "error", err)
		return nil
	}

	var completed *task.Task
	switch {
	case (a.Status == agv.StatusMoving || a.Status == agv.StatusTransporting) && a.CurrentTaskID != "":
		completed = s.advance(ctx, a)
	case a.Status == agv.StatusCharging:
		s.charge(a)
	case a.Status == agv.StatusIdle:
		s.idle(a)
	default:
		// MAINTENANCE, and manually moved AGVs without a task, hold still.
		return nil
	}

	a.ClampBattery()
	a.LastUpdate = s.now()
	if err := s.store.UpdateAGV(ctx, a); err != nil {
		slog.Error("tick agv update failed", "agv_id", a.ID, "error", err)
		return nil
	}
	if completed != nil {
		if err := s.store.UpdateTask(ctx, completed); err != nil {
			slog.Error("tick task completion failed", "task_id", completed.ID, "error", err)
			return nil
		}
	}
	return completed
}

// advance moves a working AGV toward its task destination, completing
// the task on arrival.
func (s *Simulator) advance(ctx context.Context, a *agv.AGV) *task.Task {
	t, err := s.store.GetTask(ctx, a.CurrentTaskID)
	if err != nil {
		slog.Warn("working agv references unknown task, idling",
			"agv_id", a.ID, "task_id", a.CurrentTaskID, "error", err)
		a.Status = agv.StatusIdle
		a.CurrentTaskID = ""
		return nil
	}

	a.Battery -= moveDrainBase + s.rand.Float64()*moveDrainSpread

	remaining := a.Position.DistanceTo(t.Destination)
	if remaining <= arrivalRadius {
		a.Position = t.Destination
		a.Status = agv.StatusIdle
		a.CurrentTaskID = ""
		now := s.now()
		t.CompletedAt = &now
		return t
	}

	step := math.Min(maxStep, remaining)
	a.Position.X += (t.Destination.X - a.Position.X) / remaining * step
	a.Position.Y += (t.Destination.Y - a.Position.Y) / remaining * step
	return nil
}

// charge tops up a charging AGV and releases it once it crosses the
// done level.
func (s *Simulator) charge(a *agv.AGV) {
	a.Battery += chargeGainBase + s.rand.Float64()*chargeGainSpread
	if a.Battery >= chargeDoneLevel {
		a.Status = agv.StatusIdle
	}
}

// idle applies standby drain. Depleted AGVs head to charge with a
// fixed probability per tick.
func (s *Simulator) idle(a *agv.AGV) {
	a.Battery -= idleDrainBase + s.rand.Float64()*idleDrainSpread
	if a.Battery < chargeSeekLevel && s.rand.Float64() < chargeSeekOdds {
		a.Status = agv.StatusCharging
	}
}

func (s *Simulator) announceCompletion(ctx context.Context, t *task.Task) {
	if err := s.notifier.LogEvent(ctx, event.TypeTaskCompleted, map[string]any{
		"task_id": t.ID,
		"agv_id":  t.AssignedAGVID,
	}); err != nil {
		slog.Warn("event delivery failed", "event", event.TypeTaskCompleted, "error", err)
	}
	if s.metrics != nil {
		s.metrics.TasksCompleted.Add(ctx, 1)
	}
	slog.Info("task completed", "task_id", t.ID, "agv_id", t.AssignedAGVID)
}
