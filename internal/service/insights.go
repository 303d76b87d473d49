package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/portyard/fleetsim/internal/domain/agv"
	"github.com/portyard/fleetsim/internal/domain/fleet"
	"github.com/portyard/fleetsim/internal/domain/task"
	"github.com/portyard/fleetsim/internal/port/advisor"
	"github.com/portyard/fleetsim/internal/port/repository"
	"github.com/portyard/fleetsim/internal/resilience"
)

// historyCap bounds the metrics history fed to performance analysis.
const historyCap = 20

// InsightsService computes fleet metrics and produces insights and
// performance analysis, advisor-first with deterministic fallbacks.
type InsightsService struct {
	store   repository.Store
	advisor advisor.Advisor // nil when no advisor is configured
	guard   *resilience.Guard
	routing *RoutingService
	metrics *Instruments
	now     func() time.Time // for testing

	histMu  sync.Mutex
	history []fleet.Metrics
}

// NewInsightsService creates an InsightsService.
func NewInsightsService(store repository.Store, adv advisor.Advisor, guard *resilience.Guard,
	routing *RoutingService, metrics *Instruments) *InsightsService {
	return &InsightsService{
		store:   store,
		advisor: adv,
		guard:   guard,
		routing: routing,
		metrics: metrics,
		now:     time.Now,
	}
}

// Overview is the operator-facing fleet snapshot.
type Overview struct {
	Metrics          fleet.Metrics `json:"metrics"`
	AGVs             []agv.AGV     `json:"agvs"`
	PendingTasks     []task.Task   `json:"pending_tasks"`
	TotalTasks       int           `json:"total_tasks"`
	ActiveRoutes     int           `json:"active_routes"`
	AdvisorAvailable bool          `json:"advisor_available"`
}

// ComputeMetrics builds a fresh fleet snapshot and records it in the
// analysis history and the exported gauges.
func (s *InsightsService) ComputeMetrics(ctx context.Context) (*fleet.Metrics, error) {
	agvs, err := s.store.ListAGVs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list agvs: %w", err)
	}
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	m := buildMetrics(agvs, tasks, s.now())
	s.recordHistory(*m)
	s.recordGauges(ctx, m)
	return m, nil
}

// Overview assembles the full operator snapshot in one pass.
func (s *InsightsService) Overview(ctx context.Context) (*Overview, error) {
	agvs, err := s.store.ListAGVs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list agvs: %w", err)
	}
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	m := buildMetrics(agvs, tasks, s.now())
	s.recordHistory(*m)
	s.recordGauges(ctx, m)

	pending := make([]task.Task, 0)
	for _, t := range tasks {
		if t.IsPending() {
			pending = append(pending, t)
		}
	}

	active, err := s.routing.ActiveRoutes(ctx)
	if err != nil {
		slog.Warn("active route listing failed", "error", err)
	}

	return &Overview{
		Metrics:          *m,
		AGVs:             agvs,
		PendingTasks:     pending,
		TotalTasks:       len(tasks),
		ActiveRoutes:     len(active),
		AdvisorAvailable: s.advisor != nil && s.guard.Available(),
	}, nil
}

// GenerateInsights returns advisor insights for the current snapshot,
// or the local two-rule fallback.
func (s *InsightsService) GenerateInsights(ctx context.Context) ([]fleet.Insight, error) {
	m, err := s.ComputeMetrics(ctx)
	if err != nil {
		return nil, err
	}

	if s.advisor != nil {
		var insights []fleet.Insight
		gErr := s.guard.Do(ctx, "generate_insights", func(ctx context.Context) error {
			var err error
			insights, err = s.advisor.GenerateFleetInsights(ctx, *m)
			return err
		})
		if gErr == nil && insights != nil {
			return insights, nil
		}
	}
	return fallbackInsights(*m), nil
}

// AnalyzePerformance returns the advisor's performance report, or the
// deterministic local one.
func (s *InsightsService) AnalyzePerformance(ctx context.Context) (*fleet.PerformanceReport, error) {
	m, err := s.ComputeMetrics(ctx)
	if err != nil {
		return nil, err
	}

	if s.advisor != nil {
		history := s.snapshotHistory()
		var report *fleet.PerformanceReport
		gErr := s.guard.Do(ctx, "analyze_performance", func(ctx context.Context) error {
			var err error
			report, err = s.advisor.AnalyzeFleetPerformance(ctx, *m, history)
			return err
		})
		if gErr == nil && report != nil {
			return report, nil
		}
	}
	return fallbackPerformance(*m), nil
}

// buildMetrics derives the snapshot counters from full fleet listings.
func buildMetrics(agvs []agv.AGV, tasks []task.Task, ts time.Time) *fleet.Metrics {
	m := &fleet.Metrics{TotalAGVs: len(agvs), Timestamp: ts}

	var batterySum float64
	for _, a := range agvs {
		batterySum += a.Battery
		switch a.Status {
		case agv.StatusMoving, agv.StatusTransporting:
			m.ActiveAGVs++
		case agv.StatusIdle:
			m.IdleAGVs++
		case agv.StatusCharging:
			m.ChargingAGVs++
		}
	}
	if len(agvs) > 0 {
		m.AverageBattery = batterySum / float64(len(agvs))
	}

	for _, t := range tasks {
		switch {
		case t.IsCompleted():
			m.CompletedTasks++
		case t.IsPending():
			m.PendingTasks++
		}
	}

	m.Efficiency = m.ComputeEfficiency()
	return m
}

// fallbackInsights applies the two local rules: flag weak efficiency,
// flag a battery-starved fleet.
func fallbackInsights(m fleet.Metrics) []fleet.Insight {
	var insights []fleet.Insight
	if m.Efficiency < 0.7 {
		insights = append(insights, fleet.Insight{
			Category:       fleet.CategoryEfficiency,
			Title:          "Fleet efficiency below target",
			Description:    fmt.Sprintf("Fleet efficiency is %.0f%%; target is 70%%.", m.Efficiency*100),
			Impact:         fleet.ImpactMedium,
			Recommendation: "Assign pending tasks to idle AGVs to raise utilization",
			Metrics:        map[string]float64{"fleet_efficiency": m.Efficiency},
			Priority:       2,
		})
	}
	if m.AverageBattery < 50 {
		insights = append(insights, fleet.Insight{
			Category:       fleet.CategoryAlert,
			Title:          "Fleet battery level low",
			Description:    fmt.Sprintf("Average battery is %.0f%%; sustained operation is at risk.", m.AverageBattery),
			Impact:         fleet.ImpactHigh,
			Recommendation: "Rotate AGVs through charging before accepting new work",
			Metrics:        map[string]float64{"average_battery": m.AverageBattery},
			Priority:       1,
		})
	}
	return insights
}

// fallbackPerformance derives the deterministic report from one
// snapshot.
func fallbackPerformance(m fleet.Metrics) *fleet.PerformanceReport {
	category := "AVERAGE"
	if m.Efficiency > 0.7 {
		category = "GOOD"
	}
	batteryMgmt := "NEEDS_IMPROVEMENT"
	if m.AverageBattery > 50 {
		batteryMgmt = "GOOD"
	}
	var utilization float64
	if m.TotalAGVs > 0 {
		utilization = float64(m.ActiveAGVs) / float64(m.TotalAGVs)
	}

	return &fleet.PerformanceReport{
		Score:    m.Efficiency,
		Category: category,
		Summary: fmt.Sprintf("%d of %d AGVs active, average battery %.0f%%",
			m.ActiveAGVs, m.TotalAGVs, m.AverageBattery),
		UtilizationRate:   utilization,
		BatteryManagement: batteryMgmt,
		Recommendations: []fleet.Recommendation{{
			Priority:       "MEDIUM",
			Action:         "Review charging cycles against shift schedules",
			ExpectedImpact: "Steadier battery reserve across the fleet",
		}},
	}
}

func (s *InsightsService) recordHistory(m fleet.Metrics) {
	s.histMu.Lock()
	defer s.histMu.Unlock()

	s.history = append(s.history, m)
	if len(s.history) > historyCap {
		s.history = s.history[len(s.history)-historyCap:]
	}
}

func (s *InsightsService) snapshotHistory() []fleet.Metrics {
	s.histMu.Lock()
	defer s.histMu.Unlock()

	return slices.Clone(s.history)
}

func (s *InsightsService) recordGauges(ctx context.Context, m *fleet.Metrics) {
	if s.metrics == nil {
		return
	}
	s.metrics.FleetEfficiency.Record(ctx, m.Efficiency)
	s.metrics.AvgBattery.Record(ctx, m.AverageBattery)
}
