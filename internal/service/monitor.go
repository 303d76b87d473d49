package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/portyard/fleetsim/internal/domain/agv"
	"github.com/portyard/fleetsim/internal/domain/event"
	"github.com/portyard/fleetsim/internal/domain/fleet"
	"github.com/portyard/fleetsim/internal/port/advisor"
	"github.com/portyard/fleetsim/internal/port/notifier"
	"github.com/portyard/fleetsim/internal/port/repository"
	"github.com/portyard/fleetsim/internal/resilience"
)

// Monitor thresholds.
const (
	lowBatteryLevel      = 20.0
	criticalBatteryLevel = 10.0
	idleTooLong          = 30 * time.Minute

	// Maintenance fallback: below maintBatteryLevel (or while charging)
	// an AGV is flagged; below maintUrgentBattery the urgency is HIGH.
	maintBatteryLevel   = 50.0
	maintUrgentBattery  = 20.0
	maintCostBase       = 100.0
	maintCostSpread     = 400.0
	maintDowntimeBase   = 1.0
	maintDowntimeSpread = 3.0
)

// MonitorService scans the fleet for conditions an operator should see
// and delivers them as alerts.
type MonitorService struct {
	store    repository.Store
	advisor  advisor.Advisor // nil when no advisor is configured
	guard    *resilience.Guard
	notifier notifier.Notifier
	metrics  *Instruments
	rand     Rand
	now      func() time.Time // for testing
}

// NewMonitorService creates a MonitorService. src feeds the cost and
// downtime draws of the maintenance fallback.
func NewMonitorService(store repository.Store, adv advisor.Advisor, guard *resilience.Guard,
	n notifier.Notifier, metrics *Instruments, src Rand) *MonitorService {
	return &MonitorService{
		store:    store,
		advisor:  adv,
		guard:    guard,
		notifier: n,
		metrics:  metrics,
		rand:     src,
		now:      time.Now,
	}
}

// CheckFleet runs all monitor rules over the fleet, delivers the
// resulting alerts and returns them.
func (s *MonitorService) CheckFleet(ctx context.Context) ([]fleet.Alert, error) {
	agvs, err := s.store.ListAGVs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list agvs: %w", err)
	}

	now := s.now()
	var alerts []fleet.Alert
	for _, a := range agvs {
		if a.Battery < lowBatteryLevel {
			severity := event.SeverityMedium
			if a.Battery < criticalBatteryLevel {
				severity = event.SeverityHigh
			}
			alerts = append(alerts, fleet.Alert{
				Type:     "low_battery",
				AGVID:    a.ID,
				Message:  fmt.Sprintf("%s battery at %.1f%%", a.Name, a.Battery),
				Severity: severity,
			})
		}
		if a.Status == agv.StatusIdle && now.Sub(a.LastUpdate) > idleTooLong {
			alerts = append(alerts, fleet.Alert{
				Type:     "idle_too_long",
				AGVID:    a.ID,
				Message:  fmt.Sprintf("%s idle since %s", a.Name, a.LastUpdate.Format(time.RFC3339)),
				Severity: event.SeverityLow,
			})
		}
	}

	predictions := s.predictions(ctx, agvs)
	for _, a := range agvs {
		p, ok := predictions[a.ID]
		if !ok || !p.NeedsMaintenance {
			continue
		}
		alerts = append(alerts, fleet.Alert{
			Type:     "maintenance_needed",
			AGVID:    a.ID,
			Message:  fmt.Sprintf("%s flagged for maintenance (%s): %s", a.Name, p.Urgency, p.PredictedIssue),
			Severity: event.SeverityMedium,
		})
	}

	s.deliver(ctx, alerts)
	return alerts, nil
}

// PredictMaintenance returns the per-AGV maintenance verdicts, advisor
// first.
func (s *MonitorService) PredictMaintenance(ctx context.Context) (map[string]fleet.MaintenancePrediction, error) {
	agvs, err := s.store.ListAGVs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list agvs: %w", err)
	}
	return s.predictions(ctx, agvs), nil
}

func (s *MonitorService) predictions(ctx context.Context, agvs []agv.AGV) map[string]fleet.MaintenancePrediction {
	if s.advisor != nil {
		var predicted map[string]fleet.MaintenancePrediction
		err := s.guard.Do(ctx, "predict_maintenance", func(ctx context.Context) error {
			var err error
			predicted, err = s.advisor.PredictMaintenanceNeeds(ctx, agvs)
			return err
		})
		if err == nil && predicted != nil {
			return predicted
		}
	}
	return s.fallbackPredictions(agvs)
}

// fallbackPredictions runs the local heuristic: worn batteries and
// charging AGVs get flagged, cost and downtime are rough draws.
func (s *MonitorService) fallbackPredictions(agvs []agv.AGV) map[string]fleet.MaintenancePrediction {
	out := make(map[string]fleet.MaintenancePrediction, len(agvs))
	for _, a := range agvs {
		needs := a.Battery < maintBatteryLevel || a.Status == agv.StatusCharging
		p := fleet.MaintenancePrediction{NeedsMaintenance: needs}
		if needs {
			p.Urgency = "LOW"
			if a.Battery < maintUrgentBattery {
				p.Urgency = "HIGH"
			}
			p.PredictedIssue = "battery wear"
			p.RecommendedAction = "Schedule battery inspection"
			p.EstimatedCost = maintCostBase + s.rand.Float64()*maintCostSpread
			p.DowntimeHours = maintDowntimeBase + s.rand.Float64()*maintDowntimeSpread
		}
		out[a.ID] = p
	}
	return out
}

// deliver pushes alerts through the notifier, best effort.
func (s *MonitorService) deliver(ctx context.Context, alerts []fleet.Alert) {
	for _, alert := range alerts {
		if err := s.notifier.SendAlert(ctx, alert.Message, alert.Severity); err != nil {
			slog.Warn("alert delivery failed", "type", alert.Type, "agv_id", alert.AGVID, "error", err)
		}
	}
	if s.metrics != nil && len(alerts) > 0 {
		s.metrics.AlertsRaised.Add(ctx, int64(len(alerts)))
	}
}
