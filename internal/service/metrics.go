package service

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "fleetsim"

// Instruments holds all fleet metric instruments. Services accept a
// nil *Instruments and skip recording.
type Instruments struct {
	TicksTotal      metric.Int64Counter
	TickDuration    metric.Float64Histogram
	TasksAssigned   metric.Int64Counter
	TasksCompleted  metric.Int64Counter
	AlertsRaised    metric.Int64Counter
	FleetEfficiency metric.Float64Gauge
	AvgBattery      metric.Float64Gauge
}

// NewInstruments creates all metric instruments on the global meter.
func NewInstruments() (*Instruments, error) {
	meter := otel.Meter(meterName)
	m := &Instruments{}
	var err error

	m.TicksTotal, err = meter.Int64Counter("fleetsim.sim.ticks",
		metric.WithDescription("Number of simulation ticks executed"))
	if err != nil {
		return nil, err
	}

	m.TickDuration, err = meter.Float64Histogram("fleetsim.sim.tick_duration_seconds",
		metric.WithDescription("Simulation tick duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.TasksAssigned, err = meter.Int64Counter("fleetsim.tasks.assigned",
		metric.WithDescription("Number of tasks assigned to AGVs"))
	if err != nil {
		return nil, err
	}

	m.TasksCompleted, err = meter.Int64Counter("fleetsim.tasks.completed",
		metric.WithDescription("Number of tasks completed"))
	if err != nil {
		return nil, err
	}

	m.AlertsRaised, err = meter.Int64Counter("fleetsim.alerts.raised",
		metric.WithDescription("Number of fleet alerts raised"))
	if err != nil {
		return nil, err
	}

	m.FleetEfficiency, err = meter.Float64Gauge("fleetsim.fleet.efficiency",
		metric.WithDescription("Fleet efficiency score between 0 and 1"))
	if err != nil {
		return nil, err
	}

	m.AvgBattery, err = meter.Float64Gauge("fleetsim.fleet.battery_avg",
		metric.WithDescription("Average battery level across the fleet"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
