package agent

import (
	"context"
	"math"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	cycles      metric.Int64Counter
	cycleErrors metric.Int64Counter
	tasks       metric.Int64Counter
	executed    metric.Int64Counter
	approvals   metric.Int64Counter

	// usage is the last observed usage percent, stored as float64 bits
	usage atomic.Uint64
	level atomic.Int64
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	m := &metrics{}
	var err error
	if m.cycles, err = meter.Int64Counter("steward.agent.cycles",
		metric.WithDescription("Poll cycles run")); err != nil {
		return nil, err
	}
	if m.cycleErrors, err = meter.Int64Counter("steward.agent.cycle_errors",
		metric.WithDescription("Poll cycles that failed")); err != nil {
		return nil, err
	}
	if m.tasks, err = meter.Int64Counter("steward.agent.tasks_processed",
		metric.WithDescription("Primary queue tasks handled")); err != nil {
		return nil, err
	}
	if m.executed, err = meter.Int64Counter("steward.agent.initiatives_executed",
		metric.WithDescription("Initiatives executed, by outcome")); err != nil {
		return nil, err
	}
	if m.approvals, err = meter.Int64Counter("steward.agent.approvals_queued",
		metric.WithDescription("Approval requests queued")); err != nil {
		return nil, err
	}
	if _, err = meter.Float64ObservableGauge("steward.budget.usage_percent",
		metric.WithDescription("Budget usage percent seen by the last cycle"),
		metric.WithFloat64Callback(func(_ context.Context, o metric.Float64Observer) error {
			o.Observe(math.Float64frombits(m.usage.Load()))
			return nil
		}),
	); err != nil {
		return nil, err
	}
	if _, err = meter.Int64ObservableGauge("steward.budget.throttle_level",
		metric.WithDescription("Throttle level seen by the last cycle (0=NORMAL..3=PAUSE)"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(m.level.Load())
			return nil
		}),
	); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *metrics) observeBudget(usage float64, level int) {
	m.usage.Store(math.Float64bits(usage))
	m.level.Store(int64(level))
}

func outcome(ok bool) metric.MeasurementOption {
	if ok {
		return metric.WithAttributes(attribute.String("outcome", "success"))
	}
	return metric.WithAttributes(attribute.String("outcome", "failure"))
}
