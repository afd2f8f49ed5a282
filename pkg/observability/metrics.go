package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metric names.
const (
	MetricEventsApplied  = "trustengine.events.applied"
	MetricEventsRejected = "trustengine.events.rejected"
	MetricTierChanges    = "trustengine.tier.changes"
	MetricSimDuration    = "trustengine.sim.duration"
)

// Metrics holds the engine's instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	applied     metric.Int64Counter
	rejected    metric.Int64Counter
	tierChanges metric.Int64Counter
	simDuration metric.Float64Histogram
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)

	m.applied, err = meter.Int64Counter(MetricEventsApplied,
		metric.WithDescription("Events accepted and committed"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	m.rejected, err = meter.Int64Counter(MetricEventsRejected,
		metric.WithDescription("Events rejected without a state change"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	m.tierChanges, err = meter.Int64Counter(MetricTierChanges,
		metric.WithDescription("Tier change records emitted"),
		metric.WithUnit("{change}"),
	)
	if err != nil {
		return nil, err
	}

	m.simDuration, err = meter.Float64Histogram(MetricSimDuration,
		metric.WithDescription("Wall-clock duration of a simulation run"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// NoopMetrics returns instruments that record nothing.
func NoopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter(instrumentationName))
	return m
}

// EventApplied counts an accepted event of the given kind.
func (m *Metrics) EventApplied(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.applied.Add(ctx, 1, metric.WithAttributes(attribute.String("event", kind)))
}

// EventRejected counts a rejected event with its error code.
func (m *Metrics) EventRejected(ctx context.Context, kind, code string) {
	if m == nil {
		return
	}
	m.rejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", kind),
		attribute.String("code", code),
	))
}

// TierChanged counts a tier transition.
func (m *Metrics) TierChanged(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.tierChanges.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// SimulationFinished records how long a scenario took.
func (m *Metrics) SimulationFinished(ctx context.Context, scenario string, d time.Duration) {
	if m == nil {
		return
	}
	m.simDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("scenario", scenario)))
}
