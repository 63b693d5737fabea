package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "substrate"

// Metrics holds the ledger metric instruments.
type Metrics struct {
	Operations      metric.Int64Counter
	PersistFailures metric.Int64Counter
	PersistDuration metric.Float64Histogram
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Operations, err = meter.Int64Counter("substrate.ledger.operations",
		metric.WithDescription("Ledger operations by op and result"))
	if err != nil {
		return nil, err
	}

	m.PersistFailures, err = meter.Int64Counter("substrate.ledger.persist.failures",
		metric.WithDescription("Snapshot writes that failed and rolled the ledger back"))
	if err != nil {
		return nil, err
	}

	m.PersistDuration, err = meter.Float64Histogram("substrate.ledger.persist.duration_seconds",
		metric.WithDescription("Snapshot write duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordOperation counts one ledger operation. result is "ok" or an error kind.
func (m *Metrics) RecordOperation(ctx context.Context, op, result string) {
	if m == nil {
		return
	}
	m.Operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("result", result),
	))
}

// RecordPersist records one snapshot write.
func (m *Metrics) RecordPersist(ctx context.Context, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.PersistDuration.Record(ctx, d.Seconds())
	if err != nil {
		m.PersistFailures.Add(ctx, 1)
	}
}
