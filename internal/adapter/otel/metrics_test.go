package otel

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMetricsNoopSafe(t *testing.T) {
	m, err := NewMetrics()
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	m.RecordOperation(ctx, "transfer_cred", "ok")
	m.RecordPersist(ctx, time.Millisecond, errors.New("disk full"))

	var nilMetrics *Metrics
	nilMetrics.RecordOperation(ctx, "award_cred", "ok")
	nilMetrics.RecordPersist(ctx, time.Millisecond, nil)
}

func TestSpansWithoutProvider(t *testing.T) {
	ctx, span := StartLedgerSpan(context.Background(), "register_agent")
	EndSpan(span, errors.New("boom"))
	_, span = StartPersistSpan(ctx, 7)
	EndSpan(span, nil)
}
