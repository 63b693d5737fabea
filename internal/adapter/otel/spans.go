package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "substrate"

// StartLedgerSpan starts a span for a ledger operation.
func StartLedgerSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "ledger."+op,
		trace.WithAttributes(attribute.String("ledger.op", op)),
	)
}

// StartPersistSpan starts a span for a snapshot write.
func StartPersistSpan(ctx context.Context, version uint64) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "ledger.persist",
		trace.WithAttributes(attribute.Int64("snapshot.version", int64(version))), //nolint:gosec // G115: version counter stays far below MaxInt64
	)
}

// StartOutboundSpan starts a client span for a call to an external collaborator.
func StartOutboundSpan(ctx context.Context, collaborator, op string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, collaborator+"."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("peer.service", collaborator)),
	)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
