package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"health-portal/backend/internal/autherr"
)

// TracerName is the instrumentation scope for identity spans.
const TracerName = "health-portal/backend/identity"

// Span attribute keys.
const (
	AttrAccountID = "portal.account.id"
	AttrPurpose   = "portal.challenge.purpose"
	AttrErrorKind = "portal.error.kind"
)

// StartSpan starts a span named name on the global tracer provider.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan sets the span status from err and ends it. Identity errors with a kind are
// caller mistakes, so they are tagged with the kind but leave the status unset;
// anything else marks the span as failed.
func EndSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	defer span.End()
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	if kind := autherr.KindOf(err); kind != "" {
		span.SetAttributes(attribute.String(AttrErrorKind, string(kind)))
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
