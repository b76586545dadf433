package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the default tracer name for dayboard.
const TracerName = "github.com/teemow/dayboard"

// Span attribute keys.
const (
	SpanAttrUserID     = "dayboard.user_id"
	SpanAttrAccountID  = "dayboard.account_id"
	SpanAttrCalendarID = "dayboard.calendar_id"
	SpanAttrRole       = "dayboard.role"
	SpanAttrSources    = "dayboard.sources"
	SpanAttrFailures   = "dayboard.failures"
	SpanAttrEvents     = "dayboard.events"
	SpanAttrRefreshed  = "dayboard.token_refreshed"
)

// StartSpan starts a new span with the given name and attributes.
// The caller must end the span.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartSourceSpan starts a client span for one calendar source fetch.
func StartSourceSpan(ctx context.Context, accountID, calendarID, role string) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "calendar.fetch",
		trace.WithAttributes(
			attribute.String(SpanAttrAccountID, accountID),
			attribute.String(SpanAttrCalendarID, calendarID),
			attribute.String(SpanAttrRole, role),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// SetSpanError records an error on the span and sets the status to error.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets the span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// TraceID returns the trace ID from the current span in context, or "".
func TraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
