package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer uses the global OTel tracer provider.
var tracer = otel.Tracer("adapterkit")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartQuerySpan starts a span for a historical query over tags.
	StartQuerySpan(ctx context.Context, op string, tags []string) (context.Context, trace.Span)

	// StartInvokeSpan starts a span for an extension operation call.
	StartInvokeSpan(ctx context.Context, operationID, kind string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

func (m *otelSpanManager) StartQuerySpan(ctx context.Context, op string, tags []string) (context.Context, trace.Span) {
	return StartQuerySpan(ctx, op, tags)
}

func (m *otelSpanManager) StartInvokeSpan(ctx context.Context, operationID, kind string) (context.Context, trace.Span) {
	return StartInvokeSpan(ctx, operationID, kind)
}

func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	AddSpanEvent(ctx, name, attrs...)
}

// StartQuerySpan starts a span for a historical query.
// Uses the global OTel tracer.
func StartQuerySpan(ctx context.Context, op string, tags []string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "adapterkit.query."+op,
		trace.WithAttributes(
			attribute.String("query.operation", op),
			attribute.StringSlice("query.tags", tags),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartInvokeSpan starts a span for an extension operation call.
// Uses the global OTel tracer.
func StartInvokeSpan(ctx context.Context, operationID, kind string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "adapterkit.extension."+kind,
		trace.WithAttributes(
			attribute.String("operation.id", operationID),
			attribute.String("operation.kind", kind),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
