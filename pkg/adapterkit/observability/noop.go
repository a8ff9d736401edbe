package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
type NoopMetrics struct{}

var _ MetricsRecorder = NoopMetrics{}

func (NoopMetrics) RecordPublish(context.Context, string, bool) {}
func (NoopMetrics) RecordDelivery(context.Context, string, bool) {}
func (NoopMetrics) RecordSubscriptions(context.Context, string, int64) {}
func (NoopMetrics) RecordQuery(context.Context, string, time.Duration, error) {}
func (NoopMetrics) RecordInvoke(context.Context, string, time.Duration, error) {}

// NoopSpanManager is a SpanManager that does nothing.
type NoopSpanManager struct{}

var _ SpanManager = NoopSpanManager{}

var noopSpan = noop.Span{}

// StartQuerySpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartQuerySpan(ctx context.Context, _ string, _ []string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartInvokeSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartInvokeSpan(ctx context.Context, _, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(trace.Span, error) {}

// AddSpanEvent does nothing.
func (NoopSpanManager) AddSpanEvent(context.Context, string, ...attribute.KeyValue) {}
