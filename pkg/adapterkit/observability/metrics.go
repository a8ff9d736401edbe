package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records adapterkit metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordPublish records a value offered to a push manager.
	RecordPublish(ctx context.Context, manager string, accepted bool)

	// RecordDelivery records a value handed to one subscription, or dropped for it.
	RecordDelivery(ctx context.Context, manager string, dropped bool)

	// RecordSubscriptions adjusts the live subscription gauge by delta.
	RecordSubscriptions(ctx context.Context, manager string, delta int64)

	// RecordQuery records a historical query with its duration and outcome.
	RecordQuery(ctx context.Context, op string, duration time.Duration, err error)

	// RecordInvoke records an extension operation call.
	RecordInvoke(ctx context.Context, operationID string, duration time.Duration, err error)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	published     metric.Int64Counter
	delivered     metric.Int64Counter
	subscriptions metric.Int64UpDownCounter
	queries       metric.Int64Counter
	queryLatency  metric.Float64Histogram
	queryErrors   metric.Int64Counter
	invocations   metric.Int64Counter
	invokeLatency metric.Float64Histogram
	invokeErrors  metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("adapterkit")
	m := &otelMetrics{}
	var err error

	if m.published, err = meter.Int64Counter("adapterkit.push.published",
		metric.WithDescription("Number of values offered to push managers"),
	); err != nil {
		return nil, err
	}

	if m.delivered, err = meter.Int64Counter("adapterkit.push.delivered",
		metric.WithDescription("Number of per-subscription deliveries, including drops"),
	); err != nil {
		return nil, err
	}

	if m.subscriptions, err = meter.Int64UpDownCounter("adapterkit.push.subscriptions",
		metric.WithDescription("Number of live subscriptions"),
	); err != nil {
		return nil, err
	}

	if m.queries, err = meter.Int64Counter("adapterkit.query.executions",
		metric.WithDescription("Number of historical queries"),
	); err != nil {
		return nil, err
	}

	if m.queryLatency, err = meter.Float64Histogram("adapterkit.query.latency_ms",
		metric.WithDescription("Historical query latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	if m.queryErrors, err = meter.Int64Counter("adapterkit.query.errors",
		metric.WithDescription("Number of failed historical queries"),
	); err != nil {
		return nil, err
	}

	if m.invocations, err = meter.Int64Counter("adapterkit.extension.invocations",
		metric.WithDescription("Number of extension operation calls"),
	); err != nil {
		return nil, err
	}

	if m.invokeLatency, err = meter.Float64Histogram("adapterkit.extension.latency_ms",
		metric.WithDescription("Extension operation latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	if m.invokeErrors, err = meter.Int64Counter("adapterkit.extension.errors",
		metric.WithDescription("Number of failed extension operation calls"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordPublish records a publish attempt.
func (m *otelMetrics) RecordPublish(ctx context.Context, manager string, accepted bool) {
	m.published.Add(ctx, 1, metric.WithAttributes(
		attribute.String("manager", manager),
		attribute.Bool("accepted", accepted),
	))
}

// RecordDelivery records a delivery or drop.
func (m *otelMetrics) RecordDelivery(ctx context.Context, manager string, dropped bool) {
	m.delivered.Add(ctx, 1, metric.WithAttributes(
		attribute.String("manager", manager),
		attribute.Bool("dropped", dropped),
	))
}

// RecordSubscriptions adjusts the subscription gauge.
func (m *otelMetrics) RecordSubscriptions(ctx context.Context, manager string, delta int64) {
	m.subscriptions.Add(ctx, delta, metric.WithAttributes(
		attribute.String("manager", manager),
	))
}

// RecordQuery records a historical query.
func (m *otelMetrics) RecordQuery(ctx context.Context, op string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("operation", op))
	m.queries.Add(ctx, 1, attrs)
	m.queryLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	if err != nil {
		m.queryErrors.Add(ctx, 1, attrs)
	}
}

// RecordInvoke records an extension operation call.
func (m *otelMetrics) RecordInvoke(ctx context.Context, operationID string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("operation_id", operationID))
	m.invocations.Add(ctx, 1, attrs)
	m.invokeLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	if err != nil {
		m.invokeErrors.Add(ctx, 1, attrs)
	}
}
