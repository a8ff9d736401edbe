package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func setupMetricsTest(t *testing.T) (*sdkmetric.ManualReader, func()) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	originalProvider := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)

	cleanup := func() {
		otel.SetMeterProvider(originalProvider)
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down meter provider: %v", err)
		}
	}

	return reader, cleanup
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumFor(t *testing.T, m *metricdata.Metrics, key, value string) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected Sum type")

	var total int64
	for _, dp := range sum.DataPoints {
		for _, attr := range dp.Attributes.ToSlice() {
			if string(attr.Key) == key && attr.Value.Emit() == value {
				total += dp.Value
			}
		}
	}
	return total
}

func TestNewMetricsRecorder(t *testing.T) {
	_, cleanup := setupMetricsTest(t)
	defer cleanup()

	recorder := NewMetricsRecorder()
	require.NotNil(t, recorder)

	_, isNoop := recorder.(NoopMetrics)
	assert.False(t, isNoop, "Expected real metrics recorder, got noop")
}

func TestRecordPushMetrics(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)
	ctx := context.Background()

	m.RecordPublish(ctx, "events", true)
	m.RecordPublish(ctx, "events", false)
	m.RecordDelivery(ctx, "events", false)
	m.RecordDelivery(ctx, "events", true)
	m.RecordSubscriptions(ctx, "events", 2)
	m.RecordSubscriptions(ctx, "events", -1)

	rm := collectMetrics(t, reader)

	published := findMetric(rm, "adapterkit.push.published")
	require.NotNil(t, published)
	assert.Equal(t, int64(1), sumFor(t, published, "accepted", "true"))
	assert.Equal(t, int64(1), sumFor(t, published, "accepted", "false"))

	delivered := findMetric(rm, "adapterkit.push.delivered")
	require.NotNil(t, delivered)
	assert.Equal(t, int64(1), sumFor(t, delivered, "dropped", "true"))

	subs := findMetric(rm, "adapterkit.push.subscriptions")
	require.NotNil(t, subs)
	assert.Equal(t, int64(1), sumFor(t, subs, "manager", "events"))
}

func TestRecordQueryAndInvoke(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)
	ctx := context.Background()

	m.RecordQuery(ctx, "read_processed", 20*time.Millisecond, nil)
	m.RecordQuery(ctx, "read_processed", 5*time.Millisecond, errors.New("bad"))
	m.RecordInvoke(ctx, "asc:extensions/acme/ping/invoke/ping/", time.Millisecond, nil)

	rm := collectMetrics(t, reader)

	queries := findMetric(rm, "adapterkit.query.executions")
	require.NotNil(t, queries)
	assert.Equal(t, int64(2), sumFor(t, queries, "operation", "read_processed"))

	queryErrors := findMetric(rm, "adapterkit.query.errors")
	require.NotNil(t, queryErrors)
	assert.Equal(t, int64(1), sumFor(t, queryErrors, "operation", "read_processed"))

	latency := findMetric(rm, "adapterkit.query.latency_ms")
	require.NotNil(t, latency)
	hist, ok := latency.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.NotEmpty(t, hist.DataPoints)

	invocations := findMetric(rm, "adapterkit.extension.invocations")
	require.NotNil(t, invocations)
	assert.Equal(t, int64(1), sumFor(t, invocations, "operation_id", "asc:extensions/acme/ping/invoke/ping/"))
	assert.Nil(t, findMetric(rm, "adapterkit.extension.errors"))
}
