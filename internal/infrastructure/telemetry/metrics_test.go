package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/billflow/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"
)

// disabledProvider builds a MeterProvider with export turned off, the mode
// the test suite runs in.
func disabledProvider(t *testing.T) *telemetry.MeterProvider {
	t.Helper()

	mp, err := telemetry.NewMeterProvider(context.Background(), telemetry.MetricsConfig{
		Enabled:           false,
		CollectorEndpoint: "localhost:14317",
		ServiceName:       "billflow-backend",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return mp
}

// recordedMetrics wires a manual reader so tests can assert what the
// instrument helpers actually record.
func recordedMetrics(t *testing.T) (metric.Meter, func() metricdata.ResourceMetrics) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = mp.Shutdown(context.Background())
	})

	collect := func() metricdata.ResourceMetrics {
		var rm metricdata.ResourceMetrics
		require.NoError(t, reader.Collect(context.Background(), &rm))
		return rm
	}
	return mp.Meter("billing.test"), collect
}

func metricByName(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	mp := disabledProvider(t)

	assert.False(t, mp.IsEnabled())
	assert.Equal(t, "billflow-backend", mp.GetConfig().ServiceName)

	// All lifecycle operations degrade to no-ops
	assert.NotNil(t, mp.Meter("billing"))
	assert.NoError(t, mp.ForceFlush(context.Background()))
	assert.NoError(t, mp.Shutdown(context.Background()))
}

func TestMeterProvider_ShutdownWithCancelledContext(t *testing.T) {
	mp := disabledProvider(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, mp.Shutdown(ctx))
}

// Requires a running OTLP collector; exercised locally via `make otel-up`.
func TestNewMeterProvider_Enabled(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           true,
		CollectorEndpoint: "localhost:14317",
		ExportInterval:    1 * time.Second,
		ServiceName:       "billflow-backend",
		Insecure:          true,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.True(t, mp.IsEnabled())
	require.NotNil(t, mp.Meter("billing"))

	assert.NoError(t, mp.ForceFlush(ctx))
	assert.NoError(t, mp.Shutdown(ctx))
}

func TestCounter(t *testing.T) {
	meter, collect := recordedMetrics(t)
	ctx := context.Background()

	counter, err := telemetry.NewCounter(meter, "billing_invoice_generated_total", "Invoices generated", "{invoice}")
	require.NoError(t, err)

	counter.Add(ctx, 5, telemetry.AttrPlanID.String("pro-monthly"))
	counter.Inc(ctx, telemetry.AttrPlanID.String("pro-monthly"))
	counter.Inc(ctx, telemetry.AttrPlanID.String("free"))

	m := metricByName(collect(), "billing_invoice_generated_total")
	require.NotNil(t, m)

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 2, "one series per plan")

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(7), total)
}

func TestHistogram_Record(t *testing.T) {
	meter, collect := recordedMetrics(t)
	ctx := context.Background()

	histogram, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "billing_run_duration_seconds",
		Description: "Billing calculation duration",
		Unit:        "s",
		Boundaries:  telemetry.HTTPDurationBuckets,
	})
	require.NoError(t, err)

	histogram.Record(ctx, 0.05, telemetry.AttrBillingMode.String("ESTIMATE"))
	histogram.RecordDuration(ctx, 250*time.Millisecond, telemetry.AttrBillingMode.String("ESTIMATE"))

	m := metricByName(collect(), "billing_run_duration_seconds")
	require.NotNil(t, m)

	hist, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
	assert.InDelta(t, 0.3, hist.DataPoints[0].Sum, 1e-9)
}

func TestHistogram_DefaultBoundaries(t *testing.T) {
	meter, collect := recordedMetrics(t)

	histogram, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "outbox_dispatch_duration_seconds",
		Description: "Outbox dispatch duration",
		Unit:        "s",
	})
	require.NoError(t, err)

	histogram.Record(context.Background(), 1.5)

	m := metricByName(collect(), "outbox_dispatch_duration_seconds")
	require.NotNil(t, m)
}

func TestGauge_Record(t *testing.T) {
	meter, collect := recordedMetrics(t)
	ctx := context.Background()

	gauge, err := telemetry.NewGauge(meter, "outbox_backlog", "Pending outbox events", "{event}")
	require.NoError(t, err)

	gauge.Record(ctx, 42)
	gauge.Record(ctx, 7) // gauge keeps the last value, not the sum

	m := metricByName(collect(), "outbox_backlog")
	require.NotNil(t, m)

	data, ok := m.Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, data.DataPoints, 1)
	assert.Equal(t, int64(7), data.DataPoints[0].Value)
}

func TestGauge_PerStateSeries(t *testing.T) {
	meter, collect := recordedMetrics(t)
	ctx := context.Background()

	gauge, err := telemetry.NewGauge(meter, "db_pool_connections", "Pool connections by state", "{connection}")
	require.NoError(t, err)

	gauge.Record(ctx, 3, telemetry.AttrDBState.String("idle"))
	gauge.Record(ctx, 5, telemetry.AttrDBState.String("in_use"))

	m := metricByName(collect(), "db_pool_connections")
	require.NotNil(t, m)

	data, ok := m.Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	assert.Len(t, data.DataPoints, 2)
}

// Label keys are part of the dashboards' contract.
func TestSharedAttributeKeys(t *testing.T) {
	assert.Equal(t, "tenant_id", string(telemetry.AttrTenantID))
	assert.Equal(t, "http.method", string(telemetry.AttrHTTPMethod))
	assert.Equal(t, "http.status_code", string(telemetry.AttrHTTPStatusCode))
	assert.Equal(t, "http.route", string(telemetry.AttrHTTPRoute))
	assert.Equal(t, "db.operation", string(telemetry.AttrDBOperation))
	assert.Equal(t, "db.table", string(telemetry.AttrDBTable))
	assert.Equal(t, "db.pool.state", string(telemetry.AttrDBState))
	assert.Equal(t, "plan_id", string(telemetry.AttrPlanID))
	assert.Equal(t, "billing_mode", string(telemetry.AttrBillingMode))
	assert.Equal(t, "feature_id", string(telemetry.AttrFeatureID))
	assert.Equal(t, "event_type", string(telemetry.AttrEventType))
	assert.Equal(t, "outbox_status", string(telemetry.AttrOutboxStatus))
}

func TestBucketBoundaries(t *testing.T) {
	assert.Equal(t, []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}, telemetry.HTTPDurationBuckets)
	assert.Equal(t, []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}, telemetry.DBDurationBuckets)
}

func TestCounter_CustomAttribute(t *testing.T) {
	meter, collect := recordedMetrics(t)

	counter, err := telemetry.NewCounter(meter, "usage_records_total", "Usage records ingested", "{record}")
	require.NoError(t, err)

	counter.Inc(context.Background(), attribute.String("metric", "api_calls"))

	m := metricByName(collect(), "usage_records_total")
	require.NotNil(t, m)
}
