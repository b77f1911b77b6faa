package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newTestMeter(t *testing.T, name string) (*sdkmetric.ManualReader, *DBMetrics) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	metrics, err := NewDBMetrics(provider.Meter(name), DBMetricsConfig{
		Enabled:            true,
		SlowQueryThreshold: 100 * time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)

	return reader, metrics
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) bool {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return true
			}
		}
	}
	return false
}

func sumValue(rm metricdata.ResourceMetrics, name string) int64 {
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestDefaultDBMetricsConfig(t *testing.T) {
	cfg := DefaultDBMetricsConfig()

	assert.True(t, cfg.Enabled)
	assert.Equal(t, 200*time.Millisecond, cfg.SlowQueryThreshold)
	assert.Equal(t, 15*time.Second, cfg.PoolStatsInterval)
}

func TestNewDBMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	meter := provider.Meter("test")

	t.Run("creates all instruments", func(t *testing.T) {
		metrics, err := NewDBMetrics(meter, DefaultDBMetricsConfig(), zap.NewNop())
		require.NoError(t, err)
		require.NotNil(t, metrics)

		assert.NotNil(t, metrics.queryTotal)
		assert.NotNil(t, metrics.queryDuration)
		assert.NotNil(t, metrics.queryErrors)
		assert.NotNil(t, metrics.slowQueryTotal)
		assert.NotNil(t, metrics.poolConnections)
		assert.NotNil(t, metrics.poolConnectionsMax)
	})

	t.Run("applies default config values", func(t *testing.T) {
		metrics, err := NewDBMetrics(meter, DBMetricsConfig{}, zap.NewNop())
		require.NoError(t, err)

		assert.Equal(t, 200*time.Millisecond, metrics.config.SlowQueryThreshold)
		assert.Equal(t, 15*time.Second, metrics.config.PoolStatsInterval)
	})

	t.Run("uses nop logger when nil", func(t *testing.T) {
		metrics, err := NewDBMetrics(meter, DefaultDBMetricsConfig(), nil)
		require.NoError(t, err)
		require.NotNil(t, metrics.logger)
	})
}

func TestDBMetrics_RecordQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("records count and duration", func(t *testing.T) {
		reader, metrics := newTestMeter(t, "record_query")

		metrics.RecordQuery(ctx, "INSERT", "usage_records", 5*time.Millisecond, nil)
		metrics.RecordQuery(ctx, "SELECT", "subscriptions", 5*time.Millisecond, nil)

		rm := collect(t, reader)
		assert.Equal(t, int64(2), sumValue(rm, "db_query_total"))
		assert.True(t, findMetric(rm, "db_query_duration_seconds"))
	})

	t.Run("counts slow queries over the threshold", func(t *testing.T) {
		reader, metrics := newTestMeter(t, "slow_query")

		metrics.RecordQuery(ctx, "SELECT", "invoices", 250*time.Millisecond, nil)
		metrics.RecordQuery(ctx, "SELECT", "invoices", 20*time.Millisecond, nil)

		rm := collect(t, reader)
		assert.Equal(t, int64(1), sumValue(rm, "db_slow_query_total"))
	})

	t.Run("counts query errors", func(t *testing.T) {
		reader, metrics := newTestMeter(t, "query_errors")

		metrics.RecordQuery(ctx, "INSERT", "usage_records", 5*time.Millisecond, errors.New("deadlock detected"))
		metrics.RecordQuery(ctx, "INSERT", "usage_records", 5*time.Millisecond, nil)

		rm := collect(t, reader)
		assert.Equal(t, int64(1), sumValue(rm, "db_query_errors_total"))
	})

	t.Run("record not found is not an error", func(t *testing.T) {
		reader, metrics := newTestMeter(t, "not_found")

		metrics.RecordQuery(ctx, "SELECT", "subscriptions", 5*time.Millisecond, gorm.ErrRecordNotFound)

		rm := collect(t, reader)
		assert.Equal(t, int64(0), sumValue(rm, "db_query_errors_total"))
		assert.Equal(t, int64(1), sumValue(rm, "db_query_total"))
	})

	t.Run("normalizes operation and table", func(t *testing.T) {
		reader, metrics := newTestMeter(t, "normalize")

		metrics.RecordQuery(ctx, "select", "subscriptions", time.Millisecond, nil)
		metrics.RecordQuery(ctx, "", "", time.Millisecond, nil)

		rm := collect(t, reader)
		assert.Equal(t, int64(2), sumValue(rm, "db_query_total"))
	})
}

func TestDBMetrics_PoolStats(t *testing.T) {
	ctx := context.Background()

	t.Run("samples pool stats periodically", func(t *testing.T) {
		reader := sdkmetric.NewManualReader()
		provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		defer provider.Shutdown(ctx)

		mockDB, _, err := sqlmock.New()
		require.NoError(t, err)
		defer mockDB.Close()

		metrics, err := NewDBMetrics(provider.Meter("pool"), DBMetricsConfig{
			Enabled:           true,
			PoolStatsInterval: 50 * time.Millisecond,
		}, zap.NewNop())
		require.NoError(t, err)

		metrics.SetSQLDB(mockDB)

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		metrics.StartPoolStatsCollection(ctx)
		time.Sleep(100 * time.Millisecond)
		metrics.Stop()

		var rm metricdata.ResourceMetrics
		require.NoError(t, reader.Collect(context.Background(), &rm))

		assert.True(t, findMetric(rm, "db_pool_connections_max"))
		assert.True(t, findMetric(rm, "db_pool_connections"))
	})

	t.Run("does nothing when sqlDB not set", func(t *testing.T) {
		_, metrics := newTestMeter(t, "pool_no_db")

		metrics.StartPoolStatsCollection(ctx)
		metrics.Stop()
	})

	t.Run("stops on context cancellation", func(t *testing.T) {
		_, metrics := newTestMeter(t, "pool_cancel")

		mockDB, _, err := sqlmock.New()
		require.NoError(t, err)
		defer mockDB.Close()

		metrics.SetSQLDB(mockDB)

		ctx, cancel := context.WithCancel(ctx)
		metrics.StartPoolStatsCollection(ctx)
		cancel()
		metrics.Stop()
	})
}

func TestDBMetrics_StopIdempotent(t *testing.T) {
	_, metrics := newTestMeter(t, "stop_idempotent")

	mockDB, _, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	metrics.SetSQLDB(mockDB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics.StartPoolStatsCollection(ctx)

	done := make(chan struct{})
	go func() {
		metrics.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() blocked for too long")
	}

	assert.NotPanics(t, func() { metrics.Stop() })
}

func TestDBMetricsPlugin(t *testing.T) {
	t.Run("plugin name is stable", func(t *testing.T) {
		_, metrics := newTestMeter(t, "plugin_name")
		plugin := NewDBMetricsPlugin(metrics, zap.NewNop())
		assert.Equal(t, "db_metrics", plugin.Name())
	})

	t.Run("registers callbacks and pool sampler on a gorm db", func(t *testing.T) {
		_, metrics := newTestMeter(t, "plugin_init")
		plugin := NewDBMetricsPlugin(metrics, zap.NewNop())

		mockDB, _, err := sqlmock.New()
		require.NoError(t, err)
		defer mockDB.Close()

		gormDB, err := gorm.Open(postgres.New(postgres.Config{
			Conn: mockDB,
		}), &gorm.Config{})
		require.NoError(t, err)

		require.NoError(t, plugin.Initialize(gormDB))

		// Initialize wires the sql.DB for pool sampling as a side effect.
		metrics.mu.RLock()
		defer metrics.mu.RUnlock()
		assert.NotNil(t, metrics.sqlDB)
	})

	t.Run("queries through the plugin are counted", func(t *testing.T) {
		reader, metrics := newTestMeter(t, "plugin_query")
		plugin := NewDBMetricsPlugin(metrics, zap.NewNop())

		mockDB, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer mockDB.Close()

		gormDB, err := gorm.Open(postgres.New(postgres.Config{
			Conn: mockDB,
		}), &gorm.Config{})
		require.NoError(t, err)
		require.NoError(t, plugin.Initialize(gormDB))

		mock.ExpectQuery("SELECT count").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

		var count int64
		require.NoError(t, gormDB.Table("subscriptions").Count(&count).Error)

		rm := collect(t, reader)
		assert.GreaterOrEqual(t, sumValue(rm, "db_query_total"), int64(1))
	})
}

func TestDetectOperationType(t *testing.T) {
	tests := []struct {
		sql      string
		expected string
	}{
		{"SELECT * FROM subscriptions", "SELECT"},
		{"  select id from invoices", "SELECT"},
		{"INSERT INTO usage_records (quantity) VALUES (5)", "INSERT"},
		{"UPDATE invoices SET status = 'PAID'", "UPDATE"},
		{"delete from outbox_events where status = 'PUBLISHED'", "DELETE"},
		{"TRUNCATE TABLE usage_records", "OTHER"},
		{"", "OTHER"},
	}

	for _, tc := range tests {
		t.Run(tc.sql, func(t *testing.T) {
			assert.Equal(t, tc.expected, detectOperationType(tc.sql))
		})
	}
}

func TestDBMetrics_ConcurrentRecordQuery(t *testing.T) {
	ctx := context.Background()
	reader, metrics := newTestMeter(t, "concurrent")

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			operation := []string{"SELECT", "INSERT", "UPDATE", "DELETE"}[i%4]
			table := []string{"subscriptions", "usage_records", "invoices", "outbox_events"}[i%4]
			metrics.RecordQuery(ctx, operation, table, time.Duration(i)*time.Millisecond, nil)
		}(i)
	}
	wg.Wait()

	rm := collect(t, reader)
	assert.Equal(t, int64(100), sumValue(rm, "db_query_total"))
}
