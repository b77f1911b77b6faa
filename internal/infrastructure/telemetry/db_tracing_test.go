package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// planRow is a minimal model for exercising traced statements.
type planRow struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:100"`
	CreatedAt time.Time
}

func setupTracingTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&planRow{}))
	return db
}

func setupSpanRecorder(t *testing.T) (*trace.TracerProvider, *tracetest.SpanRecorder) {
	t.Helper()
	spanRecorder := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(spanRecorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, spanRecorder
}

func spanAttr(s trace.ReadOnlySpan, key string) (interface{}, bool) {
	for _, attr := range s.Attributes() {
		if string(attr.Key) == key {
			return attr.Value.AsInterface(), true
		}
	}
	return nil, false
}

func TestDefaultDBTracingConfig(t *testing.T) {
	cfg := DefaultDBTracingConfig()

	assert.False(t, cfg.Enabled)
	assert.False(t, cfg.LogFullSQL, "query variables carry tenant data, so SQL logging is opt-in")
	assert.Equal(t, 200*time.Millisecond, cfg.SlowQueryThresh)
	assert.Equal(t, "postgresql", cfg.DBSystem)
}

func TestDBTracingPlugin_Name(t *testing.T) {
	plugin := NewDBTracingPlugin(DefaultDBTracingConfig(), zap.NewNop())
	assert.Equal(t, "db_tracing", plugin.Name())
}

func TestDBTracingPlugin_DisabledIsNoOp(t *testing.T) {
	db := setupTracingTestDB(t)

	plugin := NewDBTracingPlugin(DefaultDBTracingConfig(), zap.NewNop())
	require.NoError(t, db.Use(plugin))

	// No otelgorm plugin means statements run untraced but unharmed.
	require.NoError(t, db.Create(&planRow{Name: "starter"}).Error)
}

func TestDBTracingPlugin_RegistersViaUse(t *testing.T) {
	db := setupTracingTestDB(t)

	cfg := DBTracingConfig{
		Enabled:         true,
		SlowQueryThresh: 200 * time.Millisecond,
		DBSystem:        "sqlite",
	}

	require.NoError(t, db.Use(NewDBTracingPlugin(cfg, zap.NewNop())))
}

func TestDBTracingPlugin_DoubleRegistrationFails(t *testing.T) {
	db := setupTracingTestDB(t)

	cfg := DBTracingConfig{
		Enabled:         true,
		SlowQueryThresh: 200 * time.Millisecond,
		DBSystem:        "sqlite",
	}

	plugin := NewDBTracingPlugin(cfg, zap.NewNop())
	require.NoError(t, plugin.RegisterOtelGorm(db))
	assert.Error(t, plugin.RegisterOtelGorm(db), "callback names collide on a second registration")
}

func TestDBTracingPlugin_TracedStatements(t *testing.T) {
	db := setupTracingTestDB(t)
	tp, spanRecorder := setupSpanRecorder(t)

	cfg := DBTracingConfig{
		Enabled:         true,
		SlowQueryThresh: 200 * time.Millisecond,
		DBSystem:        "sqlite",
	}
	require.NoError(t, db.Use(NewDBTracingPlugin(cfg, zap.NewNop())))

	tracer := tp.Tracer("billing-test")
	ctx, span := tracer.Start(context.Background(), "generate-invoice")

	db = db.WithContext(ctx)
	require.NoError(t, db.Create(&planRow{Name: "pro"}).Error)

	var found planRow
	require.NoError(t, db.First(&found, "name = ?", "pro").Error)
	assert.Equal(t, "pro", found.Name)

	span.End()

	spans := spanRecorder.Ended()
	require.NotEmpty(t, spans, "otelgorm should emit statement spans")
}

func TestDBTracingPlugin_AnnotateSpan(t *testing.T) {
	cfg := DBTracingConfig{
		Enabled:         true,
		SlowQueryThresh: 200 * time.Millisecond,
		DBSystem:        "sqlite",
	}
	plugin := NewDBTracingPlugin(cfg, zap.NewNop())

	t.Run("rows affected and table", func(t *testing.T) {
		db := setupTracingTestDB(t)
		tp, spanRecorder := setupSpanRecorder(t)

		ctx, span := tp.Tracer("test").Start(context.Background(), "bulk-insert")

		rows := []planRow{{Name: "starter"}, {Name: "pro"}, {Name: "enterprise"}}
		result := db.WithContext(ctx).Create(&rows)
		require.NoError(t, result.Error)

		plugin.annotateSpan(result.Statement.DB)
		span.End()

		spans := spanRecorder.Ended()
		require.Len(t, spans, 1)

		rowsAffected, ok := spanAttr(spans[0], "db.rows_affected")
		require.True(t, ok, "db.rows_affected attribute should be present")
		assert.Equal(t, int64(3), rowsAffected)

		table, ok := spanAttr(spans[0], "db.sql.table")
		require.True(t, ok)
		assert.Equal(t, "plan_rows", table)
	})

	t.Run("record not found is not a span error", func(t *testing.T) {
		db := setupTracingTestDB(t)
		tp, spanRecorder := setupSpanRecorder(t)

		ctx, span := tp.Tracer("test").Start(context.Background(), "lookup-miss")

		var found planRow
		tx := db.WithContext(ctx).First(&found, 99999)
		require.ErrorIs(t, tx.Error, gorm.ErrRecordNotFound)

		plugin.annotateSpan(tx)
		span.End()

		spans := spanRecorder.Ended()
		require.Len(t, spans, 1)
		assert.NotEqual(t, codes.Error, spans[0].Status().Code)
	})

	t.Run("slow statement gets flagged", func(t *testing.T) {
		db := setupTracingTestDB(t)
		tp, spanRecorder := setupSpanRecorder(t)

		ctx, span := tp.Tracer("test").Start(context.Background(), "slow-scan")
		// Back-date the start stamp so the statement reads as slow
		// regardless of test host speed.
		ctx = context.WithValue(ctx, queryStartTimeKey, time.Now().Add(-time.Second))

		var found planRow
		tx := db.WithContext(ctx).Session(&gorm.Session{}).Limit(1).Find(&found)
		require.NoError(t, tx.Error)

		plugin.annotateSpan(tx)
		span.End()

		spans := spanRecorder.Ended()
		require.Len(t, spans, 1)

		slow, ok := spanAttr(spans[0], "db.slow_query")
		require.True(t, ok, "db.slow_query attribute should be present")
		assert.Equal(t, true, slow)

		foundEvent := false
		for _, event := range spans[0].Events() {
			if event.Name == "slow_query_warning" {
				foundEvent = true
			}
		}
		assert.True(t, foundEvent)
	})

	t.Run("nil context does not panic", func(t *testing.T) {
		db := setupTracingTestDB(t)
		plugin.annotateSpan(db)
	})

	t.Run("non-recording span is skipped", func(t *testing.T) {
		db := setupTracingTestDB(t)

		var found planRow
		tx := db.WithContext(context.Background()).Limit(1).Find(&found)
		require.NoError(t, tx.Error)

		plugin.annotateSpan(tx)
	})
}
