package telemetry

import (
	"context"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for database tracing.
type DBTracingConfig struct {
	Enabled bool
	// LogFullSQL includes bound query variables in spans. Usage records
	// and invoices carry tenant data, so this stays off outside dev.
	LogFullSQL      bool
	SlowQueryThresh time.Duration // default: 200ms
	DBSystem        string        // default: "postgresql"
}

// DefaultDBTracingConfig returns default configuration for database tracing.
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		Enabled:         false,
		LogFullSQL:      false,
		SlowQueryThresh: 200 * time.Millisecond,
		DBSystem:        "postgresql",
	}
}

// DBTracingPlugin wraps otelgorm with slow-query annotation and error
// marking on the query span. It implements gorm.Plugin.
type DBTracingPlugin struct {
	config DBTracingConfig
	logger *zap.Logger
}

// NewDBTracingPlugin creates a database tracing plugin.
func NewDBTracingPlugin(cfg DBTracingConfig, logger *zap.Logger) *DBTracingPlugin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DBTracingPlugin{
		config: cfg,
		logger: logger,
	}
}

// Name returns the plugin name.
func (p *DBTracingPlugin) Name() string {
	return "db_tracing"
}

// Initialize registers otelgorm and the slow-query callbacks.
func (p *DBTracingPlugin) Initialize(db *gorm.DB) error {
	return p.RegisterOtelGorm(db)
}

// RegisterOtelGorm registers the otelgorm plugin plus timing callbacks on
// the given GORM DB instance. No-op when tracing is disabled.
func (p *DBTracingPlugin) RegisterOtelGorm(db *gorm.DB) error {
	if !p.config.Enabled {
		p.logger.Debug("Database tracing disabled, skipping otelgorm registration")
		return nil
	}

	opts := []otelgorm.Option{
		otelgorm.WithDBName(p.config.DBSystem),
	}
	if !p.config.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}

	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	if err := p.registerTimingCallbacks(db); err != nil {
		return err
	}

	p.logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", p.config.LogFullSQL),
		zap.Duration("slow_query_threshold", p.config.SlowQueryThresh),
		zap.String("db_system", p.config.DBSystem),
	)

	return nil
}

// registerTimingCallbacks installs a start-time stamp before each
// statement kind and the span annotation after it.
func (p *DBTracingPlugin) registerTimingCallbacks(db *gorm.DB) error {
	before := func(db *gorm.DB) {
		if db.Statement.Context != nil {
			db.Statement.Context = context.WithValue(db.Statement.Context, queryStartTimeKey, time.Now())
		}
	}

	var regErr error
	reg := func(err error) {
		if regErr == nil && err != nil {
			regErr = err
		}
	}

	reg(db.Callback().Create().Before("gorm:create").Register("otel_timing:before_create", before))
	reg(db.Callback().Query().Before("gorm:query").Register("otel_timing:before_query", before))
	reg(db.Callback().Update().Before("gorm:update").Register("otel_timing:before_update", before))
	reg(db.Callback().Delete().Before("gorm:delete").Register("otel_timing:before_delete", before))
	reg(db.Callback().Row().Before("gorm:row").Register("otel_timing:before_row", before))
	reg(db.Callback().Raw().Before("gorm:raw").Register("otel_timing:before_raw", before))

	reg(db.Callback().Create().After("gorm:create").Register("otel_slow_query:create", p.annotateSpan))
	reg(db.Callback().Query().After("gorm:query").Register("otel_slow_query:query", p.annotateSpan))
	reg(db.Callback().Update().After("gorm:update").Register("otel_slow_query:update", p.annotateSpan))
	reg(db.Callback().Delete().After("gorm:delete").Register("otel_slow_query:delete", p.annotateSpan))
	reg(db.Callback().Row().After("gorm:row").Register("otel_slow_query:row", p.annotateSpan))
	reg(db.Callback().Raw().After("gorm:raw").Register("otel_slow_query:raw", p.annotateSpan))

	return regErr
}

// annotateSpan runs after each statement: it stamps rows affected and
// table on the active span, marks real errors, and flags slow queries.
func (p *DBTracingPlugin) annotateSpan(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}

	if db.Statement.RowsAffected >= 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	}
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}

	// Missing rows are a normal lookup outcome, not a span error.
	if db.Error != nil && db.Error != gorm.ErrRecordNotFound {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}

	if startTime, ok := ctx.Value(queryStartTimeKey).(time.Time); ok {
		elapsed := time.Since(startTime)
		if elapsed > p.config.SlowQueryThresh {
			span.SetAttributes(
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			)
			span.AddEvent("slow_query_warning", trace.WithAttributes(
				attribute.Int64("duration_ms", elapsed.Milliseconds()),
				attribute.Int64("threshold_ms", p.config.SlowQueryThresh.Milliseconds()),
			))
		}
	}
}

type contextKey string

const queryStartTimeKey contextKey = "otel_query_start_time"
