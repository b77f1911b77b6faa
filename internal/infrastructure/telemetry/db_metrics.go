package telemetry

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBMetricsConfig holds configuration for database metrics collection.
type DBMetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	Enabled bool
	// SlowQueryThreshold flags queries slower than this (default: 200ms).
	// Usage ingestion and invoice generation are the hot paths, so slow
	// statements are also logged with their table.
	SlowQueryThreshold time.Duration
	// PoolStatsInterval defines how often connection pool stats are
	// sampled (default: 15s).
	PoolStatsInterval time.Duration
}

// DefaultDBMetricsConfig returns default configuration for database metrics.
func DefaultDBMetricsConfig() DBMetricsConfig {
	return DBMetricsConfig{
		Enabled:            true,
		SlowQueryThreshold: 200 * time.Millisecond,
		PoolStatsInterval:  15 * time.Second,
	}
}

// DBMetrics records query latency, query and error counts, slow-query
// counts, and connection pool gauges for the billing database.
type DBMetrics struct {
	queryTotal     *Counter   // db_query_total{db.operation, db.table}
	queryDuration  *Histogram // db_query_duration_seconds{db.operation}
	queryErrors    *Counter   // db_query_errors_total{db.operation, db.table}
	slowQueryTotal *Counter   // db_slow_query_total{db.table}

	poolConnections    *Gauge // db_pool_connections{db.pool.state}
	poolConnectionsMax *Gauge // db_pool_connections_max

	config   DBMetricsConfig
	logger   *zap.Logger
	sqlDB    *sql.DB
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopOnce sync.Once
}

// NewDBMetrics creates the database metric instruments on the given meter.
func NewDBMetrics(meter metric.Meter, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlowQueryThreshold == 0 {
		cfg.SlowQueryThreshold = 200 * time.Millisecond
	}
	if cfg.PoolStatsInterval == 0 {
		cfg.PoolStatsInterval = 15 * time.Second
	}

	m := &DBMetrics{
		config: cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	var err error
	if m.queryTotal, err = NewCounter(meter, "db_query_total",
		"Total number of database queries by operation and table", "{query}"); err != nil {
		return nil, err
	}
	if m.queryDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Database query latency distribution in seconds",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.queryErrors, err = NewCounter(meter, "db_query_errors_total",
		"Total number of failed database queries by operation and table", "{query}"); err != nil {
		return nil, err
	}
	if m.slowQueryTotal, err = NewCounter(meter, "db_slow_query_total",
		"Total number of queries exceeding the slow query threshold", "{query}"); err != nil {
		return nil, err
	}
	if m.poolConnections, err = NewGauge(meter, "db_pool_connections",
		"Number of connections in the pool by state", "{connection}"); err != nil {
		return nil, err
	}
	if m.poolConnectionsMax, err = NewGauge(meter, "db_pool_connections_max",
		"Maximum number of connections in the pool", "{connection}"); err != nil {
		return nil, err
	}

	return m, nil
}

// SetSQLDB sets the sql.DB instance for connection pool sampling. Must be
// called before StartPoolStatsCollection.
func (m *DBMetrics) SetSQLDB(sqlDB *sql.DB) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sqlDB = sqlDB
}

// StartPoolStatsCollection starts a goroutine that periodically samples
// connection pool statistics. Call Stop to terminate.
func (m *DBMetrics) StartPoolStatsCollection(ctx context.Context) {
	m.mu.RLock()
	sqlDB := m.sqlDB
	m.mu.RUnlock()

	if sqlDB == nil {
		m.logger.Warn("Cannot start pool stats collection: sqlDB not set")
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.config.PoolStatsInterval)
		defer ticker.Stop()

		m.collectPoolStats(ctx)

		for {
			select {
			case <-ticker.C:
				m.collectPoolStats(ctx)
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	m.logger.Info("Started database connection pool stats collection",
		zap.Duration("interval", m.config.PoolStatsInterval),
	)
}

func (m *DBMetrics) collectPoolStats(ctx context.Context) {
	m.mu.RLock()
	sqlDB := m.sqlDB
	m.mu.RUnlock()

	if sqlDB == nil {
		return
	}

	stats := sqlDB.Stats()

	m.poolConnectionsMax.Record(ctx, int64(stats.MaxOpenConnections))

	// WaitCount is cumulative rather than a current state, so only the
	// instantaneous pool states are recorded.
	m.poolConnections.Record(ctx, int64(stats.Idle), AttrDBState.String("idle"))
	m.poolConnections.Record(ctx, int64(stats.InUse), AttrDBState.String("in_use"))
	m.poolConnections.Record(ctx, int64(stats.OpenConnections), AttrDBState.String("open"))
}

// Stop stops the pool stats collection goroutine. Safe to call multiple times.
func (m *DBMetrics) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
	})
}

// RecordQuery records count, latency, error, and slow-query metrics for a
// completed statement.
func (m *DBMetrics) RecordQuery(ctx context.Context, operation, table string, duration time.Duration, err error) {
	operation = strings.ToUpper(operation)
	if operation == "" {
		operation = "UNKNOWN"
	}
	if table == "" {
		table = "unknown"
	}

	m.queryTotal.Inc(ctx, AttrDBOperation.String(operation), AttrDBTable.String(table))
	m.queryDuration.RecordDuration(ctx, duration, AttrDBOperation.String(operation))

	// Missing rows are a normal outcome for lookups, not a query failure.
	if err != nil && err != gorm.ErrRecordNotFound {
		m.queryErrors.Inc(ctx, AttrDBOperation.String(operation), AttrDBTable.String(table))
	}

	if duration > m.config.SlowQueryThreshold {
		m.slowQueryTotal.Inc(ctx, AttrDBTable.String(table))
		m.logger.Warn("Slow database query",
			zap.String("operation", operation),
			zap.String("table", table),
			zap.Duration("duration", duration),
			zap.Duration("threshold", m.config.SlowQueryThreshold),
		)
	}
}

// DBMetricsPlugin is a GORM plugin that feeds query metrics into DBMetrics.
type DBMetricsPlugin struct {
	metrics *DBMetrics
	logger  *zap.Logger
}

// NewDBMetricsPlugin creates a GORM plugin for database metrics.
func NewDBMetricsPlugin(metrics *DBMetrics, logger *zap.Logger) *DBMetricsPlugin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DBMetricsPlugin{
		metrics: metrics,
		logger:  logger,
	}
}

// Name returns the plugin name.
func (p *DBMetricsPlugin) Name() string {
	return "db_metrics"
}

// Initialize registers before/after callbacks on every statement kind and
// wires the connection pool sampler to the underlying sql.DB.
func (p *DBMetricsPlugin) Initialize(db *gorm.DB) error {
	before := func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		db.Statement.Context = context.WithValue(ctx, dbMetricsStartTimeKey, time.Now())
	}

	// Row and Raw carry arbitrary SQL, so their operation is detected
	// from the statement text instead of being fixed at registration.
	after := func(operation string) func(*gorm.DB) {
		return func(db *gorm.DB) {
			op := operation
			if op == "" {
				op = detectOperationType(db.Statement.SQL.String())
			}
			p.recordMetrics(db, op)
		}
	}

	var regErr error
	reg := func(err error) {
		if regErr == nil && err != nil {
			regErr = err
		}
	}

	reg(db.Callback().Create().Before("gorm:create").Register("db_metrics:before_create", before))
	reg(db.Callback().Query().Before("gorm:query").Register("db_metrics:before_query", before))
	reg(db.Callback().Update().Before("gorm:update").Register("db_metrics:before_update", before))
	reg(db.Callback().Delete().Before("gorm:delete").Register("db_metrics:before_delete", before))
	reg(db.Callback().Row().Before("gorm:row").Register("db_metrics:before_row", before))
	reg(db.Callback().Raw().Before("gorm:raw").Register("db_metrics:before_raw", before))

	reg(db.Callback().Create().After("gorm:create").Register("db_metrics:after_create", after("INSERT")))
	reg(db.Callback().Query().After("gorm:query").Register("db_metrics:after_query", after("SELECT")))
	reg(db.Callback().Update().After("gorm:update").Register("db_metrics:after_update", after("UPDATE")))
	reg(db.Callback().Delete().After("gorm:delete").Register("db_metrics:after_delete", after("DELETE")))
	reg(db.Callback().Row().After("gorm:row").Register("db_metrics:after_row", after("")))
	reg(db.Callback().Raw().After("gorm:raw").Register("db_metrics:after_raw", after("")))

	if regErr != nil {
		return regErr
	}

	if sqlDB, err := db.DB(); err == nil {
		p.metrics.SetSQLDB(sqlDB)
	}

	p.logger.Info("Database metrics plugin initialized")
	return nil
}

func (p *DBMetricsPlugin) recordMetrics(db *gorm.DB, operation string) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}

	var duration time.Duration
	if startTime, ok := ctx.Value(dbMetricsStartTimeKey).(time.Time); ok {
		duration = time.Since(startTime)
	}

	p.metrics.RecordQuery(ctx, operation, db.Statement.Table, duration, db.Error)
}

// detectOperationType classifies raw SQL by its leading keyword.
func detectOperationType(sql string) string {
	sql = strings.TrimSpace(strings.ToUpper(sql))

	switch {
	case strings.HasPrefix(sql, "SELECT"):
		return "SELECT"
	case strings.HasPrefix(sql, "INSERT"):
		return "INSERT"
	case strings.HasPrefix(sql, "UPDATE"):
		return "UPDATE"
	case strings.HasPrefix(sql, "DELETE"):
		return "DELETE"
	default:
		return "OTHER"
	}
}

type dbMetricsContextKey string

const dbMetricsStartTimeKey dbMetricsContextKey = "db_metrics_start_time"
