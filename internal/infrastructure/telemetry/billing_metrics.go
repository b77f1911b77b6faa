package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// BillingMetrics provides business metrics for the billing system.
// It tracks invoice generation, estimate activity, usage ingestion and
// outbox delivery health.
type BillingMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics (monotonically increasing)
	invoiceGeneratedTotal *Counter
	invoiceAmountTotal    *Counter
	estimateTotal         *Counter
	usageRecordedTotal    *Counter

	// Outbox delivery counters
	eventPublishedTotal *Counter
	eventFailedTotal    *Counter
	eventSkippedTotal   *Counter
	eventReclaimedTotal *Counter
	eventSweptTotal     *Counter

	// Gauge metrics (point-in-time values)
	outboxBacklog *Gauge

	// Histogram metrics
	calculationDuration *Histogram

	// Periodic collector
	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	// Data provider for periodic collection
	backlogProvider OutboxBacklogProvider
}

// OutboxBacklogProvider provides outbox backlog data for periodic metrics
// collection. This interface allows the telemetry layer to query outbox
// state without depending on the event infrastructure directly.
type OutboxBacklogProvider interface {
	// CountByStatus returns the number of outbox events per status
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// BillingMetricsConfig holds configuration for billing metrics.
type BillingMetricsConfig struct {
	Meter           metric.Meter
	Logger          *zap.Logger
	CollectInterval time.Duration // Default: 1 minute
	BacklogProvider OutboxBacklogProvider
}

// NewBillingMetrics creates a new BillingMetrics instance.
func NewBillingMetrics(cfg BillingMetricsConfig) (*BillingMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	bm := &BillingMetrics{
		meter:           cfg.Meter,
		logger:          logger,
		stopChan:        make(chan struct{}),
		backlogProvider: cfg.BacklogProvider,
	}

	var err error

	// Invoice metrics
	bm.invoiceGeneratedTotal, err = NewCounter(
		cfg.Meter,
		"billflow_invoice_generated_total",
		"Total number of invoices generated",
		"{invoices}",
	)
	if err != nil {
		return nil, err
	}

	bm.invoiceAmountTotal, err = NewCounter(
		cfg.Meter,
		"billflow_invoice_amount_total",
		"Total invoiced amount in cents",
		"{cents}",
	)
	if err != nil {
		return nil, err
	}

	// Estimate metrics
	bm.estimateTotal, err = NewCounter(
		cfg.Meter,
		"billflow_estimate_total",
		"Total number of billing estimates computed",
		"{estimates}",
	)
	if err != nil {
		return nil, err
	}

	// Usage ingestion metrics
	bm.usageRecordedTotal, err = NewCounter(
		cfg.Meter,
		"billflow_usage_recorded_total",
		"Total number of usage records ingested",
		"{records}",
	)
	if err != nil {
		return nil, err
	}

	// Outbox delivery counters
	bm.eventPublishedTotal, err = NewCounter(
		cfg.Meter,
		"billflow_outbox_published_total",
		"Total number of outbox events published",
		"{events}",
	)
	if err != nil {
		return nil, err
	}

	bm.eventFailedTotal, err = NewCounter(
		cfg.Meter,
		"billflow_outbox_failed_total",
		"Total number of outbox publish attempts that failed",
		"{events}",
	)
	if err != nil {
		return nil, err
	}

	bm.eventSkippedTotal, err = NewCounter(
		cfg.Meter,
		"billflow_outbox_skipped_total",
		"Total number of outbox events skipped after exhausting retries",
		"{events}",
	)
	if err != nil {
		return nil, err
	}

	bm.eventReclaimedTotal, err = NewCounter(
		cfg.Meter,
		"billflow_outbox_reclaimed_total",
		"Total number of stale outbox claims reclaimed",
		"{events}",
	)
	if err != nil {
		return nil, err
	}

	bm.eventSweptTotal, err = NewCounter(
		cfg.Meter,
		"billflow_outbox_swept_total",
		"Total number of published outbox events removed by retention sweep",
		"{events}",
	)
	if err != nil {
		return nil, err
	}

	// Outbox backlog gauge
	bm.outboxBacklog, err = NewGauge(
		cfg.Meter,
		"billflow_outbox_backlog",
		"Current number of outbox events per status",
		"{events}",
	)
	if err != nil {
		return nil, err
	}

	// Calculation latency
	bm.calculationDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "billflow_calculation_duration_seconds",
		Description: "Billing calculation duration",
		Unit:        "s",
		Boundaries:  HTTPDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	return bm, nil
}

// =============================================================================
// Billing Metrics
// =============================================================================

// BillingMode labels whether a calculation ran as an estimate or an invoice.
type BillingMode string

const (
	BillingModeEstimate BillingMode = "estimate"
	BillingModeInvoice  BillingMode = "invoice"
)

// RecordInvoiceGenerated records an invoice generation event.
func (bm *BillingMetrics) RecordInvoiceGenerated(ctx context.Context, tenantID uuid.UUID, planID string) {
	bm.invoiceGeneratedTotal.Inc(ctx,
		AttrTenantID.String(tenantID.String()),
		AttrPlanID.String(planID),
	)
}

// RecordInvoiceAmount records the invoiced amount.
// Amount should be in the smallest currency unit (cents).
func (bm *BillingMetrics) RecordInvoiceAmount(ctx context.Context, tenantID uuid.UUID, planID string, amountCents int64) {
	bm.invoiceAmountTotal.Add(ctx, amountCents,
		AttrTenantID.String(tenantID.String()),
		AttrPlanID.String(planID),
	)
}

// RecordInvoiceWithAmount is a convenience method that records both invoice count and amount.
func (bm *BillingMetrics) RecordInvoiceWithAmount(ctx context.Context, tenantID uuid.UUID, planID string, amount decimal.Decimal) {
	bm.RecordInvoiceGenerated(ctx, tenantID, planID)

	amountCents := amount.Mul(decimal.NewFromInt(100)).IntPart()
	bm.RecordInvoiceAmount(ctx, tenantID, planID, amountCents)
}

// RecordEstimate records a billing estimate. Degraded estimates carry
// advisories for feature charges that could not be computed.
func (bm *BillingMetrics) RecordEstimate(ctx context.Context, tenantID uuid.UUID, degraded bool) {
	status := "complete"
	if degraded {
		status = "degraded"
	}
	bm.estimateTotal.Inc(ctx,
		AttrTenantID.String(tenantID.String()),
		AttrBillingMode.String(status),
	)
}

// RecordUsageIngested records usage records accepted for a feature.
func (bm *BillingMetrics) RecordUsageIngested(ctx context.Context, tenantID uuid.UUID, featureID string, count int64) {
	bm.usageRecordedTotal.Add(ctx, count,
		AttrTenantID.String(tenantID.String()),
		AttrFeatureID.String(featureID),
	)
}

// RecordCalculationDuration records how long a billing calculation took.
func (bm *BillingMetrics) RecordCalculationDuration(ctx context.Context, mode BillingMode, d time.Duration) {
	bm.calculationDuration.RecordDuration(ctx, d,
		AttrBillingMode.String(string(mode)),
	)
}

// =============================================================================
// Outbox Metrics
// =============================================================================

// EventPublished records a successfully published outbox event.
func (bm *BillingMetrics) EventPublished(ctx context.Context, eventType string) {
	bm.eventPublishedTotal.Inc(ctx, AttrEventType.String(eventType))
}

// EventFailed records a failed publish attempt.
func (bm *BillingMetrics) EventFailed(ctx context.Context, eventType string) {
	bm.eventFailedTotal.Inc(ctx, AttrEventType.String(eventType))
}

// EventSkipped records an event skipped after exhausting its retry budget.
func (bm *BillingMetrics) EventSkipped(ctx context.Context, eventType string) {
	bm.eventSkippedTotal.Inc(ctx, AttrEventType.String(eventType))
}

// EventsReclaimed records stale claims returned to the pending pool.
func (bm *BillingMetrics) EventsReclaimed(ctx context.Context, count int64) {
	if count > 0 {
		bm.eventReclaimedTotal.Add(ctx, count)
	}
}

// EventsSwept records published events removed by the retention sweep.
func (bm *BillingMetrics) EventsSwept(ctx context.Context, count int64) {
	if count > 0 {
		bm.eventSweptTotal.Add(ctx, count)
	}
}

// RecordOutboxBacklog records the current backlog size for a status.
func (bm *BillingMetrics) RecordOutboxBacklog(ctx context.Context, status string, count int64) {
	bm.outboxBacklog.Record(ctx, count,
		AttrOutboxStatus.String(status),
	)
}

// =============================================================================
// Periodic Collection
// =============================================================================

// StartPeriodicCollection starts periodic collection of gauge metrics.
// It collects the outbox backlog every interval (default: 1 minute).
// This is non-blocking - use Stop() to stop collection.
func (bm *BillingMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	bm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = time.Minute
		}

		go bm.runPeriodicCollection(ctx, interval)
	})
}

// runPeriodicCollection runs the periodic collection loop.
func (bm *BillingMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect immediately on start
	bm.collectBacklogMetrics(ctx)

	for {
		select {
		case <-bm.stopChan:
			bm.logger.Info("Stopping periodic billing metrics collection")
			return
		case <-ctx.Done():
			bm.logger.Info("Context cancelled, stopping periodic billing metrics collection")
			return
		case <-ticker.C:
			bm.collectBacklogMetrics(ctx)
		}
	}
}

// collectBacklogMetrics collects the outbox backlog gauge.
func (bm *BillingMetrics) collectBacklogMetrics(ctx context.Context) {
	if bm.backlogProvider == nil {
		bm.logger.Debug("No backlog provider configured, skipping outbox backlog collection")
		return
	}

	counts, err := bm.backlogProvider.CountByStatus(ctx)
	if err != nil {
		bm.logger.Error("Failed to collect outbox backlog", zap.Error(err))
		return
	}

	for status, count := range counts {
		bm.RecordOutboxBacklog(ctx, status, count)
	}
}

// Stop stops the periodic collection.
func (bm *BillingMetrics) Stop() {
	bm.stopOnce.Do(func() {
		close(bm.stopChan)
	})
}

// =============================================================================
// Error Types
// =============================================================================

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewBillingMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
