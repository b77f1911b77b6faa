package event

import (
	"context"

	"github.com/billflow/backend/internal/domain/billing"
	"github.com/billflow/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// BillingLifecycleHandler consumes billing events off the bus and writes
// the audit trail: one structured log line per lifecycle transition, keyed
// by tenant and aggregate. Support works from these lines when a tenant
// disputes an invoice, so the payload fields are logged in full.
type BillingLifecycleHandler struct {
	logger *zap.Logger
}

// NewBillingLifecycleHandler creates the audit trail consumer.
func NewBillingLifecycleHandler(logger *zap.Logger) *BillingLifecycleHandler {
	return &BillingLifecycleHandler{logger: logger}
}

// EventTypes lists the lifecycle events the audit trail covers.
func (h *BillingLifecycleHandler) EventTypes() []string {
	return []string{
		billing.EventTypeSubscriptionCreated,
		billing.EventTypeInvoiceGenerated,
		billing.EventTypePaymentSucceeded,
		billing.EventTypeQuotaExceeded,
	}
}

// Handle writes one audit line per event. It never fails: an unloggable
// event must not push an outbox row into retry.
func (h *BillingLifecycleHandler) Handle(ctx context.Context, ev shared.DomainEvent) error {
	log := h.logger.With(
		zap.String("event_id", ev.EventID().String()),
		zap.String("tenant_id", ev.TenantID().String()),
		zap.String("aggregate_id", ev.AggregateID().String()),
	)

	switch e := ev.(type) {
	case *billing.SubscriptionCreatedEvent:
		log.Info("subscription created",
			zap.String("plan_id", e.PlanID),
			zap.String("cycle", e.Cycle),
			zap.Int64("quantity", e.Quantity),
		)
	case *billing.InvoiceGeneratedEvent:
		log.Info("invoice generated",
			zap.String("subscription_id", e.SubscriptionID.String()),
			zap.String("plan_id", e.PlanID),
			zap.String("period_start", e.PeriodStart),
			zap.String("period_end", e.PeriodEnd),
			zap.String("currency", e.Currency),
			zap.String("total", e.Total),
		)
	case *billing.PaymentSucceededEvent:
		log.Info("payment succeeded",
			zap.String("subscription_id", e.SubscriptionID.String()),
			zap.String("currency", e.Currency),
			zap.String("amount", e.Amount),
		)
	case *billing.QuotaExceededEvent:
		log.Warn("quota exceeded",
			zap.String("feature_id", e.FeatureID),
			zap.Int64("usage", e.UsageAmount),
			zap.Int64("quota", e.Quota),
		)
	default:
		log.Debug("unrecognized billing event", zap.String("event_type", ev.EventType()))
	}

	return nil
}

var _ shared.EventHandler = (*BillingLifecycleHandler)(nil)
