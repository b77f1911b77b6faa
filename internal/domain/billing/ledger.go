package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UsageLedger answers the one query the billing aggregator needs: total
// usage for a subscription's feature over a period. Implementations are
// expected to bound each call with the caller's context deadline.
type UsageLedger interface {
	// SumUsage returns the total recorded quantity for the feature in
	// [periodStart, periodEnd)
	SumUsage(ctx context.Context, tenantID, subscriptionID uuid.UUID, featureID string, periodStart, periodEnd time.Time) (int64, error)
}

// UsageRecordRepository persists and queries usage records
type UsageRecordRepository interface {
	UsageLedger
	// Save persists a new usage record
	Save(ctx context.Context, record *UsageRecord) error
	// SaveBatch persists multiple usage records in a single transaction
	SaveBatch(ctx context.Context, records []*UsageRecord) error
	// FindByID retrieves a usage record by its ID; nil when absent
	FindByID(ctx context.Context, id uuid.UUID) (*UsageRecord, error)
	// DeleteOlderThan removes usage records older than the given time
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// SubscriptionRepository loads subscriptions with their billable features
type SubscriptionRepository interface {
	// FindByID retrieves a subscription by its ID; nil when absent
	FindByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	// Save persists a subscription
	Save(ctx context.Context, sub *Subscription) error
}

// InvoiceRepository persists materialized billing results
type InvoiceRepository interface {
	// Save persists an invoice, optionally inside an ambient transaction
	Save(ctx context.Context, invoice *Invoice) error
	// FindByID retrieves an invoice by its ID; nil when absent
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
}
