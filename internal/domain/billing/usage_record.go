package billing

import (
	"time"

	"github.com/billflow/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// UsageRecord represents an immutable record of a single usage event.
// Once created, usage records cannot be modified - corrections must be
// made with new records, preserving a complete audit trail.
type UsageRecord struct {
	shared.BaseEntity
	TenantID       uuid.UUID // The tenant this usage belongs to
	SubscriptionID uuid.UUID // The subscription the usage accrues against
	FeatureID      string    // The billable feature being metered
	Quantity       int64     // Amount of usage (never negative)
	RecordedAt     time.Time // When the usage occurred
	SourceType     string    // Source of the usage event (e.g., "api_request")
	SourceID       string    // ID of the source entity (optional)
}

// TableName returns the database table name for GORM
func (r *UsageRecord) TableName() string {
	return "usage_records"
}

// NewUsageRecord creates a new usage record with validation
func NewUsageRecord(tenantID, subscriptionID uuid.UUID, featureID string, quantity int64) (*UsageRecord, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID cannot be empty")
	}
	if subscriptionID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_SUBSCRIPTION", "Subscription ID cannot be empty")
	}
	if featureID == "" {
		return nil, shared.NewDomainError("INVALID_FEATURE", "Feature ID cannot be empty")
	}
	if quantity < 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Quantity cannot be negative")
	}

	return &UsageRecord{
		BaseEntity:     shared.NewBaseEntity(),
		TenantID:       tenantID,
		SubscriptionID: subscriptionID,
		FeatureID:      featureID,
		Quantity:       quantity,
		RecordedAt:     time.Now(),
	}, nil
}

// WithSource sets the source information for the usage record
func (r *UsageRecord) WithSource(sourceType, sourceID string) *UsageRecord {
	r.SourceType = sourceType
	r.SourceID = sourceID
	return r
}

// WithRecordedAt sets a custom recorded time (useful for batch imports)
func (r *UsageRecord) WithRecordedAt(recordedAt time.Time) *UsageRecord {
	r.RecordedAt = recordedAt
	return r
}
