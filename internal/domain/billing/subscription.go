package billing

import (
	"time"

	"github.com/billflow/backend/internal/domain/pricing"
	"github.com/billflow/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Subscription is a tenant's enrollment in a plan, carrying the billable
// features the aggregator iterates and the facts discount rules evaluate.
type Subscription struct {
	shared.TenantAggregateRoot
	PlanID       string               `gorm:"not null;index"`
	Cycle        pricing.BillingCycle `gorm:"not null"`
	Quantity     int64                `gorm:"not null;default:1"`
	StartedAt    time.Time            `gorm:"not null"`
	PromoPercent decimal.Decimal      `gorm:"type:numeric(5,2);default:0"`
	TaxRate      decimal.Decimal      `gorm:"type:numeric(6,4);default:0"`
	Features     []SubscriptionFeature `gorm:"foreignKey:SubscriptionID"`
}

// SubscriptionFeature is one billable feature configured on a subscription
type SubscriptionFeature struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	SubscriptionID uuid.UUID `gorm:"type:uuid;not null;index"`
	FeatureID      string    `gorm:"not null"`
}

// TableName returns the database table name for GORM
func (s *Subscription) TableName() string {
	return "subscriptions"
}

// TableName returns the database table name for GORM
func (f *SubscriptionFeature) TableName() string {
	return "subscription_features"
}

// NewSubscription creates a subscription and records its creation event
func NewSubscription(tenantID uuid.UUID, planID string, cycle pricing.BillingCycle, quantity int64, featureIDs []string) (*Subscription, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID cannot be empty")
	}
	if planID == "" {
		return nil, shared.NewDomainError("INVALID_PLAN", "Plan ID cannot be empty")
	}
	if !cycle.IsValid() {
		return nil, shared.NewDomainError("INVALID_CYCLE", "Invalid billing cycle")
	}
	if quantity < 1 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Quantity must be at least 1")
	}

	sub := &Subscription{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		PlanID:              planID,
		Cycle:               cycle,
		Quantity:            quantity,
		StartedAt:           time.Now(),
	}
	for _, featureID := range featureIDs {
		sub.Features = append(sub.Features, SubscriptionFeature{
			ID:             uuid.New(),
			SubscriptionID: sub.ID,
			FeatureID:      featureID,
		})
	}

	sub.AddDomainEvent(NewSubscriptionCreatedEvent(sub))
	return sub, nil
}

// FeatureIDs returns the feature identifiers configured on the plan
func (s *Subscription) FeatureIDs() []string {
	ids := make([]string, len(s.Features))
	for i, f := range s.Features {
		ids[i] = f.FeatureID
	}
	return ids
}

// MonthsSubscribed returns whole months of tenure at the given time
func (s *Subscription) MonthsSubscribed(at time.Time) int {
	if at.Before(s.StartedAt) {
		return 0
	}
	months := 0
	cursor := s.StartedAt
	for cursor.AddDate(0, 1, 0).Before(at) || cursor.AddDate(0, 1, 0).Equal(at) {
		cursor = cursor.AddDate(0, 1, 0)
		months++
	}
	return months
}

// ChargeContext assembles the pure inputs the discount and tax rules need
func (s *Subscription) ChargeContext(at time.Time) pricing.ChargeContext {
	return pricing.ChargeContext{
		TenantID:         s.TenantID,
		PlanID:           s.PlanID,
		Cycle:            s.Cycle,
		Quantity:         s.Quantity,
		MonthsSubscribed: s.MonthsSubscribed(at),
		PromoPercent:     s.PromoPercent,
		TaxRate:          s.TaxRate,
	}
}
