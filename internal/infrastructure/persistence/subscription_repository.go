package persistence

import (
	"context"
	"errors"

	"github.com/billflow/backend/internal/domain/billing"
	"github.com/billflow/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormSubscriptionRepository implements billing.SubscriptionRepository
type GormSubscriptionRepository struct {
	db          *gorm.DB
	outboxSaver shared.OutboxWriter // optional, for transactional outbox pattern
}

// NewGormSubscriptionRepository creates a new subscription repository
func NewGormSubscriptionRepository(db *gorm.DB) *GormSubscriptionRepository {
	return &GormSubscriptionRepository{db: db}
}

// SetOutboxWriter sets the outbox writer for transactional event publishing
func (r *GormSubscriptionRepository) SetOutboxWriter(saver shared.OutboxWriter) {
	r.outboxSaver = saver
}

// FindByID retrieves a subscription with its billable features.
// Returns (nil, nil) when no subscription exists so callers can map the
// miss to their own domain error.
func (r *GormSubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Subscription, error) {
	var sub billing.Subscription
	if err := r.db.WithContext(ctx).
		Preload("Features").
		First(&sub, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// Save persists the subscription and appends its pending domain events to
// the outbox inside the same transaction, so a committed subscription and
// its events are inseparable.
func (r *GormSubscriptionRepository) Save(ctx context.Context, sub *billing.Subscription) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Features").Save(sub).Error; err != nil {
			return err
		}

		for i := range sub.Features {
			if err := tx.Save(&sub.Features[i]).Error; err != nil {
				return err
			}
		}

		if events := sub.GetDomainEvents(); r.outboxSaver != nil && len(events) > 0 {
			if err := r.outboxSaver.SaveEvents(ctx, tx, events...); err != nil {
				return err
			}
		}

		return nil
	})
}

var _ billing.SubscriptionRepository = (*GormSubscriptionRepository)(nil)
