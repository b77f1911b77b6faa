package event

import (
	"context"
	"errors"
	"time"

	"github.com/billflow/backend/internal/domain/shared"
	"github.com/billflow/backend/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormOutboxRepository implements shared.OutboxRepository using GORM
type GormOutboxRepository struct {
	db *gorm.DB
}

// NewGormOutboxRepository creates a new GORM-based outbox repository
func NewGormOutboxRepository(db *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: db}
}

// WithTx returns a new repository instance bound to the given transaction
func (r *GormOutboxRepository) WithTx(tx *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: tx}
}

// Save persists one or more outbox events
func (r *GormOutboxRepository) Save(ctx context.Context, events ...*shared.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(events).Error
}

// FindPending retrieves pending events, oldest first
func (r *GormOutboxRepository) FindPending(ctx context.Context, limit int) ([]*shared.OutboxEvent, error) {
	var events []*shared.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("status = ?", shared.OutboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// FindRetryable retrieves failed events whose backoff window has elapsed.
// The retry_count guard keeps events that already exhausted their retry
// budget out of the delivery loop even if a writer left one in FAILED.
func (r *GormOutboxRepository) FindRetryable(ctx context.Context, before time.Time, limit int) ([]*shared.OutboxEvent, error) {
	var events []*shared.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ? AND retry_count < max_retry_count", shared.OutboxStatusFailed, before).
		Order("next_attempt_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// ClaimPublishing atomically transitions events to PUBLISHING and returns
// the ones this caller won. The row lock uses SKIP LOCKED so concurrent
// publishers divide the batch instead of serializing on it; an event
// already claimed, published or skipped is silently excluded.
func (r *GormOutboxRepository) ClaimPublishing(ctx context.Context, ids []uuid.UUID) ([]*shared.OutboxEvent, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var events []*shared.OutboxEvent

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Clauses(clause.Locking{
				Strength: "UPDATE",
				Options:  "SKIP LOCKED",
			}).
			Where("id IN ? AND status IN ?", ids, []shared.OutboxStatus{
				shared.OutboxStatusPending,
				shared.OutboxStatusFailed,
			}).
			Find(&events).Error; err != nil {
			return err
		}

		if len(events) == 0 {
			return nil
		}

		claimedIDs := make([]uuid.UUID, len(events))
		for i, e := range events {
			claimedIDs[i] = e.ID
		}

		now := time.Now()
		if err := tx.Model(&shared.OutboxEvent{}).
			Where("id IN ?", claimedIDs).
			Updates(map[string]interface{}{
				"status":          shared.OutboxStatusPublishing,
				"last_attempt_at": now,
				"updated_at":      now,
			}).Error; err != nil {
			return err
		}

		for _, e := range events {
			e.Status = shared.OutboxStatusPublishing
			e.LastAttemptAt = &now
			e.UpdatedAt = now
		}
		return nil
	})

	return events, err
}

// ReclaimStale returns PUBLISHING events untouched since the cutoff to
// the FAILED pool. A publisher that crashed mid-attempt leaves its claims
// in PUBLISHING forever; counting the reclaim as a failed attempt keeps
// the retry bound honest. Events whose incremented retry count reaches
// the bound go straight to SKIPPED so the reclaim never grants an
// attempt beyond max_retry_count.
func (r *GormOutboxRepository) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now()
	var reclaimed int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exhausted := tx.Model(&shared.OutboxEvent{}).
			Where("status = ? AND last_attempt_at < ? AND retry_count + 1 >= max_retry_count",
				shared.OutboxStatusPublishing, cutoff).
			Updates(map[string]interface{}{
				"status":          shared.OutboxStatusSkipped,
				"retry_count":     gorm.Expr("retry_count + 1"),
				"error_message":   "reclaimed from stale publishing state",
				"next_attempt_at": nil,
				"updated_at":      now,
			})
		if exhausted.Error != nil {
			return exhausted.Error
		}

		retryable := tx.Model(&shared.OutboxEvent{}).
			Where("status = ? AND last_attempt_at < ?", shared.OutboxStatusPublishing, cutoff).
			Updates(map[string]interface{}{
				"status":          shared.OutboxStatusFailed,
				"retry_count":     gorm.Expr("retry_count + 1"),
				"error_message":   "reclaimed from stale publishing state",
				"next_attempt_at": now,
				"updated_at":      now,
			})
		if retryable.Error != nil {
			return retryable.Error
		}

		reclaimed = exhausted.RowsAffected + retryable.RowsAffected
		return nil
	})

	return reclaimed, err
}

// Update updates an existing outbox event
func (r *GormOutboxRepository) Update(ctx context.Context, event *shared.OutboxEvent) error {
	event.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(event).Error
}

// DeletePublishedBefore deletes PUBLISHED events older than the cutoff.
// Only the terminal PUBLISHED state is swept; pending, failed and skipped
// events are never reaped by retention.
func (r *GormOutboxRepository) DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status = ? AND published_at < ?", shared.OutboxStatusPublished, cutoff).
		Delete(&shared.OutboxEvent{})
	return result.RowsAffected, result.Error
}

// FindSkipped retrieves skipped events with pagination. The sort hints
// come from query strings, so both are whitelisted before they reach
// the ORDER BY clause.
func (r *GormOutboxRepository) FindSkipped(ctx context.Context, page, pageSize int, sortBy, sortOrder string) ([]*shared.OutboxEvent, int64, error) {
	var events []*shared.OutboxEvent
	var total int64

	if err := r.db.WithContext(ctx).
		Model(&shared.OutboxEvent{}).
		Where("status = ?", shared.OutboxStatusSkipped).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	field := persistence.ValidateSortField(sortBy, persistence.OutboxEventSortFields, "updated_at")
	order := persistence.ValidateSortOrder(sortOrder)

	offset := (page - 1) * pageSize
	if err := r.db.WithContext(ctx).
		Where("status = ?", shared.OutboxStatusSkipped).
		Order(field + " " + order).
		Offset(offset).
		Limit(pageSize).
		Find(&events).Error; err != nil {
		return nil, 0, err
	}

	return events, total, nil
}

// FindByID retrieves a single outbox event by ID
func (r *GormOutboxRepository) FindByID(ctx context.Context, id uuid.UUID) (*shared.OutboxEvent, error) {
	var event shared.OutboxEvent
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// CountByStatus returns count of events for each status
func (r *GormOutboxRepository) CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error) {
	type statusCount struct {
		Status shared.OutboxStatus
		Count  int64
	}

	var results []statusCount
	err := r.db.WithContext(ctx).
		Model(&shared.OutboxEvent{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[shared.OutboxStatus]int64)
	for _, res := range results {
		counts[res.Status] = res.Count
	}
	return counts, nil
}

// Ensure GormOutboxRepository implements OutboxRepository
var _ shared.OutboxRepository = (*GormOutboxRepository)(nil)
