package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/billflow/backend/internal/domain/billing"
	"github.com/billflow/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UsageRecordModel is the GORM model for usage records
type UsageRecordModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID       uuid.UUID `gorm:"type:uuid;not null;index:idx_usage_tenant_feature"`
	SubscriptionID uuid.UUID `gorm:"type:uuid;not null;index"`
	FeatureID      string    `gorm:"type:varchar(100);not null;index:idx_usage_tenant_feature"`
	Quantity       int64     `gorm:"not null"`
	RecordedAt     time.Time `gorm:"not null;index"`
	SourceType     string    `gorm:"type:varchar(100)"`
	SourceID       string    `gorm:"type:varchar(255)"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (UsageRecordModel) TableName() string {
	return "usage_records"
}

// ToEntity converts the model to a domain entity
func (m *UsageRecordModel) ToEntity() *billing.UsageRecord {
	return &billing.UsageRecord{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		TenantID:       m.TenantID,
		SubscriptionID: m.SubscriptionID,
		FeatureID:      m.FeatureID,
		Quantity:       m.Quantity,
		RecordedAt:     m.RecordedAt,
		SourceType:     m.SourceType,
		SourceID:       m.SourceID,
	}
}

// UsageRecordModelFromEntity creates a model from a domain entity
func UsageRecordModelFromEntity(e *billing.UsageRecord) *UsageRecordModel {
	return &UsageRecordModel{
		ID:             e.ID,
		TenantID:       e.TenantID,
		SubscriptionID: e.SubscriptionID,
		FeatureID:      e.FeatureID,
		Quantity:       e.Quantity,
		RecordedAt:     e.RecordedAt,
		SourceType:     e.SourceType,
		SourceID:       e.SourceID,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

// GormUsageRecordRepository implements billing.UsageRecordRepository
type GormUsageRecordRepository struct {
	db *gorm.DB
}

// NewGormUsageRecordRepository creates a new usage record repository
func NewGormUsageRecordRepository(db *gorm.DB) *GormUsageRecordRepository {
	return &GormUsageRecordRepository{db: db}
}

// Save persists a new usage record
func (r *GormUsageRecordRepository) Save(ctx context.Context, record *billing.UsageRecord) error {
	model := UsageRecordModelFromEntity(record)
	return r.db.WithContext(ctx).Create(model).Error
}

// SaveBatch persists multiple usage records in batches
func (r *GormUsageRecordRepository) SaveBatch(ctx context.Context, records []*billing.UsageRecord) error {
	if len(records) == 0 {
		return nil
	}

	models := make([]*UsageRecordModel, len(records))
	for i, record := range records {
		models[i] = UsageRecordModelFromEntity(record)
	}

	return r.db.WithContext(ctx).CreateInBatches(models, 100).Error
}

// FindByID retrieves a usage record by its ID.
// Returns (nil, nil) when no record exists.
func (r *GormUsageRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.UsageRecord, error) {
	var model UsageRecordModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToEntity(), nil
}

// SumUsage returns total usage for a subscription's feature in the
// half-open window [periodStart, periodEnd)
func (r *GormUsageRecordRepository) SumUsage(ctx context.Context, tenantID, subscriptionID uuid.UUID, featureID string, periodStart, periodEnd time.Time) (int64, error) {
	var result struct {
		Total int64
	}

	err := r.db.WithContext(ctx).
		Model(&UsageRecordModel{}).
		Select("COALESCE(SUM(quantity), 0) as total").
		Where("tenant_id = ?", tenantID).
		Where("subscription_id = ?", subscriptionID).
		Where("feature_id = ?", featureID).
		Where("recorded_at >= ?", periodStart).
		Where("recorded_at < ?", periodEnd).
		Scan(&result).Error

	if err != nil {
		return 0, err
	}
	return result.Total, nil
}

// DeleteOlderThan removes usage records older than the specified time
func (r *GormUsageRecordRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("recorded_at < ?", before).
		Delete(&UsageRecordModel{})
	return result.RowsAffected, result.Error
}

var _ billing.UsageRecordRepository = (*GormUsageRecordRepository)(nil)
