package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/billflow/backend/internal/domain/pricing"
	"github.com/billflow/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PricingConfigModel is the GORM model for stored pricing configurations.
// A row with the zero tenant ID is the plan-wide default; a row with a
// real tenant ID overrides the default for that tenant.
type PricingConfigModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_pricing_config_key"`
	Target    string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_pricing_config_key"`
	Cycle     string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_pricing_config_key"`
	Document  []byte    `gorm:"type:jsonb;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (PricingConfigModel) TableName() string {
	return "pricing_configs"
}

// GormPricingConfigStore implements pricing.ConfigStore
type GormPricingConfigStore struct {
	db *gorm.DB
}

// NewGormPricingConfigStore creates a new pricing config store
func NewGormPricingConfigStore(db *gorm.DB) *GormPricingConfigStore {
	return &GormPricingConfigStore{db: db}
}

// EffectiveConfig resolves the configuration for (tenant, target, cycle).
// The tenant-specific row wins; otherwise the default row (zero tenant)
// applies; otherwise pricing.ErrConfigNotFound.
func (s *GormPricingConfigStore) EffectiveConfig(ctx context.Context, tenantID uuid.UUID, target string, cycle pricing.BillingCycle) (*pricing.Config, error) {
	cfg, err := s.findConfig(ctx, tenantID, target, cycle)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		return cfg, nil
	}

	if tenantID != uuid.Nil {
		cfg, err = s.findConfig(ctx, uuid.Nil, target, cycle)
		if err != nil {
			return nil, err
		}
		if cfg != nil {
			return cfg, nil
		}
	}

	return nil, pricing.ErrConfigNotFound
}

func (s *GormPricingConfigStore) findConfig(ctx context.Context, tenantID uuid.UUID, target string, cycle pricing.BillingCycle) (*pricing.Config, error) {
	var model PricingConfigModel
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND target = ? AND cycle = ?", tenantID, target, string(cycle)).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// Stored documents were validated at write time; parsing re-validates
	// so a manually edited row cannot silently produce a zero charge.
	return pricing.ParseConfig(model.Document)
}

// SaveConfig validates and upserts a configuration document
func (s *GormPricingConfigStore) SaveConfig(ctx context.Context, tenantID uuid.UUID, target string, cycle pricing.BillingCycle, cfg *pricing.Config) error {
	if target == "" {
		return shared.ErrInvalidInput
	}

	document, err := cfg.MarshalDocument()
	if err != nil {
		return err
	}

	model := &PricingConfigModel{
		ID:       uuid.New(),
		TenantID: tenantID,
		Target:   target,
		Cycle:    string(cycle),
		Document: document,
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "target"}, {Name: "cycle"}},
			DoUpdates: clause.AssignmentColumns([]string{"document", "updated_at"}),
		}).
		Create(model).Error
}

var _ pricing.ConfigStore = (*GormPricingConfigStore)(nil)
