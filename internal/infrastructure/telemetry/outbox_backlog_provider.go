package telemetry

import (
	"context"

	"gorm.io/gorm"
)

// GormOutboxBacklogProvider implements OutboxBacklogProvider using GORM.
// It queries the outbox_events table directly for aggregated counts.
type GormOutboxBacklogProvider struct {
	db *gorm.DB
}

// NewGormOutboxBacklogProvider creates a new GormOutboxBacklogProvider.
func NewGormOutboxBacklogProvider(db *gorm.DB) *GormOutboxBacklogProvider {
	return &GormOutboxBacklogProvider{db: db}
}

// CountByStatus returns the number of outbox events per status.
func (p *GormOutboxBacklogProvider) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type result struct {
		Status string `gorm:"column:status"`
		Count  int64  `gorm:"column:count"`
	}

	var results []result
	err := p.db.WithContext(ctx).
		Table("outbox_events").
		Select("status, COUNT(*) as count").
		Group("status").
		Find(&results).Error

	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(results))
	for _, r := range results {
		counts[r.Status] = r.Count
	}

	return counts, nil
}
