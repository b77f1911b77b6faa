package cache

import (
	"context"

	"github.com/billflow/backend/internal/domain/pricing"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CachedConfigStore decorates a pricing.ConfigStore with read-through
// caching. Lookups hit the cache first and fall back to the store;
// writes go to the store and refresh the cache. Cache failures degrade
// to store reads so billing never fails on a cold or broken cache.
type CachedConfigStore struct {
	store  pricing.ConfigStore
	cache  pricing.ConfigCache
	logger *zap.Logger
}

// NewCachedConfigStore wraps a config store with a cache
func NewCachedConfigStore(store pricing.ConfigStore, cache pricing.ConfigCache, logger *zap.Logger) *CachedConfigStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedConfigStore{
		store:  store,
		cache:  cache,
		logger: logger,
	}
}

// EffectiveConfig resolves the configuration through the cache
func (s *CachedConfigStore) EffectiveConfig(ctx context.Context, tenantID uuid.UUID, target string, cycle pricing.BillingCycle) (*pricing.Config, error) {
	cfg, err := s.cache.Get(ctx, tenantID, target, cycle)
	if err != nil {
		s.logger.Warn("pricing config cache read failed, falling back to store",
			zap.String("target", target),
			zap.Error(err))
	}
	if cfg != nil {
		return cfg, nil
	}

	cfg, err = s.store.EffectiveConfig(ctx, tenantID, target, cycle)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, tenantID, target, cycle, cfg, 0); err != nil {
		s.logger.Warn("failed to cache pricing config",
			zap.String("target", target),
			zap.Error(err))
	}

	return cfg, nil
}

// SaveConfig stores the configuration and invalidates the cached entry
func (s *CachedConfigStore) SaveConfig(ctx context.Context, tenantID uuid.UUID, target string, cycle pricing.BillingCycle, cfg *pricing.Config) error {
	if err := s.store.SaveConfig(ctx, tenantID, target, cycle, cfg); err != nil {
		return err
	}

	// Delete rather than set so the next read resolves precedence
	// (tenant override vs plan default) against the store.
	if err := s.cache.Delete(ctx, tenantID, target, cycle); err != nil {
		s.logger.Warn("failed to invalidate cached pricing config",
			zap.String("target", target),
			zap.Error(err))
	}

	return nil
}

var _ pricing.ConfigStore = (*CachedConfigStore)(nil)
