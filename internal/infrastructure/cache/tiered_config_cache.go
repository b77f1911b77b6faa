package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/billflow/backend/internal/domain/pricing"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TieredConfigCache layers a local in-memory cache (L1) over a shared
// Redis cache (L2). Reads fall through L1 to L2 and populate L1 on the
// way back; writes go to both tiers and broadcast an invalidation so
// other instances drop their L1 copies.
type TieredConfigCache struct {
	l1Cache     *InMemoryConfigCache
	l2Cache     *RedisConfigCache
	invalidator *RedisConfigCacheInvalidator
	config      pricing.CacheConfig
	logger      *zap.Logger

	l1Hits   int64
	l1Misses int64
	l2Hits   int64
	l2Misses int64
}

// TieredConfigCacheOption is a functional option for configuring the cache
type TieredConfigCacheOption func(*TieredConfigCache)

// WithTieredConfig sets the cache configuration
func WithTieredConfig(config pricing.CacheConfig) TieredConfigCacheOption {
	return func(c *TieredConfigCache) {
		c.config = config
	}
}

// WithTieredLogger sets the logger for the cache
func WithTieredLogger(logger *zap.Logger) TieredConfigCacheOption {
	return func(c *TieredConfigCache) {
		c.logger = logger
	}
}

// NewTieredConfigCache creates a two-tier pricing configuration cache
func NewTieredConfigCache(
	l1Cache *InMemoryConfigCache,
	l2Cache *RedisConfigCache,
	invalidator *RedisConfigCacheInvalidator,
	opts ...TieredConfigCacheOption,
) *TieredConfigCache {
	cache := &TieredConfigCache{
		l1Cache:     l1Cache,
		l2Cache:     l2Cache,
		invalidator: invalidator,
		config:      pricing.DefaultCacheConfig(),
		logger:      zap.NewNop(),
	}

	for _, opt := range opts {
		opt(cache)
	}

	return cache
}

// StartInvalidationSubscription starts listening for invalidation
// messages. Blocks, so call it in a goroutine.
func (c *TieredConfigCache) StartInvalidationSubscription(ctx context.Context) error {
	if c.invalidator == nil {
		return nil
	}

	return c.invalidator.Subscribe(ctx, func(msg pricing.CacheUpdateMessage) {
		c.handleInvalidationMessage(msg)
	})
}

func (c *TieredConfigCache) handleInvalidationMessage(msg pricing.CacheUpdateMessage) {
	ctx := context.Background()

	switch msg.Action {
	case pricing.CacheUpdateActionUpdated:
		tenantID, err := uuid.Parse(msg.TenantID)
		if err != nil {
			c.logger.Error("failed to parse tenant ID in invalidation message",
				zap.String("tenant_id", msg.TenantID),
				zap.Error(err))
			return
		}
		if err := c.l1Cache.Delete(ctx, tenantID, msg.Target, pricing.BillingCycle(msg.Cycle)); err != nil {
			c.logger.Error("failed to invalidate local pricing config",
				zap.String("target", msg.Target),
				zap.Error(err))
		}
		c.logger.Debug("invalidated local pricing config",
			zap.String("tenant_id", msg.TenantID),
			zap.String("target", msg.Target),
			zap.String("cycle", msg.Cycle))

	case pricing.CacheUpdateActionInvalidateAll:
		if err := c.l1Cache.InvalidateAll(ctx); err != nil {
			c.logger.Error("failed to invalidate local pricing config cache", zap.Error(err))
		}
	}
}

// Get retrieves a pricing configuration, trying L1 then L2
func (c *TieredConfigCache) Get(ctx context.Context, tenantID uuid.UUID, target string, cycle pricing.BillingCycle) (*pricing.Config, error) {
	cfg, err := c.l1Cache.Get(ctx, tenantID, target, cycle)
	if err != nil {
		c.logger.Warn("local cache error", zap.String("target", target), zap.Error(err))
	}
	if cfg != nil {
		atomic.AddInt64(&c.l1Hits, 1)
		return cfg, nil
	}
	atomic.AddInt64(&c.l1Misses, 1)

	cfg, err = c.l2Cache.Get(ctx, tenantID, target, cycle)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		atomic.AddInt64(&c.l2Hits, 1)
		if err := c.l1Cache.Set(ctx, tenantID, target, cycle, cfg, c.config.L1TTL); err != nil {
			c.logger.Warn("failed to populate local cache", zap.String("target", target), zap.Error(err))
		}
		return cfg, nil
	}
	atomic.AddInt64(&c.l2Misses, 1)

	return nil, nil
}

// Set stores a pricing configuration in both tiers and broadcasts an
// invalidation for other instances
func (c *TieredConfigCache) Set(ctx context.Context, tenantID uuid.UUID, target string, cycle pricing.BillingCycle, cfg *pricing.Config, ttl time.Duration) error {
	if err := c.l2Cache.Set(ctx, tenantID, target, cycle, cfg, ttl); err != nil {
		return err
	}

	if err := c.l1Cache.Set(ctx, tenantID, target, cycle, cfg, c.config.L1TTL); err != nil {
		c.logger.Warn("failed to set local cache", zap.String("target", target), zap.Error(err))
	}

	if c.invalidator != nil {
		if err := c.invalidator.PublishConfigUpdate(ctx, tenantID.String(), target, string(cycle)); err != nil {
			c.logger.Warn("failed to publish config update", zap.String("target", target), zap.Error(err))
		}
	}

	return nil
}

// Delete removes a pricing configuration from both tiers
func (c *TieredConfigCache) Delete(ctx context.Context, tenantID uuid.UUID, target string, cycle pricing.BillingCycle) error {
	if err := c.l2Cache.Delete(ctx, tenantID, target, cycle); err != nil {
		return err
	}

	if err := c.l1Cache.Delete(ctx, tenantID, target, cycle); err != nil {
		c.logger.Warn("failed to delete from local cache", zap.String("target", target), zap.Error(err))
	}

	if c.invalidator != nil {
		if err := c.invalidator.PublishConfigUpdate(ctx, tenantID.String(), target, string(cycle)); err != nil {
			c.logger.Warn("failed to publish config delete", zap.String("target", target), zap.Error(err))
		}
	}

	return nil
}

// InvalidateAll removes every cached configuration from both tiers
func (c *TieredConfigCache) InvalidateAll(ctx context.Context) error {
	if err := c.l2Cache.InvalidateAll(ctx); err != nil {
		return err
	}

	if err := c.l1Cache.InvalidateAll(ctx); err != nil {
		c.logger.Warn("failed to invalidate local cache", zap.Error(err))
	}

	if c.invalidator != nil {
		if err := c.invalidator.PublishInvalidateAll(ctx); err != nil {
			c.logger.Warn("failed to publish invalidate all", zap.Error(err))
		}
	}

	return nil
}

// Close releases resources held by all tiers
func (c *TieredConfigCache) Close() error {
	var lastErr error

	if c.invalidator != nil {
		if err := c.invalidator.Close(); err != nil {
			lastErr = err
		}
	}

	if err := c.l2Cache.Close(); err != nil {
		lastErr = err
	}

	if err := c.l1Cache.Close(); err != nil {
		lastErr = err
	}

	return lastErr
}

// GetCacheStats reports hit and miss counters across both tiers
func (c *TieredConfigCache) GetCacheStats() pricing.CacheStats {
	l1Hits := atomic.LoadInt64(&c.l1Hits)
	l1Misses := atomic.LoadInt64(&c.l1Misses)
	l2Hits := atomic.LoadInt64(&c.l2Hits)
	l2Misses := atomic.LoadInt64(&c.l2Misses)

	totalHits := l1Hits + l2Hits
	totalMisses := l2Misses // only count final misses

	var hitRatio float64
	if total := totalHits + totalMisses; total > 0 {
		hitRatio = float64(totalHits) / float64(total)
	}

	return pricing.CacheStats{
		L1Hits:      l1Hits,
		L1Misses:    l1Misses,
		L2Hits:      l2Hits,
		L2Misses:    l2Misses,
		TotalHits:   totalHits,
		TotalMisses: totalMisses,
		HitRatio:    hitRatio,
		Entries:     int64(c.l1Cache.Count()),
	}
}

// ResetStats resets the hit and miss counters
func (c *TieredConfigCache) ResetStats() {
	atomic.StoreInt64(&c.l1Hits, 0)
	atomic.StoreInt64(&c.l1Misses, 0)
	atomic.StoreInt64(&c.l2Hits, 0)
	atomic.StoreInt64(&c.l2Misses, 0)
	c.l1Cache.ResetStats()
}

var _ pricing.ConfigCache = (*TieredConfigCache)(nil)
