package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/billflow/backend/internal/domain/pricing"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultScanBatchSize = 100
)

// RedisConfigCache implements pricing.ConfigCache using Redis. It is the
// shared L2 tier; entries are JSON documents keyed by tenant, target and
// billing cycle.
type RedisConfigCache struct {
	client     *redis.Client
	ownsClient bool
	config     pricing.CacheConfig
	logger     *zap.Logger
}

// RedisConfigCacheOption is a functional option for configuring the cache
type RedisConfigCacheOption func(*RedisConfigCache)

// WithCacheConfig sets the cache configuration
func WithCacheConfig(config pricing.CacheConfig) RedisConfigCacheOption {
	return func(c *RedisConfigCache) {
		c.config = config
	}
}

// WithCacheLogger sets the logger for the cache
func WithCacheLogger(logger *zap.Logger) RedisConfigCacheOption {
	return func(c *RedisConfigCache) {
		c.logger = logger
	}
}

// NewRedisConfigCache creates a Redis-backed pricing configuration cache
func NewRedisConfigCache(cfg RedisConfig, opts ...RedisConfigCacheOption) (*RedisConfigCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	cache := &RedisConfigCache{
		client:     client,
		ownsClient: true,
		config:     pricing.DefaultCacheConfig(),
		logger:     zap.NewNop(),
	}

	for _, opt := range opts {
		opt(cache)
	}

	return cache, nil
}

// NewRedisConfigCacheWithClient creates a cache with an existing Redis
// client. The caller retains ownership of the client and closes it.
func NewRedisConfigCacheWithClient(client *redis.Client, opts ...RedisConfigCacheOption) *RedisConfigCache {
	cache := &RedisConfigCache{
		client:     client,
		ownsClient: false,
		config:     pricing.DefaultCacheConfig(),
		logger:     zap.NewNop(),
	}

	for _, opt := range opts {
		opt(cache)
	}

	return cache
}

func configCacheKey(tenantID uuid.UUID, target string, cycle pricing.BillingCycle) string {
	return fmt.Sprintf("pricing_config:%s:%s:%s", tenantID, target, cycle)
}

// Get retrieves a pricing configuration from cache
func (c *RedisConfigCache) Get(ctx context.Context, tenantID uuid.UUID, target string, cycle pricing.BillingCycle) (*pricing.Config, error) {
	cacheKey := configCacheKey(tenantID, target, cycle)

	data, err := c.client.Get(ctx, cacheKey).Bytes()
	if err == redis.Nil {
		c.logger.Debug("cache miss for pricing config",
			zap.String("tenant_id", tenantID.String()),
			zap.String("target", target))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pricing config from cache: %w", err)
	}

	var cfg pricing.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		c.logger.Error("corrupted pricing config cache entry",
			zap.String("key", cacheKey),
			zap.Error(err))
		_ = c.client.Del(ctx, cacheKey)
		return nil, fmt.Errorf("failed to unmarshal pricing config: %w", err)
	}

	c.logger.Debug("cache hit for pricing config",
		zap.String("tenant_id", tenantID.String()),
		zap.String("target", target))
	return &cfg, nil
}

// Set stores a pricing configuration in cache
func (c *RedisConfigCache) Set(ctx context.Context, tenantID uuid.UUID, target string, cycle pricing.BillingCycle, cfg *pricing.Config, ttl time.Duration) error {
	if cfg == nil {
		return nil
	}

	if ttl == 0 {
		ttl = c.config.L2TTL
	}

	cacheKey := configCacheKey(tenantID, target, cycle)

	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal pricing config: %w", err)
	}

	if err := c.client.Set(ctx, cacheKey, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set pricing config in cache: %w", err)
	}

	c.logger.Debug("cached pricing config",
		zap.String("tenant_id", tenantID.String()),
		zap.String("target", target),
		zap.Duration("ttl", ttl))
	return nil
}

// Delete removes a pricing configuration from cache
func (c *RedisConfigCache) Delete(ctx context.Context, tenantID uuid.UUID, target string, cycle pricing.BillingCycle) error {
	cacheKey := configCacheKey(tenantID, target, cycle)

	if err := c.client.Del(ctx, cacheKey).Err(); err != nil {
		return fmt.Errorf("failed to delete pricing config from cache: %w", err)
	}

	c.logger.Debug("deleted pricing config from cache",
		zap.String("tenant_id", tenantID.String()),
		zap.String("target", target))
	return nil
}

// InvalidateAll removes every cached pricing configuration. SCAN is used
// instead of KEYS so the sweep never blocks Redis.
func (c *RedisConfigCache) InvalidateAll(ctx context.Context) error {
	var cursor uint64
	var deletedCount int64

	for {
		var keys []string
		var err error
		keys, cursor, err = c.client.Scan(ctx, cursor, "pricing_config:*", defaultScanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cache keys: %w", err)
		}

		if len(keys) > 0 {
			deleted, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return fmt.Errorf("failed to delete cache keys: %w", err)
			}
			deletedCount += deleted
		}

		if cursor == 0 {
			break
		}
	}

	c.logger.Info("invalidated pricing config cache",
		zap.Int64("deleted_count", deletedCount))
	return nil
}

// Close releases the Redis client if this cache owns it
func (c *RedisConfigCache) Close() error {
	if c.ownsClient {
		return c.client.Close()
	}
	return nil
}

// GetClient returns the underlying Redis client (for testing/monitoring)
func (c *RedisConfigCache) GetClient() *redis.Client {
	return c.client
}

var _ pricing.ConfigCache = (*RedisConfigCache)(nil)
