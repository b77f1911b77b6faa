package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/billflow/backend/internal/domain/pricing"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultCleanupInterval = 30 * time.Second
)

// InMemoryConfigCache implements pricing.ConfigCache with in-process
// storage. It is the L1 tier in front of Redis; entries expire on their
// own TTL and a background sweep removes the dead ones.
type InMemoryConfigCache struct {
	entries sync.Map // map[string]*configEntry
	config  pricing.CacheConfig
	logger  *zap.Logger
	stopCh  chan struct{}
	stopped int32

	hits   int64
	misses int64
}

type configEntry struct {
	value     *pricing.Config
	expiresAt time.Time
}

func (e *configEntry) isExpired() bool {
	return time.Now().After(e.expiresAt)
}

// InMemoryConfigCacheOption is a functional option for configuring the cache
type InMemoryConfigCacheOption func(*InMemoryConfigCache)

// WithInMemoryConfig sets the cache configuration
func WithInMemoryConfig(config pricing.CacheConfig) InMemoryConfigCacheOption {
	return func(c *InMemoryConfigCache) {
		c.config = config
	}
}

// WithInMemoryLogger sets the logger for the cache
func WithInMemoryLogger(logger *zap.Logger) InMemoryConfigCacheOption {
	return func(c *InMemoryConfigCache) {
		c.logger = logger
	}
}

// NewInMemoryConfigCache creates a new in-memory pricing config cache
func NewInMemoryConfigCache(opts ...InMemoryConfigCacheOption) *InMemoryConfigCache {
	cache := &InMemoryConfigCache{
		config: pricing.DefaultCacheConfig(),
		logger: zap.NewNop(),
		stopCh: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(cache)
	}

	go cache.cleanupExpired()

	return cache
}

// Get retrieves a pricing configuration from the local cache
func (c *InMemoryConfigCache) Get(ctx context.Context, tenantID uuid.UUID, target string, cycle pricing.BillingCycle) (*pricing.Config, error) {
	cacheKey := configCacheKey(tenantID, target, cycle)

	if value, ok := c.entries.Load(cacheKey); ok {
		entry := value.(*configEntry)
		if !entry.isExpired() {
			atomic.AddInt64(&c.hits, 1)
			return entry.value, nil
		}
		c.entries.Delete(cacheKey)
	}

	atomic.AddInt64(&c.misses, 1)
	return nil, nil
}

// Set stores a pricing configuration in the local cache
func (c *InMemoryConfigCache) Set(ctx context.Context, tenantID uuid.UUID, target string, cycle pricing.BillingCycle, cfg *pricing.Config, ttl time.Duration) error {
	if cfg == nil {
		return nil
	}

	if ttl == 0 {
		ttl = c.config.L1TTL
	}

	c.entries.Store(configCacheKey(tenantID, target, cycle), &configEntry{
		value:     cfg,
		expiresAt: time.Now().Add(ttl),
	})
	return nil
}

// Delete removes a pricing configuration from the local cache
func (c *InMemoryConfigCache) Delete(ctx context.Context, tenantID uuid.UUID, target string, cycle pricing.BillingCycle) error {
	c.entries.Delete(configCacheKey(tenantID, target, cycle))
	return nil
}

// InvalidateAll removes every locally cached configuration
func (c *InMemoryConfigCache) InvalidateAll(ctx context.Context) error {
	c.entries.Range(func(key, _ any) bool {
		c.entries.Delete(key)
		return true
	})
	c.logger.Info("invalidated local pricing config cache")
	return nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (c *InMemoryConfigCache) Close() error {
	if atomic.CompareAndSwapInt32(&c.stopped, 0, 1) {
		close(c.stopCh)
	}
	return nil
}

// GetStats returns hit and miss counters
func (c *InMemoryConfigCache) GetStats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}

// ResetStats resets the hit and miss counters
func (c *InMemoryConfigCache) ResetStats() {
	atomic.StoreInt64(&c.hits, 0)
	atomic.StoreInt64(&c.misses, 0)
}

// Count returns the number of cached entries
func (c *InMemoryConfigCache) Count() int {
	count := 0
	c.entries.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

func (c *InMemoryConfigCache) cleanupExpired() {
	ticker := time.NewTicker(defaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.doCleanup()
		}
	}
}

func (c *InMemoryConfigCache) doCleanup() {
	var removed int
	c.entries.Range(func(key, value any) bool {
		if value.(*configEntry).isExpired() {
			c.entries.Delete(key)
			removed++
		}
		return true
	})

	if removed > 0 {
		c.logger.Debug("cleaned up expired pricing config entries",
			zap.Int("removed", removed))
	}
}

var _ pricing.ConfigCache = (*InMemoryConfigCache)(nil)
