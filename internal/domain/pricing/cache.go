package pricing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CacheConfig holds TTLs and the invalidation channel for the pricing
// configuration cache.
type CacheConfig struct {
	// L1TTL is the lifetime of entries in the local in-process cache
	L1TTL time.Duration
	// L2TTL is the lifetime of entries in the shared Redis cache
	L2TTL time.Duration
	// PubSubChannel carries invalidation messages between instances
	PubSubChannel string
}

// DefaultCacheConfig returns the default cache configuration
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		L1TTL:         30 * time.Second,
		L2TTL:         5 * time.Minute,
		PubSubChannel: "pricing:config:invalidate",
	}
}

// ConfigCache caches effective pricing configurations keyed by
// (tenant, target, cycle). A (nil, nil) return is a cache miss.
type ConfigCache interface {
	Get(ctx context.Context, tenantID uuid.UUID, target string, cycle BillingCycle) (*Config, error)
	Set(ctx context.Context, tenantID uuid.UUID, target string, cycle BillingCycle, cfg *Config, ttl time.Duration) error
	Delete(ctx context.Context, tenantID uuid.UUID, target string, cycle BillingCycle) error
	InvalidateAll(ctx context.Context) error
	Close() error
}

// CacheUpdateAction identifies the kind of invalidation message
type CacheUpdateAction string

const (
	// CacheUpdateActionUpdated signals a single configuration changed
	CacheUpdateActionUpdated CacheUpdateAction = "updated"
	// CacheUpdateActionInvalidateAll signals every cached entry is stale
	CacheUpdateActionInvalidateAll CacheUpdateAction = "invalidate_all"
)

// CacheUpdateMessage is broadcast when a pricing configuration changes
// so other instances drop their local copies.
type CacheUpdateMessage struct {
	Action    CacheUpdateAction `json:"action"`
	TenantID  string            `json:"tenant_id,omitempty"`
	Target    string            `json:"target,omitempty"`
	Cycle     string            `json:"cycle,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// CacheInvalidator broadcasts and receives cache update messages
type CacheInvalidator interface {
	Publish(ctx context.Context, msg CacheUpdateMessage) error
	Subscribe(ctx context.Context, callback func(msg CacheUpdateMessage)) error
	Close() error
}

// CacheStats reports hit and miss counters for a tiered cache
type CacheStats struct {
	L1Hits      int64   `json:"l1_hits"`
	L1Misses    int64   `json:"l1_misses"`
	L2Hits      int64   `json:"l2_hits"`
	L2Misses    int64   `json:"l2_misses"`
	TotalHits   int64   `json:"total_hits"`
	TotalMisses int64   `json:"total_misses"`
	HitRatio    float64 `json:"hit_ratio"`
	Entries     int64   `json:"entries"`
}
