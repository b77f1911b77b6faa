package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/billflow/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
)

const defaultIdempotencyKeyPrefix = "billflow:events:processed:"

var _ shared.IdempotencyStore = (*RedisIdempotencyStore)(nil)

// RedisIdempotencyStore implements shared.IdempotencyStore on Redis so
// every instance behind the load balancer shares one dedupe window.
type RedisIdempotencyStore struct {
	client    *redis.Client
	keyPrefix string
	ownClient bool
}

// RedisConfig holds Redis connection settings for a store that owns its
// client.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisIdempotencyStore connects a new client and verifies it with a
// ping, so a misconfigured Redis fails at startup rather than on the
// first delivery.
func NewRedisIdempotencyStore(cfg RedisConfig) (*RedisIdempotencyStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisIdempotencyStore{
		client:    client,
		keyPrefix: defaultIdempotencyKeyPrefix,
		ownClient: true,
	}, nil
}

// NewRedisIdempotencyStoreWithClient builds a store over an existing
// client. The caller retains ownership; Close leaves the client open.
func NewRedisIdempotencyStoreWithClient(client *redis.Client, keyPrefix string) *RedisIdempotencyStore {
	if keyPrefix == "" {
		keyPrefix = defaultIdempotencyKeyPrefix
	}
	return &RedisIdempotencyStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// MarkProcessed records an event ID via SET NX with a TTL, so exactly one
// of N racing consumers observes the first delivery.
func (s *RedisIdempotencyStore) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	firstDelivery, err := s.client.SetNX(ctx, s.keyPrefix+eventID, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("marking event %s processed: %w", eventID, err)
	}
	return firstDelivery, nil
}

// IsProcessed reports whether an event ID is recorded and unexpired.
func (s *RedisIdempotencyStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.keyPrefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("checking event %s: %w", eventID, err)
	}
	return n > 0, nil
}

// Close closes the client only when the store created it.
func (s *RedisIdempotencyStore) Close() error {
	if s.ownClient {
		return s.client.Close()
	}
	return nil
}
