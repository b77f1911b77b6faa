package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/billflow/backend/internal/domain/pricing"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultCloseTimeout = 5 * time.Second
)

// RedisConfigCacheInvalidator implements pricing.CacheInvalidator using
// Redis Pub/Sub. Each instance subscribes to the invalidation channel
// and drops its local cache entries when a configuration changes.
type RedisConfigCacheInvalidator struct {
	client     *redis.Client
	ownsClient bool
	channel    string
	logger     *zap.Logger
	cancelFn   context.CancelFunc
	doneCh     chan struct{}
	doneOnce   sync.Once
	mu         sync.Mutex
	isRunning  bool
}

// RedisConfigCacheInvalidatorOption is a functional option for the invalidator
type RedisConfigCacheInvalidatorOption func(*RedisConfigCacheInvalidator)

// WithInvalidatorChannel sets the Pub/Sub channel name
func WithInvalidatorChannel(channel string) RedisConfigCacheInvalidatorOption {
	return func(i *RedisConfigCacheInvalidator) {
		i.channel = channel
	}
}

// WithInvalidatorLogger sets the logger for the invalidator
func WithInvalidatorLogger(logger *zap.Logger) RedisConfigCacheInvalidatorOption {
	return func(i *RedisConfigCacheInvalidator) {
		i.logger = logger
	}
}

// NewRedisConfigCacheInvalidator creates a Pub/Sub cache invalidator
func NewRedisConfigCacheInvalidator(cfg RedisConfig, opts ...RedisConfigCacheInvalidatorOption) (*RedisConfigCacheInvalidator, error) {
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

	invalidator := &RedisConfigCacheInvalidator{
		client:     client,
		ownsClient: true,
		channel:    pricing.DefaultCacheConfig().PubSubChannel,
		logger:     zap.NewNop(),
		doneCh:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(invalidator)
	}

	return invalidator, nil
}

// NewRedisConfigCacheInvalidatorWithClient creates an invalidator with an
// existing Redis client. The caller retains ownership of the client.
func NewRedisConfigCacheInvalidatorWithClient(client *redis.Client, opts ...RedisConfigCacheInvalidatorOption) *RedisConfigCacheInvalidator {
	invalidator := &RedisConfigCacheInvalidator{
		client:     client,
		ownsClient: false,
		channel:    pricing.DefaultCacheConfig().PubSubChannel,
		logger:     zap.NewNop(),
		doneCh:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(invalidator)
	}

	return invalidator
}

// Publish sends a cache update notification to all subscribers
func (i *RedisConfigCacheInvalidator) Publish(ctx context.Context, msg pricing.CacheUpdateMessage) error {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixNano()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := i.client.Publish(ctx, i.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	i.logger.Debug("published cache update message",
		zap.String("action", string(msg.Action)),
		zap.String("target", msg.Target),
		zap.String("channel", i.channel))

	return nil
}

// Subscribe listens for cache update notifications and invokes the
// callback for each message. This blocks and should run in a goroutine.
func (i *RedisConfigCacheInvalidator) Subscribe(ctx context.Context, callback func(msg pricing.CacheUpdateMessage)) error {
	i.mu.Lock()
	if i.isRunning {
		i.mu.Unlock()
		return fmt.Errorf("subscription already running")
	}
	i.isRunning = true
	i.mu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	i.mu.Lock()
	i.cancelFn = cancel
	i.mu.Unlock()

	pubsub := i.client.Subscribe(subCtx, i.channel)
	defer pubsub.Close()

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(subCtx); err != nil {
		i.mu.Lock()
		i.isRunning = false
		i.mu.Unlock()
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}

	i.logger.Info("subscribed to cache invalidation channel",
		zap.String("channel", i.channel))

	ch := pubsub.Channel()

	for {
		select {
		case <-subCtx.Done():
			i.logger.Info("cache invalidation subscription stopped")
			i.mu.Lock()
			i.isRunning = false
			i.mu.Unlock()
			i.markDone()
			return subCtx.Err()
		case msg, ok := <-ch:
			if !ok {
				i.logger.Warn("cache invalidation channel closed")
				i.mu.Lock()
				i.isRunning = false
				i.mu.Unlock()
				i.markDone()
				return nil
			}

			var updateMsg pricing.CacheUpdateMessage
			if err := json.Unmarshal([]byte(msg.Payload), &updateMsg); err != nil {
				i.logger.Error("failed to unmarshal cache update message",
					zap.String("payload", msg.Payload),
					zap.Error(err))
				continue
			}

			// Callback runs on its own goroutine so a slow handler
			// never stalls the subscription.
			go func(m pricing.CacheUpdateMessage) {
				defer func() {
					if r := recover(); r != nil {
						i.logger.Error("panic in cache update callback",
							zap.Any("panic", r))
					}
				}()
				callback(m)
			}(updateMsg)
		}
	}
}

func (i *RedisConfigCacheInvalidator) markDone() {
	i.doneOnce.Do(func() {
		close(i.doneCh)
	})
}

// Close stops the subscription and releases the client if owned
func (i *RedisConfigCacheInvalidator) Close() error {
	i.mu.Lock()
	cancelFn := i.cancelFn
	i.mu.Unlock()

	if cancelFn != nil {
		cancelFn()
		select {
		case <-i.doneCh:
		case <-time.After(defaultCloseTimeout):
			i.logger.Warn("timeout waiting for subscription to stop")
		}
	}

	if i.ownsClient {
		return i.client.Close()
	}
	return nil
}

// PublishConfigUpdate publishes a single-config invalidation
func (i *RedisConfigCacheInvalidator) PublishConfigUpdate(ctx context.Context, tenantID, target, cycle string) error {
	return i.Publish(ctx, pricing.CacheUpdateMessage{
		Action:   pricing.CacheUpdateActionUpdated,
		TenantID: tenantID,
		Target:   target,
		Cycle:    cycle,
	})
}

// PublishInvalidateAll publishes an invalidate-all notification
func (i *RedisConfigCacheInvalidator) PublishInvalidateAll(ctx context.Context) error {
	return i.Publish(ctx, pricing.CacheUpdateMessage{
		Action: pricing.CacheUpdateActionInvalidateAll,
	})
}

// GetClient returns the underlying Redis client (for testing/monitoring)
func (i *RedisConfigCacheInvalidator) GetClient() *redis.Client {
	return i.client
}

var _ pricing.CacheInvalidator = (*RedisConfigCacheInvalidator)(nil)
