package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers processed outbox event IDs so redeliveries from
// the at-least-once pipeline do not re-run their handlers.
type IdempotencyStore interface {
	// MarkProcessed records an event ID with a TTL. It returns true when the
	// ID was newly recorded and false when the event was already processed.
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)

	// IsProcessed reports whether an event ID has already been recorded.
	IsProcessed(ctx context.Context, eventID string) (bool, error)

	Close() error
}

// IdempotencyConfig controls duplicate suppression for event handlers.
type IdempotencyConfig struct {
	// TTL bounds how long processed event IDs are remembered. Past it the
	// same event ID would be handled again, so it must exceed the outbox
	// retry horizon.
	TTL time.Duration

	// Enabled turns duplicate suppression off entirely when false.
	Enabled bool
}

// DefaultIdempotencyConfig remembers event IDs for 24 hours.
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
