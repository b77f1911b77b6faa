package shared

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus represents the delivery status of an outbox event
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusPublishing OutboxStatus = "PUBLISHING"
	OutboxStatusPublished  OutboxStatus = "PUBLISHED"
	OutboxStatusFailed     OutboxStatus = "FAILED"
	OutboxStatusSkipped    OutboxStatus = "SKIPPED"
)

// Default retry configuration
const (
	DefaultMaxRetryCount = 5
	DefaultBaseBackoff   = time.Second
)

// BackoffFunc maps a retry count (1-based) to the delay before the next
// delivery attempt.
type BackoffFunc func(retryCount int) time.Duration

// ExponentialBackoff returns a backoff function doubling the delay per
// retry: base, 2*base, 4*base, ...
func ExponentialBackoff(base time.Duration) BackoffFunc {
	if base <= 0 {
		base = DefaultBaseBackoff
	}
	return func(retryCount int) time.Duration {
		if retryCount < 1 {
			retryCount = 1
		}
		return base * time.Duration(1<<uint(retryCount-1))
	}
}

// OutboxEvent is an event row recorded in the same transaction as the
// business change it describes. Downstream consumers dedupe by EventID;
// delivery is at-least-once.
type OutboxEvent struct {
	ID            uuid.UUID    `gorm:"type:uuid;primaryKey"`
	TenantID      uuid.UUID    `gorm:"type:uuid;not null;index"`
	EventID       uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex"`
	EventType     string       `gorm:"not null;index"`
	AggregateID   uuid.UUID    `gorm:"type:uuid;not null;index"`
	AggregateType string       `gorm:"not null"`
	EventData     []byte       `gorm:"type:jsonb;not null"`
	Metadata      []byte       `gorm:"type:jsonb"`
	Status        OutboxStatus `gorm:"not null;default:PENDING;index:idx_outbox_status_next_attempt"`
	RetryCount    int          `gorm:"not null;default:0"`
	MaxRetryCount int          `gorm:"not null;default:5"`
	ErrorMessage  string       `gorm:"type:text"`
	NextAttemptAt *time.Time   `gorm:"index:idx_outbox_status_next_attempt"`
	LastAttemptAt *time.Time
	PublishedAt   *time.Time
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName returns the database table name for GORM
func (e *OutboxEvent) TableName() string {
	return "outbox_events"
}

// NewOutboxEvent creates a pending outbox event for a domain event
func NewOutboxEvent(tenantID uuid.UUID, event DomainEvent, payload, metadata []byte) *OutboxEvent {
	return &OutboxEvent{
		ID:            uuid.New(),
		TenantID:      tenantID,
		EventID:       event.EventID(),
		EventType:     event.EventType(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		EventData:     payload,
		Metadata:      metadata,
		Status:        OutboxStatusPending,
		RetryCount:    0,
		MaxRetryCount: DefaultMaxRetryCount,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
}

// CanRetry returns true if the event is failed and below its retry bound
func (e *OutboxEvent) CanRetry() bool {
	return e.Status == OutboxStatusFailed && e.RetryCount < e.MaxRetryCount
}

// IsTerminal returns true for states that never transition again
func (e *OutboxEvent) IsTerminal() bool {
	return e.Status == OutboxStatusPublished || e.Status == OutboxStatusSkipped
}

// IsSkipped returns true if the event exhausted its retries
func (e *OutboxEvent) IsSkipped() bool {
	return e.Status == OutboxStatusSkipped
}

// MarkPublishing transitions the event to PUBLISHING. Only pending and
// failed events may be claimed; terminal states never regress.
func (e *OutboxEvent) MarkPublishing() error {
	if e.Status != OutboxStatusPending && e.Status != OutboxStatusFailed {
		return errors.New("can only mark pending or failed events as publishing")
	}
	now := time.Now()
	e.Status = OutboxStatusPublishing
	e.LastAttemptAt = &now
	e.UpdatedAt = now
	return nil
}

// MarkPublished transitions the event to its PUBLISHED terminal state
func (e *OutboxEvent) MarkPublished() {
	now := time.Now()
	e.Status = OutboxStatusPublished
	e.PublishedAt = &now
	e.UpdatedAt = now
}

// MarkFailed records a delivery failure. The retry count is incremented
// and the next attempt is scheduled by backoff; once the bound is reached
// the event becomes SKIPPED and requires operator intervention.
func (e *OutboxEvent) MarkFailed(errMsg string, backoff BackoffFunc) {
	now := time.Now()
	e.RetryCount++
	e.ErrorMessage = errMsg
	e.LastAttemptAt = &now
	e.UpdatedAt = now

	if e.RetryCount >= e.MaxRetryCount {
		e.Status = OutboxStatusSkipped
		e.NextAttemptAt = nil
		return
	}

	e.Status = OutboxStatusFailed
	if backoff == nil {
		backoff = ExponentialBackoff(DefaultBaseBackoff)
	}
	next := now.Add(backoff(e.RetryCount))
	e.NextAttemptAt = &next
}

// ResetForRetry re-enters a skipped event into the delivery cycle
func (e *OutboxEvent) ResetForRetry() error {
	if e.Status != OutboxStatusSkipped {
		return errors.New("can only retry skipped events")
	}
	e.Status = OutboxStatusPending
	e.RetryCount = 0
	e.ErrorMessage = ""
	e.NextAttemptAt = nil
	e.UpdatedAt = time.Now()
	return nil
}

// OutboxRepository defines the interface for outbox persistence
type OutboxRepository interface {
	// Save persists one or more outbox events
	Save(ctx context.Context, events ...*OutboxEvent) error
	// FindPending retrieves pending events, oldest first, up to limit
	FindPending(ctx context.Context, limit int) ([]*OutboxEvent, error)
	// FindRetryable retrieves failed events whose backoff window has elapsed
	FindRetryable(ctx context.Context, before time.Time, limit int) ([]*OutboxEvent, error)
	// FindSkipped retrieves skipped events with pagination. sortBy and
	// sortOrder are untrusted hints; implementations fall back to a
	// stable default ordering when they are empty or invalid.
	FindSkipped(ctx context.Context, page, pageSize int, sortBy, sortOrder string) ([]*OutboxEvent, int64, error)
	// FindByID retrieves a single outbox event by ID
	FindByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error)
	// ClaimPublishing atomically marks events as publishing and returns the
	// ones this caller won; concurrent claimers never share an event
	ClaimPublishing(ctx context.Context, ids []uuid.UUID) ([]*OutboxEvent, error)
	// ReclaimStale returns publishing events untouched since the cutoff to
	// the failed pool so a crashed publisher cannot strand them
	ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error)
	// Update updates an existing outbox event
	Update(ctx context.Context, event *OutboxEvent) error
	// DeletePublishedBefore deletes published events older than the cutoff
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// CountByStatus returns the count of events grouped by status
	CountByStatus(ctx context.Context) (map[OutboxStatus]int64, error)
}
