package shared

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is a fact recorded by a billing aggregate, such as a
// subscription being created or an invoice being paid. Events travel
// through the outbox, so the accessors here mirror the outbox envelope.
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	AggregateID() uuid.UUID
	AggregateType() string
	TenantID() uuid.UUID
}

// BaseDomainEvent carries the envelope fields every concrete event embeds.
// The JSON tags define the wire shape consumers deserialize, so they are
// part of the event contract.
type BaseDomainEvent struct {
	ID                 uuid.UUID `json:"id"`
	Type               string    `json:"type"`
	Timestamp          time.Time `json:"timestamp"`
	AggregateIDValue   uuid.UUID `json:"aggregate_id"`
	AggregateTypeValue string    `json:"aggregate_type"`
	TenantIDValue      uuid.UUID `json:"tenant_id"`
}

// NewBaseDomainEvent stamps a fresh envelope with a random event ID and the
// current time.
func NewBaseDomainEvent(eventType, aggType string, aggID, tenantID uuid.UUID) BaseDomainEvent {
	return BaseDomainEvent{
		ID:                 uuid.New(),
		Type:               eventType,
		Timestamp:          time.Now(),
		AggregateIDValue:   aggID,
		AggregateTypeValue: aggType,
		TenantIDValue:      tenantID,
	}
}

// EventID returns the unique event identifier. Downstream consumers use
// this as their deduplication token.
func (e *BaseDomainEvent) EventID() uuid.UUID { return e.ID }

// EventType returns the type of the event
func (e *BaseDomainEvent) EventType() string { return e.Type }

// OccurredAt returns when the event occurred
func (e *BaseDomainEvent) OccurredAt() time.Time { return e.Timestamp }

// AggregateID returns the ID of the aggregate that produced this event
func (e *BaseDomainEvent) AggregateID() uuid.UUID { return e.AggregateIDValue }

// AggregateType returns the type of the aggregate
func (e *BaseDomainEvent) AggregateType() string { return e.AggregateTypeValue }

// TenantID returns the tenant the event belongs to
func (e *BaseDomainEvent) TenantID() uuid.UUID { return e.TenantIDValue }
