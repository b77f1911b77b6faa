package shared

import (
	"github.com/google/uuid"
)

// AggregateRoot is implemented by the billing aggregates (subscriptions,
// invoices). It adds optimistic-lock versioning and a pending domain event
// buffer on top of Entity; repositories drain the buffer into the outbox in
// the same transaction that persists the aggregate.
type AggregateRoot interface {
	Entity
	GetVersion() int
	IncrementVersion()
	AddDomainEvent(event DomainEvent)
	GetDomainEvents() []DomainEvent
	ClearDomainEvents()
}

// BaseAggregateRoot provides common fields for aggregate roots
type BaseAggregateRoot struct {
	BaseEntity
	Version int `gorm:"not null;default:1"`

	// pending events are not persisted with the aggregate row; the
	// repository writes them to the outbox and clears the buffer
	pending []DomainEvent `gorm:"-"`
}

// NewBaseAggregateRoot creates a new base aggregate root at version 1
func NewBaseAggregateRoot() BaseAggregateRoot {
	return BaseAggregateRoot{
		BaseEntity: NewBaseEntity(),
		Version:    1,
	}
}

// GetVersion returns the aggregate version for optimistic locking
func (a *BaseAggregateRoot) GetVersion() int { return a.Version }

// IncrementVersion increments the version number
func (a *BaseAggregateRoot) IncrementVersion() { a.Version++ }

// AddDomainEvent queues a domain event for outbox delivery
func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.pending = append(a.pending, event)
}

// GetDomainEvents returns the queued domain events
func (a *BaseAggregateRoot) GetDomainEvents() []DomainEvent {
	return a.pending
}

// ClearDomainEvents empties the event buffer, typically after the
// repository has handed the events to the outbox
func (a *BaseAggregateRoot) ClearDomainEvents() {
	a.pending = nil
}

// TenantAggregateRoot scopes an aggregate to one tenant. Every billing
// aggregate embeds this: tenant_id is part of each table and the tenant
// callback refuses queries without it.
type TenantAggregateRoot struct {
	BaseAggregateRoot
	TenantID uuid.UUID `gorm:"type:uuid;not null;index"`
}

// NewTenantAggregateRoot creates a new tenant-scoped aggregate root
func NewTenantAggregateRoot(tenantID uuid.UUID) TenantAggregateRoot {
	return TenantAggregateRoot{
		BaseAggregateRoot: NewBaseAggregateRoot(),
		TenantID:          tenantID,
	}
}
