package shared

import "context"

// EventHandler handles domain events
type EventHandler interface {
	// Handle processes a domain event
	Handle(ctx context.Context, event DomainEvent) error
	// EventTypes returns the event types this handler is interested in
	// An empty slice means the handler receives all events
	EventTypes() []string
}

// EventPublisher publishes domain events
type EventPublisher interface {
	// Publish publishes one or more domain events
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventSubscriber subscribes to domain events
type EventSubscriber interface {
	// Subscribe registers a handler for specific event types
	// If no event types are provided, the handler receives all events
	Subscribe(handler EventHandler, eventTypes ...string)
	// Unsubscribe removes a handler from the subscription list
	Unsubscribe(handler EventHandler)
}

// EventBus combines publisher and subscriber capabilities. It is the
// delivery collaborator behind the outbox publisher; delivery through it
// is at-least-once and handlers must tolerate redelivery.
type EventBus interface {
	EventPublisher
	EventSubscriber
	// Start starts the event bus (e.g., background processing)
	Start(ctx context.Context) error
	// Stop gracefully stops the event bus
	Stop(ctx context.Context) error
}

// OutboxWriter appends domain events to the outbox table strictly within
// the caller's transaction. It never begins or commits a transaction of
// its own; a serialization failure aborts the enclosing transaction so the
// business write and the event row can never diverge.
type OutboxWriter interface {
	// SaveEvents saves domain events to the outbox within the transaction.
	// The txProvider must be a *gorm.DB transaction handle.
	SaveEvents(ctx context.Context, txProvider interface{}, events ...DomainEvent) error
}
