package event

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/billflow/backend/internal/domain/shared"
	"go.uber.org/zap"
)

var _ shared.EventBus = (*InMemoryEventBus)(nil)

// InMemoryEventBus implements shared.EventBus with synchronous in-process
// dispatch. A handler failure is logged and does not stop delivery to the
// remaining handlers; redelivery happens through the outbox retry cycle,
// which is why consumers sit behind idempotency wrappers.
type InMemoryEventBus struct {
	registry *handlerRegistry
	logger   *zap.Logger
	running  atomic.Bool
}

// NewInMemoryEventBus creates an event bus. Call Start before publishing.
func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	return &InMemoryEventBus{
		registry: newHandlerRegistry(),
		logger:   logger,
	}
}

// Publish delivers each event to all matching handlers in subscription
// order and always reports success: the outbox marks a row delivered once
// it reached the bus, and per-handler failures are the handlers' own
// retry concern.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	for _, ev := range events {
		for _, handler := range b.registry.handlersFor(ev.EventType()) {
			if err := b.deliver(ctx, handler, ev); err != nil {
				b.logger.Error("handler failed to process event",
					zap.String("event_type", ev.EventType()),
					zap.String("event_id", ev.EventID().String()),
					zap.Error(err),
				)
			}
		}
	}
	return nil
}

// Subscribe registers a handler for specific event types. With no types
// given, the handler's own EventTypes() decides; an empty result there
// subscribes it to every event.
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.registry.register(handler, eventTypes...)
	b.logger.Debug("handler subscribed", zap.Strings("event_types", eventTypes))
}

// Unsubscribe removes a handler from all its subscriptions.
func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.registry.unregister(handler)
	b.logger.Debug("handler unsubscribed")
}

// Start marks the bus running.
func (b *InMemoryEventBus) Start(ctx context.Context) error {
	b.running.Store(true)
	b.logger.Info("event bus started")
	return nil
}

// Stop marks the bus stopped.
func (b *InMemoryEventBus) Stop(ctx context.Context) error {
	b.running.Store(false)
	b.logger.Info("event bus stopped")
	return nil
}

// deliver invokes a handler, converting a panic into an error so one
// broken handler cannot take down the publish loop.
func (b *InMemoryEventBus) deliver(ctx context.Context, handler shared.EventHandler, ev shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler.Handle(ctx, ev)
}
