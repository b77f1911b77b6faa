package event

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/billflow/backend/internal/domain/billing"
	"github.com/billflow/backend/internal/domain/shared"
)

// EventSerializer converts domain events to and from their outbox JSON
// payloads. Deserialization needs a registered concrete type per event
// type string; publishing an unregistered type fails loudly instead of
// producing an opaque payload nobody can replay.
type EventSerializer struct {
	mu       sync.RWMutex
	registry map[string]reflect.Type // eventType -> Go type
}

// NewEventSerializer creates an empty event serializer
func NewEventSerializer() *EventSerializer {
	return &EventSerializer{
		registry: make(map[string]reflect.Type),
	}
}

// NewBillingEventSerializer creates a serializer with all billing domain
// events registered
func NewBillingEventSerializer() *EventSerializer {
	s := NewEventSerializer()
	RegisterBillingEvents(s)
	return s
}

// RegisterBillingEvents registers the billing domain's event types. The
// outbox processor needs these to deserialize rows back into events.
func RegisterBillingEvents(s *EventSerializer) {
	s.Register(billing.EventTypeSubscriptionCreated, &billing.SubscriptionCreatedEvent{})
	s.Register(billing.EventTypeInvoiceGenerated, &billing.InvoiceGeneratedEvent{})
	s.Register(billing.EventTypePaymentSucceeded, &billing.PaymentSucceededEvent{})
	s.Register(billing.EventTypeQuotaExceeded, &billing.QuotaExceededEvent{})
}

// Register registers an event type for deserialization. The eventType
// must match what EventType() returns on the event.
func (s *EventSerializer) Register(eventType string, eventInstance shared.DomainEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := reflect.TypeOf(eventInstance)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	s.registry[eventType] = t
}

// Serialize serializes a domain event to its JSON payload
func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	if !s.IsRegistered(event.EventType()) {
		return nil, fmt.Errorf("event type %s is not registered", event.EventType())
	}
	return json.Marshal(event)
}

// Deserialize reconstructs a domain event from its JSON payload
func (s *EventSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	s.mu.RLock()
	t, ok := s.registry[eventType]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	eventPtr := reflect.New(t).Interface()
	if err := json.Unmarshal(data, eventPtr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	event, ok := eventPtr.(shared.DomainEvent)
	if !ok {
		return nil, fmt.Errorf("deserialized object does not implement DomainEvent")
	}
	return event, nil
}

// IsRegistered checks if an event type is registered
func (s *EventSerializer) IsRegistered(eventType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.registry[eventType]
	return ok
}

// RegisteredTypes returns all registered event types
func (s *EventSerializer) RegisteredTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	types := make([]string, 0, len(s.registry))
	for t := range s.registry {
		types = append(types, t)
	}
	return types
}
