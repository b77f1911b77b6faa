package event

import (
	"github.com/billflow/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// testEvent is a minimal serializable event for outbox round trips.
type testEvent struct {
	shared.BaseDomainEvent
	Data string `json:"data"`
}

func newTestEvent(eventType string, tenantID uuid.UUID) *testEvent {
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "TestAggregate", uuid.New(), tenantID),
		Data:            "test data",
	}
}
