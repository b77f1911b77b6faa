package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/billflow/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// GormOutboxWriter appends domain events to the outbox table inside the
// caller's transaction. It implements shared.OutboxWriter: it never opens
// or commits a transaction of its own, so a failed append aborts the
// business write it belongs to.
type GormOutboxWriter struct {
	serializer *EventSerializer
}

// NewGormOutboxWriter creates a new outbox writer
func NewGormOutboxWriter(serializer *EventSerializer) *GormOutboxWriter {
	return &GormOutboxWriter{
		serializer: serializer,
	}
}

// WriteWithTx serializes the events and inserts one outbox row per event
// using the provided transaction handle
func (w *GormOutboxWriter) WriteWithTx(ctx context.Context, tx *gorm.DB, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	rows := make([]*shared.OutboxEvent, 0, len(events))
	for _, event := range events {
		payload, err := w.serializer.Serialize(event)
		if err != nil {
			return fmt.Errorf("failed to serialize event %s: %w", event.EventType(), err)
		}
		metadata, err := json.Marshal(outboxMetadata{
			OccurredAt: event.OccurredAt().UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return fmt.Errorf("failed to marshal event metadata: %w", err)
		}

		rows = append(rows, shared.NewOutboxEvent(event.TenantID(), event, payload, metadata))
	}

	return NewGormOutboxRepository(tx).Save(ctx, rows...)
}

// SaveEvents implements the shared.OutboxWriter interface
func (w *GormOutboxWriter) SaveEvents(ctx context.Context, txProvider interface{}, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, ok := txProvider.(*gorm.DB)
	if !ok {
		return fmt.Errorf("txProvider must be a *gorm.DB, got %T", txProvider)
	}

	return w.WriteWithTx(ctx, tx, events...)
}

// outboxMetadata is the JSON document stored in the outbox metadata column
type outboxMetadata struct {
	OccurredAt string `json:"occurred_at"`
}

// Ensure GormOutboxWriter implements OutboxWriter
var _ shared.OutboxWriter = (*GormOutboxWriter)(nil)
