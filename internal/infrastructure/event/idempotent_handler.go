package event

import (
	"context"
	"sync/atomic"

	"github.com/billflow/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// IdempotencyMetrics counts first deliveries, suppressed redeliveries and
// handler failures. One instance can be shared across several wrapped
// handlers to get pipeline-wide totals.
type IdempotencyMetrics struct {
	EventsProcessed atomic.Int64
	EventsDuplicate atomic.Int64
	EventsFailed    atomic.Int64
}

// IdempotencyStats is a point-in-time snapshot of IdempotencyMetrics.
type IdempotencyStats struct {
	EventsProcessed int64 `json:"events_processed"`
	EventsDuplicate int64 `json:"events_duplicate"`
	EventsFailed    int64 `json:"events_failed"`
}

// Stats snapshots the counters.
func (m *IdempotencyMetrics) Stats() IdempotencyStats {
	return IdempotencyStats{
		EventsProcessed: m.EventsProcessed.Load(),
		EventsDuplicate: m.EventsDuplicate.Load(),
		EventsFailed:    m.EventsFailed.Load(),
	}
}

// IdempotentHandler wraps an EventHandler with deduplication by event ID.
// The outbox delivers at-least-once; this wrapper is what makes a
// redelivered event a no-op for the consumer behind it.
type IdempotentHandler struct {
	inner   shared.EventHandler
	store   shared.IdempotencyStore
	config  shared.IdempotencyConfig
	logger  *zap.Logger
	metrics *IdempotencyMetrics
}

// IdempotentHandlerOption configures an IdempotentHandler.
type IdempotentHandlerOption func(*IdempotentHandler)

// WithIdempotencyConfig overrides the default dedupe window and toggle.
func WithIdempotencyConfig(config shared.IdempotencyConfig) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.config = config
	}
}

// WithIdempotencyMetrics makes the handler record into a shared collector
// instead of a private one.
func WithIdempotencyMetrics(metrics *IdempotencyMetrics) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.metrics = metrics
	}
}

// NewIdempotentHandler wraps inner with event-ID deduplication backed by
// store.
func NewIdempotentHandler(
	inner shared.EventHandler,
	store shared.IdempotencyStore,
	logger *zap.Logger,
	opts ...IdempotentHandlerOption,
) *IdempotentHandler {
	h := &IdempotentHandler{
		inner:   inner,
		store:   store,
		config:  shared.DefaultIdempotencyConfig(),
		logger:  logger,
		metrics: &IdempotencyMetrics{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// EventTypes delegates to the wrapped handler's subscriptions.
func (h *IdempotentHandler) EventTypes() []string {
	return h.inner.EventTypes()
}

// Handle runs the wrapped handler unless the event ID was already seen
// inside the dedupe window. When the store is unreachable the event is
// processed anyway: a duplicate side effect is recoverable, a silently
// dropped event is not.
func (h *IdempotentHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if !h.config.Enabled {
		return h.inner.Handle(ctx, event)
	}

	eventID := event.EventID().String()

	firstDelivery, err := h.store.MarkProcessed(ctx, eventID, h.config.TTL)
	switch {
	case err != nil:
		h.logger.Warn("idempotency store unavailable, processing without dedupe",
			zap.String("event_id", eventID),
			zap.String("event_type", event.EventType()),
			zap.Error(err),
		)
	case !firstDelivery:
		h.metrics.EventsDuplicate.Add(1)
		h.logger.Debug("duplicate delivery suppressed",
			zap.String("event_id", eventID),
			zap.String("event_type", event.EventType()),
		)
		return nil
	}

	if err := h.inner.Handle(ctx, event); err != nil {
		h.metrics.EventsFailed.Add(1)
		h.logger.Error("event handler failed",
			zap.String("event_id", eventID),
			zap.String("event_type", event.EventType()),
			zap.Error(err),
		)
		// The idempotency key is kept on failure; it expires after the
		// TTL, which acts as a retry cooldown.
		return err
	}

	h.metrics.EventsProcessed.Add(1)
	return nil
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)
