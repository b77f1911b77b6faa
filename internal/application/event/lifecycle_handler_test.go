package event

import (
	"context"
	"testing"

	"github.com/billflow/backend/internal/domain/billing"
	"github.com/billflow/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newLifecycleHandler() (*BillingLifecycleHandler, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return NewBillingLifecycleHandler(zap.New(core)), logs
}

func TestBillingLifecycleHandler_EventTypes(t *testing.T) {
	h, _ := newLifecycleHandler()

	assert.ElementsMatch(t, []string{
		billing.EventTypeSubscriptionCreated,
		billing.EventTypeInvoiceGenerated,
		billing.EventTypePaymentSucceeded,
		billing.EventTypeQuotaExceeded,
	}, h.EventTypes())
}

func TestBillingLifecycleHandler_SubscriptionCreated(t *testing.T) {
	h, logs := newLifecycleHandler()
	tenantID := uuid.New()

	ev := &billing.SubscriptionCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(
			billing.EventTypeSubscriptionCreated,
			billing.AggregateTypeSubscription,
			uuid.New(),
			tenantID,
		),
		PlanID:   "plan-pro",
		Cycle:    "monthly",
		Quantity: 5,
	}

	require.NoError(t, h.Handle(context.Background(), ev))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "subscription created", entries[0].Message)
	assert.Contains(t, entries[0].Context, zap.String("plan_id", "plan-pro"))
	assert.Contains(t, entries[0].Context, zap.String("tenant_id", tenantID.String()))
	assert.Contains(t, entries[0].Context, zap.String("event_id", ev.EventID().String()))
}

func TestBillingLifecycleHandler_QuotaExceededWarns(t *testing.T) {
	h, logs := newLifecycleHandler()

	ev := billing.NewQuotaExceededEvent(uuid.New(), uuid.New(), "api_calls", 1200, 1000)
	require.NoError(t, h.Handle(context.Background(), ev))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Contains(t, entries[0].Context, zap.String("feature_id", "api_calls"))
	assert.Contains(t, entries[0].Context, zap.Int64("usage", 1200))
	assert.Contains(t, entries[0].Context, zap.Int64("quota", 1000))
}

// A malformed or unknown event must not error: returning an error would
// push the outbox row into retry for something retries cannot fix.
func TestBillingLifecycleHandler_UnknownEventIsNoError(t *testing.T) {
	h, logs := newLifecycleHandler()

	ev := &struct{ shared.BaseDomainEvent }{
		BaseDomainEvent: shared.NewBaseDomainEvent("billing.unknown", "Unknown", uuid.New(), uuid.New()),
	}

	require.NoError(t, h.Handle(context.Background(), ev))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
}
