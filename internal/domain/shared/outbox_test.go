package shared

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPendingEvent() *OutboxEvent {
	return &OutboxEvent{
		ID:            uuid.New(),
		TenantID:      uuid.New(),
		EventID:       uuid.New(),
		EventType:     "billing.invoice.generated",
		AggregateID:   uuid.New(),
		AggregateType: "Invoice",
		EventData:     []byte(`{"total":"45.00"}`),
		Status:        OutboxStatusPending,
		MaxRetryCount: DefaultMaxRetryCount,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
}

func TestOutboxEvent_MarkPublishing(t *testing.T) {
	t.Run("claims pending event", func(t *testing.T) {
		event := newPendingEvent()

		err := event.MarkPublishing()

		require.NoError(t, err)
		assert.Equal(t, OutboxStatusPublishing, event.Status)
		assert.NotNil(t, event.LastAttemptAt)
	})

	t.Run("claims failed event for retry", func(t *testing.T) {
		event := newPendingEvent()
		event.Status = OutboxStatusFailed
		event.RetryCount = 2

		err := event.MarkPublishing()

		require.NoError(t, err)
		assert.Equal(t, OutboxStatusPublishing, event.Status)
	})

	t.Run("terminal states never regress", func(t *testing.T) {
		for _, status := range []OutboxStatus{OutboxStatusPublished, OutboxStatusSkipped, OutboxStatusPublishing} {
			event := newPendingEvent()
			event.Status = status

			err := event.MarkPublishing()

			assert.Error(t, err, "status %s", status)
			assert.Equal(t, status, event.Status)
		}
	})
}

func TestOutboxEvent_MarkFailed(t *testing.T) {
	t.Run("schedules retry with backoff", func(t *testing.T) {
		event := newPendingEvent()
		require.NoError(t, event.MarkPublishing())

		event.MarkFailed("connection refused", ExponentialBackoff(time.Second))

		assert.Equal(t, OutboxStatusFailed, event.Status)
		assert.Equal(t, 1, event.RetryCount)
		assert.Equal(t, "connection refused", event.ErrorMessage)
		require.NotNil(t, event.NextAttemptAt)
		assert.True(t, event.NextAttemptAt.After(time.Now()))
	})

	t.Run("skips event at retry bound", func(t *testing.T) {
		event := newPendingEvent()
		event.MaxRetryCount = 3
		event.Status = OutboxStatusPublishing
		event.RetryCount = 2

		event.MarkFailed("downstream unavailable", nil)

		assert.Equal(t, OutboxStatusSkipped, event.Status)
		assert.Equal(t, 3, event.RetryCount)
		assert.Nil(t, event.NextAttemptAt)
		assert.True(t, event.IsTerminal())
	})

	t.Run("fails exactly maxRetryCount times before skipping", func(t *testing.T) {
		event := newPendingEvent()
		event.MaxRetryCount = 3

		for i := 1; i <= 3; i++ {
			require.NoError(t, event.MarkPublishing())
			event.MarkFailed("boom", ExponentialBackoff(time.Millisecond))
			if i < 3 {
				assert.Equal(t, OutboxStatusFailed, event.Status)
				assert.True(t, event.CanRetry())
			}
		}

		assert.Equal(t, OutboxStatusSkipped, event.Status)
		assert.Equal(t, 3, event.RetryCount)
		assert.False(t, event.CanRetry())
		assert.Error(t, event.MarkPublishing())
	})
}

func TestOutboxEvent_MarkPublished(t *testing.T) {
	event := newPendingEvent()
	require.NoError(t, event.MarkPublishing())

	event.MarkPublished()

	assert.Equal(t, OutboxStatusPublished, event.Status)
	require.NotNil(t, event.PublishedAt)
	assert.True(t, event.IsTerminal())
	assert.Error(t, event.MarkPublishing())
}

func TestOutboxEvent_ResetForRetry(t *testing.T) {
	t.Run("re-enters skipped event", func(t *testing.T) {
		event := newPendingEvent()
		event.Status = OutboxStatusSkipped
		event.RetryCount = 5
		event.ErrorMessage = "gave up"

		err := event.ResetForRetry()

		require.NoError(t, err)
		assert.Equal(t, OutboxStatusPending, event.Status)
		assert.Equal(t, 0, event.RetryCount)
		assert.Empty(t, event.ErrorMessage)
		assert.Nil(t, event.NextAttemptAt)
	})

	t.Run("rejects non-skipped events", func(t *testing.T) {
		for _, status := range []OutboxStatus{OutboxStatusPending, OutboxStatusPublishing, OutboxStatusPublished, OutboxStatusFailed} {
			event := newPendingEvent()
			event.Status = status

			err := event.ResetForRetry()

			assert.Error(t, err, "status %s", status)
		}
	})
}

func TestExponentialBackoff(t *testing.T) {
	backoff := ExponentialBackoff(time.Second)

	assert.Equal(t, time.Second, backoff(1))
	assert.Equal(t, 2*time.Second, backoff(2))
	assert.Equal(t, 4*time.Second, backoff(3))
	assert.Equal(t, 16*time.Second, backoff(5))
	assert.Equal(t, time.Second, backoff(0))
}
