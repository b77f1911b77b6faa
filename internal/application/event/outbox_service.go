package event

import (
	"context"
	"time"

	"github.com/billflow/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OutboxService exposes the operator-facing outbox management operations:
// inspecting stuck events, resetting skipped ones, and status counts.
type OutboxService struct {
	repo   shared.OutboxRepository
	logger *zap.Logger
}

// NewOutboxService creates a new outbox service
func NewOutboxService(repo shared.OutboxRepository, logger *zap.Logger) *OutboxService {
	return &OutboxService{repo: repo, logger: logger}
}

// OutboxEventDTO represents an outbox event data transfer object
type OutboxEventDTO struct {
	ID            uuid.UUID  `json:"id"`
	TenantID      uuid.UUID  `json:"tenant_id"`
	EventID       uuid.UUID  `json:"event_id"`
	EventType     string     `json:"event_type"`
	AggregateID   uuid.UUID  `json:"aggregate_id"`
	AggregateType string     `json:"aggregate_type"`
	Status        string     `json:"status"`
	RetryCount    int        `json:"retry_count"`
	MaxRetryCount int        `json:"max_retry_count"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// OutboxFilter represents filter for querying outbox events. SortBy and
// SortOrder pass through to the repository, which whitelists them.
type OutboxFilter struct {
	Page      int    `form:"page,omitempty" binding:"omitempty,min=1"`
	PageSize  int    `form:"page_size,omitempty" binding:"omitempty,min=1,max=100"`
	SortBy    string `form:"sort_by,omitempty"`
	SortOrder string `form:"sort_order,omitempty"`
}

// normalized clamps the page parameters into their valid ranges.
func (f OutboxFilter) normalized() OutboxFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	switch {
	case f.PageSize < 1:
		f.PageSize = 20
	case f.PageSize > 100:
		f.PageSize = 100
	}
	return f
}

// OutboxListResult is one page of outbox events plus the page coordinates
// needed to build the response envelope.
type OutboxListResult struct {
	Events   []OutboxEventDTO `json:"events"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// OutboxStatsDTO represents outbox statistics
type OutboxStatsDTO struct {
	Pending    int64 `json:"pending"`
	Publishing int64 `json:"publishing"`
	Published  int64 `json:"published"`
	Failed     int64 `json:"failed"`
	Skipped    int64 `json:"skipped"`
	Total      int64 `json:"total"`
}

// GetSkippedEvents retrieves skipped events with pagination. Skipped
// events exhausted their retry budget and wait for operator action.
func (s *OutboxService) GetSkippedEvents(ctx context.Context, filter OutboxFilter) (*OutboxListResult, error) {
	filter = filter.normalized()

	events, total, err := s.repo.FindSkipped(ctx, filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder)
	if err != nil {
		s.logger.Error("Failed to find skipped events", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to retrieve skipped events")
	}

	result := &OutboxListResult{
		Events:   make([]OutboxEventDTO, len(events)),
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}
	for i, evt := range events {
		result.Events[i] = toOutboxEventDTO(evt)
	}
	return result, nil
}

// fetchEvent loads one outbox event, folding both lookup failure and a
// missing row into the same domain error.
func (s *OutboxService) fetchEvent(ctx context.Context, id uuid.UUID) (*shared.OutboxEvent, error) {
	evt, err := s.repo.FindByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to find outbox event", zap.Error(err), zap.String("id", id.String()))
		return nil, shared.NewDomainError("EVENT_NOT_FOUND", "Outbox event not found")
	}
	if evt == nil {
		return nil, shared.NewDomainError("EVENT_NOT_FOUND", "Outbox event not found")
	}
	return evt, nil
}

// GetEvent retrieves a single outbox event by ID
func (s *OutboxService) GetEvent(ctx context.Context, id uuid.UUID) (*OutboxEventDTO, error) {
	evt, err := s.fetchEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := toOutboxEventDTO(evt)
	return &dto, nil
}

// RetrySkippedEvent resets a skipped event back into the delivery cycle
func (s *OutboxService) RetrySkippedEvent(ctx context.Context, id uuid.UUID) (*OutboxEventDTO, error) {
	evt, err := s.fetchEvent(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := evt.ResetForRetry(); err != nil {
		return nil, shared.NewDomainError("INVALID_STATUS", err.Error())
	}
	if err := s.repo.Update(ctx, evt); err != nil {
		s.logger.Error("Failed to update outbox event", zap.Error(err), zap.String("id", id.String()))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to retry event")
	}

	s.logger.Info("Skipped event reset for retry",
		zap.String("id", id.String()),
		zap.String("event_type", evt.EventType),
	)

	dto := toOutboxEventDTO(evt)
	return &dto, nil
}

// RetryAllSkippedEvents resets all skipped events for redelivery
func (s *OutboxService) RetryAllSkippedEvents(ctx context.Context) (int64, error) {
	const batchSize = 100

	var count int64
	page := 1
	for {
		events, _, err := s.repo.FindSkipped(ctx, page, batchSize, "", "")
		if err != nil {
			s.logger.Error("Failed to find skipped events", zap.Error(err))
			return count, shared.NewDomainError("INTERNAL_ERROR", "Failed to retrieve skipped events")
		}
		if len(events) == 0 {
			break
		}

		reset := 0
		for _, evt := range events {
			if err := evt.ResetForRetry(); err != nil {
				continue
			}
			if err := s.repo.Update(ctx, evt); err != nil {
				s.logger.Error("Failed to update outbox event", zap.Error(err), zap.String("id", evt.ID.String()))
				continue
			}
			count++
			reset++
		}

		if len(events) < batchSize {
			break
		}
		// Reset events leave the skipped set, so the next batch starts at
		// the same page; only advance past events that could not be reset.
		if reset == 0 {
			page++
		}
	}

	s.logger.Info("Retried skipped events", zap.Int64("count", count))
	return count, nil
}

// GetStats returns outbox statistics
func (s *OutboxService) GetStats(ctx context.Context) (*OutboxStatsDTO, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		s.logger.Error("Failed to get outbox stats", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to get outbox stats")
	}

	stats := &OutboxStatsDTO{
		Pending:    counts[shared.OutboxStatusPending],
		Publishing: counts[shared.OutboxStatusPublishing],
		Published:  counts[shared.OutboxStatusPublished],
		Failed:     counts[shared.OutboxStatusFailed],
		Skipped:    counts[shared.OutboxStatusSkipped],
	}
	for _, count := range counts {
		stats.Total += count
	}
	return stats, nil
}

func toOutboxEventDTO(evt *shared.OutboxEvent) OutboxEventDTO {
	return OutboxEventDTO{
		ID:            evt.ID,
		TenantID:      evt.TenantID,
		EventID:       evt.EventID,
		EventType:     evt.EventType,
		AggregateID:   evt.AggregateID,
		AggregateType: evt.AggregateType,
		Status:        string(evt.Status),
		RetryCount:    evt.RetryCount,
		MaxRetryCount: evt.MaxRetryCount,
		ErrorMessage:  evt.ErrorMessage,
		NextAttemptAt: evt.NextAttemptAt,
		PublishedAt:   evt.PublishedAt,
		CreatedAt:     evt.CreatedAt,
		UpdatedAt:     evt.UpdatedAt,
	}
}
