package handler

import (
	"net/http"

	"github.com/billflow/backend/internal/application/event"
	infraevent "github.com/billflow/backend/internal/infrastructure/event"
	"github.com/billflow/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OutboxHandler handles outbox management HTTP requests
type OutboxHandler struct {
	BaseHandler
	outboxService *event.OutboxService
	processor     *infraevent.OutboxProcessor
}

// NewOutboxHandler creates a new outbox handler
func NewOutboxHandler(outboxService *event.OutboxService) *OutboxHandler {
	return &OutboxHandler{
		outboxService: outboxService,
	}
}

// SetProcessor wires the background processor for the manual triggers.
// Without it the trigger endpoints report the processor as unavailable.
func (h *OutboxHandler) SetProcessor(p *infraevent.OutboxProcessor) {
	h.processor = p
}

// GetSkippedEvents godoc
// @ID           getOutboxSkippedEvents
// @Summary      List skipped outbox events
// @Description  Get a paginated list of events that exhausted their retry budget
// @Tags         outbox
// @Produce      json
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Items per page" default(20) maximum(100)
// @Success      200 {object} APIResponse[[]OutboxEventResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /system/outbox/skipped [get]
func (h *OutboxHandler) GetSkippedEvents(c *gin.Context) {
	var filter event.OutboxFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BadRequest(c, "Invalid query parameters")
		return
	}

	result, err := h.outboxService.GetSkippedEvents(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	events := make([]OutboxEventResponse, len(result.Events))
	for i, evt := range result.Events {
		events[i] = toOutboxEventResponse(&evt)
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(events, result.Total, result.Page, result.PageSize))
}

// GetEvent godoc
// @ID           getOutboxEvent
// @Summary      Get an outbox event by ID
// @Description  Retrieve a single outbox event by its ID
// @Tags         outbox
// @Produce      json
// @Param        id path string true "Outbox Event ID" format(uuid)
// @Success      200 {object} APIResponse[OutboxEventResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /system/outbox/{id} [get]
func (h *OutboxHandler) GetEvent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid event ID")
		return
	}

	evt, err := h.outboxService.GetEvent(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toOutboxEventResponse(evt))
}

// RetrySkippedEvent godoc
// @ID           retrySkippedOutboxEvent
// @Summary      Retry a skipped event
// @Description  Reset a skipped event back into the delivery cycle
// @Tags         outbox
// @Accept       json
// @Produce      json
// @Param        id path string true "Outbox Event ID" format(uuid)
// @Success      200 {object} APIResponse[OutboxEventResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /system/outbox/{id}/retry [post]
func (h *OutboxHandler) RetrySkippedEvent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid event ID")
		return
	}

	evt, err := h.outboxService.RetrySkippedEvent(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toOutboxEventResponse(evt))
}

// RetryAllSkippedEvents godoc
// @ID           retryAllSkippedOutboxEvents
// @Summary      Retry all skipped events
// @Description  Reset all skipped events for redelivery
// @Tags         outbox
// @Accept       json
// @Produce      json
// @Success      200 {object} APIResponse[RetryAllResponse]
// @Failure      500 {object} ErrorResponse
// @Router       /system/outbox/skipped/retry-all [post]
func (h *OutboxHandler) RetryAllSkippedEvents(c *gin.Context) {
	count, err := h.outboxService.RetryAllSkippedEvents(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, RetryAllResponse{Count: count})
}

// GetStats godoc
// @ID           getOutboxStats
// @Summary      Get outbox statistics
// @Description  Get counts of outbox events by status
// @Tags         outbox
// @Produce      json
// @Success      200 {object} APIResponse[OutboxStatsResponse]
// @Failure      500 {object} ErrorResponse
// @Router       /system/outbox/stats [get]
func (h *OutboxHandler) GetStats(c *gin.Context) {
	stats, err := h.outboxService.GetStats(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toOutboxStatsResponse(stats))
}

// ProcessPending godoc
// @ID           processPendingOutboxEvents
// @Summary      Process pending events now
// @Description  Drain one batch of pending and retryable events immediately
// @Tags         outbox
// @Produce      json
// @Success      200 {object} SuccessResponse
// @Failure      503 {object} ErrorResponse
// @Router       /system/outbox/process [post]
func (h *OutboxHandler) ProcessPending(c *gin.Context) {
	if h.processor == nil {
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeInternal, "Outbox processor is not running")
		return
	}
	h.processor.ProcessPending(c.Request.Context())
	h.Success(c, nil)
}

// RetryFailed godoc
// @ID           retryFailedOutboxEvents
// @Summary      Retry failed events now
// @Description  Publish failed events immediately, ignoring pending backoff
// @Tags         outbox
// @Produce      json
// @Success      200 {object} SuccessResponse
// @Failure      500 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Router       /system/outbox/retry-failed [post]
func (h *OutboxHandler) RetryFailed(c *gin.Context) {
	if h.processor == nil {
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeInternal, "Outbox processor is not running")
		return
	}
	if err := h.processor.RetryFailed(c.Request.Context()); err != nil {
		h.InternalError(c, "Failed to retry failed events")
		return
	}
	h.Success(c, nil)
}

// Cleanup godoc
// @ID           cleanupOutboxEvents
// @Summary      Delete published events past retention
// @Description  Remove delivered events older than the retention period
// @Tags         outbox
// @Produce      json
// @Success      200 {object} APIResponse[CountData]
// @Failure      500 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Router       /system/outbox/cleanup [post]
func (h *OutboxHandler) Cleanup(c *gin.Context) {
	if h.processor == nil {
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeInternal, "Outbox processor is not running")
		return
	}
	deleted, err := h.processor.Cleanup(c.Request.Context())
	if err != nil {
		h.InternalError(c, "Failed to clean up outbox events")
		return
	}
	h.Success(c, CountData{Count: deleted})
}

// Response types

// OutboxEventResponse represents an outbox event in API response
type OutboxEventResponse struct {
	ID            string  `json:"id"`
	TenantID      string  `json:"tenant_id"`
	EventID       string  `json:"event_id"`
	EventType     string  `json:"event_type"`
	AggregateID   string  `json:"aggregate_id"`
	AggregateType string  `json:"aggregate_type"`
	Status        string  `json:"status"`
	RetryCount    int     `json:"retry_count"`
	MaxRetryCount int     `json:"max_retry_count"`
	ErrorMessage  string  `json:"error_message,omitempty"`
	NextAttemptAt *string `json:"next_attempt_at,omitempty"`
	PublishedAt   *string `json:"published_at,omitempty"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

// OutboxStatsResponse represents outbox statistics response
type OutboxStatsResponse struct {
	Pending    int64 `json:"pending"`
	Publishing int64 `json:"publishing"`
	Published  int64 `json:"published"`
	Failed     int64 `json:"failed"`
	Skipped    int64 `json:"skipped"`
	Total      int64 `json:"total"`
}

// RetryAllResponse represents the response for retry all operation
type RetryAllResponse struct {
	Count int64 `json:"count"`
}

// Conversion functions

func toOutboxEventResponse(dto *event.OutboxEventDTO) OutboxEventResponse {
	resp := OutboxEventResponse{
		ID:            dto.ID.String(),
		TenantID:      dto.TenantID.String(),
		EventID:       dto.EventID.String(),
		EventType:     dto.EventType,
		AggregateID:   dto.AggregateID.String(),
		AggregateType: dto.AggregateType,
		Status:        dto.Status,
		RetryCount:    dto.RetryCount,
		MaxRetryCount: dto.MaxRetryCount,
		ErrorMessage:  dto.ErrorMessage,
		CreatedAt:     dto.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:     dto.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if dto.NextAttemptAt != nil {
		t := dto.NextAttemptAt.Format("2006-01-02T15:04:05Z07:00")
		resp.NextAttemptAt = &t
	}
	if dto.PublishedAt != nil {
		t := dto.PublishedAt.Format("2006-01-02T15:04:05Z07:00")
		resp.PublishedAt = &t
	}
	return resp
}

func toOutboxStatsResponse(dto *event.OutboxStatsDTO) OutboxStatsResponse {
	return OutboxStatsResponse{
		Pending:    dto.Pending,
		Publishing: dto.Publishing,
		Published:  dto.Published,
		Failed:     dto.Failed,
		Skipped:    dto.Skipped,
		Total:      dto.Total,
	}
}
