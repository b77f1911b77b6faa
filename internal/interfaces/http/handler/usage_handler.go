package handler

import (
	"time"

	appbilling "github.com/billflow/backend/internal/application/billing"
	"github.com/billflow/backend/internal/domain/billing"
	"github.com/billflow/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// UsageHandler handles usage ingestion HTTP requests
type UsageHandler struct {
	BaseHandler
	subscriptionService *appbilling.SubscriptionService
}

// NewUsageHandler creates a new usage handler
func NewUsageHandler(subscriptionService *appbilling.SubscriptionService) *UsageHandler {
	return &UsageHandler{
		subscriptionService: subscriptionService,
	}
}

// ============================================================================
// Request/Response DTOs
// ============================================================================

// RecordUsageRequest represents one usage measurement to ingest
type RecordUsageRequest struct {
	SubscriptionID string     `json:"subscription_id" binding:"required,uuid"`
	FeatureID      string     `json:"feature_id" binding:"required"`
	Quantity       int64      `json:"quantity" binding:"min=0"`
	SourceType     string     `json:"source_type"`
	SourceID       string     `json:"source_id"`
	RecordedAt     *time.Time `json:"recorded_at"`
}

// RecordUsageBatchRequest represents a batch of usage measurements
type RecordUsageBatchRequest struct {
	Records []RecordUsageRequest `json:"records" binding:"required,min=1,max=1000,dive"`
}

// UsageRecordResponse represents a stored usage record
type UsageRecordResponse struct {
	ID             string `json:"id"`
	TenantID       string `json:"tenant_id"`
	SubscriptionID string `json:"subscription_id"`
	FeatureID      string `json:"feature_id"`
	Quantity       int64  `json:"quantity"`
	RecordedAt     string `json:"recorded_at"`
	SourceType     string `json:"source_type,omitempty"`
	SourceID       string `json:"source_id,omitempty"`
}

// ============================================================================
// Handlers
// ============================================================================

// RecordUsage godoc
// @ID           recordUsage
// @Summary      Record a usage event
// @Description  Append one immutable usage record to the ledger
// @Tags         billing
// @Accept       json
// @Produce      json
// @Param        request body RecordUsageRequest true "Usage measurement"
// @Success      201 {object} APIResponse[UsageRecordResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /billing/usage [post]
func (h *UsageHandler) RecordUsage(c *gin.Context) {
	var req RecordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RejectInvalidPayload(c, err)
		return
	}

	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID format")
		return
	}

	appReq, err := toAppUsageRequest(tenantID, req)
	if err != nil {
		h.BadRequest(c, "Invalid subscription ID")
		return
	}

	record, err := h.subscriptionService.RecordUsage(c.Request.Context(), appReq)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toUsageRecordResponse(record))
}

// RecordUsageBatch godoc
// @ID           recordUsageBatch
// @Summary      Record usage events in bulk
// @Description  Append up to 1000 usage records in one transaction
// @Tags         billing
// @Accept       json
// @Produce      json
// @Param        request body RecordUsageBatchRequest true "Usage measurements"
// @Success      201 {object} APIResponse[[]UsageRecordResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /billing/usage/batch [post]
func (h *UsageHandler) RecordUsageBatch(c *gin.Context) {
	var req RecordUsageBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RejectInvalidPayload(c, err)
		return
	}

	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID format")
		return
	}

	appReqs := make([]appbilling.RecordUsageRequest, len(req.Records))
	for i, r := range req.Records {
		appReq, err := toAppUsageRequest(tenantID, r)
		if err != nil {
			h.BadRequest(c, "Invalid subscription ID")
			return
		}
		appReqs[i] = appReq
	}

	records, err := h.subscriptionService.RecordUsageBatch(c.Request.Context(), appReqs)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	responses := make([]UsageRecordResponse, len(records))
	for i, record := range records {
		responses[i] = toUsageRecordResponse(record)
	}
	h.Created(c, responses)
}

// ============================================================================
// Conversion functions
// ============================================================================

func toAppUsageRequest(tenantID uuid.UUID, req RecordUsageRequest) (appbilling.RecordUsageRequest, error) {
	subscriptionID, err := uuid.Parse(req.SubscriptionID)
	if err != nil {
		return appbilling.RecordUsageRequest{}, err
	}
	return appbilling.RecordUsageRequest{
		TenantID:       tenantID,
		SubscriptionID: subscriptionID,
		FeatureID:      req.FeatureID,
		Quantity:       req.Quantity,
		SourceType:     req.SourceType,
		SourceID:       req.SourceID,
		RecordedAt:     req.RecordedAt,
	}, nil
}

func toUsageRecordResponse(record *billing.UsageRecord) UsageRecordResponse {
	return UsageRecordResponse{
		ID:             record.ID.String(),
		TenantID:       record.TenantID.String(),
		SubscriptionID: record.SubscriptionID.String(),
		FeatureID:      record.FeatureID,
		Quantity:       record.Quantity,
		RecordedAt:     record.RecordedAt.Format(time.RFC3339),
		SourceType:     record.SourceType,
		SourceID:       record.SourceID,
	}
}
