package handler

import (
	"time"

	appbilling "github.com/billflow/backend/internal/application/billing"
	"github.com/billflow/backend/internal/domain/billing"
	"github.com/billflow/backend/internal/infrastructure/telemetry"
	"github.com/billflow/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// BillingHandler handles billing estimate HTTP requests
type BillingHandler struct {
	BaseHandler
	billingService *appbilling.BillingService
	metrics        *telemetry.BillingMetrics
}

// NewBillingHandler creates a new billing handler
func NewBillingHandler(billingService *appbilling.BillingService) *BillingHandler {
	return &BillingHandler{
		billingService: billingService,
	}
}

// SetMetrics wires a metrics recorder; nil disables recording
func (h *BillingHandler) SetMetrics(metrics *telemetry.BillingMetrics) {
	h.metrics = metrics
}

// ============================================================================
// Request/Response DTOs
// ============================================================================

// EstimateRequest represents an estimate calculation request
type EstimateRequest struct {
	SubscriptionID string    `json:"subscription_id" binding:"required,uuid"`
	PeriodStart    time.Time `json:"period_start" binding:"required"`
	PeriodEnd      time.Time `json:"period_end" binding:"required"`
}

// FeatureBillingResponse represents one feature's charge in a result
type FeatureBillingResponse struct {
	FeatureID   string `json:"feature_id"`
	UsageAmount int64  `json:"usage_amount"`
	Amount      string `json:"amount"`
	QuotaAtCalc int64  `json:"quota_at_calc,omitempty"`
}

// AdvisoryResponse represents a feature the estimate could not resolve
type AdvisoryResponse struct {
	FeatureID string `json:"feature_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// BillingResultResponse represents the outcome of a calculation run
type BillingResultResponse struct {
	SubscriptionID  string                   `json:"subscription_id"`
	TenantID        string                   `json:"tenant_id"`
	PlanID          string                   `json:"plan_id"`
	PeriodStart     string                   `json:"period_start"`
	PeriodEnd       string                   `json:"period_end"`
	Quantity        int64                    `json:"quantity"`
	Currency        string                   `json:"currency"`
	Subtotal        string                   `json:"subtotal"`
	Discount        string                   `json:"discount"`
	Tax             string                   `json:"tax"`
	Total           string                   `json:"total"`
	Degraded        bool                     `json:"degraded"`
	FeatureBillings []FeatureBillingResponse `json:"feature_billings"`
	Advisories      []AdvisoryResponse       `json:"advisories,omitempty"`
}

// ============================================================================
// Handlers
// ============================================================================

// Estimate godoc
// @ID           estimateBilling
// @Summary      Estimate charges for a period
// @Description  Run a fail-open billing calculation; unresolved features degrade to zero with an advisory
// @Tags         billing
// @Accept       json
// @Produce      json
// @Param        request body EstimateRequest true "Estimate parameters"
// @Success      200 {object} APIResponse[BillingResultResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /billing/estimate [post]
func (h *BillingHandler) Estimate(c *gin.Context) {
	var req EstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RejectInvalidPayload(c, err)
		return
	}

	subscriptionID, err := uuid.Parse(req.SubscriptionID)
	if err != nil {
		h.BadRequest(c, "Invalid subscription ID")
		return
	}

	start := time.Now()
	result, err := h.billingService.Calculate(c.Request.Context(), appbilling.CalculationInput{
		SubscriptionID: subscriptionID,
		PeriodStart:    req.PeriodStart,
		PeriodEnd:      req.PeriodEnd,
		Mode:           appbilling.ModeEstimate,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordEstimate(c.Request.Context(), result.TenantID, result.IsDegraded())
		h.metrics.RecordCalculationDuration(c.Request.Context(), telemetry.BillingModeEstimate, time.Since(start))
	}

	h.Success(c, toBillingResultResponse(result))
}

// ============================================================================
// Conversion functions
// ============================================================================

func toBillingResultResponse(result *billing.BillingResult) BillingResultResponse {
	resp := BillingResultResponse{
		SubscriptionID: result.SubscriptionID.String(),
		TenantID:       result.TenantID.String(),
		PlanID:         result.PlanID,
		PeriodStart:    result.PeriodStart.Format(time.RFC3339),
		PeriodEnd:      result.PeriodEnd.Format(time.RFC3339),
		Quantity:       result.Quantity,
		Currency:       string(result.TotalAmount.Currency()),
		Subtotal:       result.Subtotal.Amount().String(),
		Discount:       result.Discount.Amount().String(),
		Tax:            result.Tax.Amount().String(),
		Total:          result.TotalAmount.Amount().String(),
		Degraded:       result.IsDegraded(),
	}
	for _, fb := range result.FeatureBillings {
		resp.FeatureBillings = append(resp.FeatureBillings, FeatureBillingResponse{
			FeatureID:   fb.FeatureID,
			UsageAmount: fb.UsageAmount,
			Amount:      fb.Amount.Amount().String(),
			QuotaAtCalc: fb.QuotaAtCalc,
		})
	}
	for _, adv := range result.Advisories {
		resp.Advisories = append(resp.Advisories, AdvisoryResponse{
			FeatureID: adv.FeatureID,
			Code:      adv.Code,
			Message:   adv.Message,
		})
	}
	return resp
}
