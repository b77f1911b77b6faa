package handler

import (
	"time"

	appbilling "github.com/billflow/backend/internal/application/billing"
	"github.com/billflow/backend/internal/domain/billing"
	"github.com/billflow/backend/internal/domain/pricing"
	"github.com/billflow/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SubscriptionHandler handles subscription HTTP requests
type SubscriptionHandler struct {
	BaseHandler
	subscriptionService *appbilling.SubscriptionService
}

// NewSubscriptionHandler creates a new subscription handler
func NewSubscriptionHandler(subscriptionService *appbilling.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionService: subscriptionService,
	}
}

// ============================================================================
// Request/Response DTOs
// ============================================================================

// CreateSubscriptionRequest represents the payload for creating a subscription
type CreateSubscriptionRequest struct {
	PlanID     string   `json:"plan_id" binding:"required"`
	Cycle      string   `json:"cycle" binding:"required,billingcycle"`
	Quantity   int64    `json:"quantity" binding:"omitempty,min=1"`
	FeatureIDs []string `json:"feature_ids" binding:"required,min=1,dive,required"`
}

// SubscriptionResponse represents a subscription in API responses
type SubscriptionResponse struct {
	ID           string   `json:"id"`
	TenantID     string   `json:"tenant_id"`
	PlanID       string   `json:"plan_id"`
	Cycle        string   `json:"cycle"`
	Quantity     int64    `json:"quantity"`
	StartedAt    string   `json:"started_at"`
	PromoPercent string   `json:"promo_percent"`
	TaxRate      string   `json:"tax_rate"`
	FeatureIDs   []string `json:"feature_ids"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
}

// ============================================================================
// Handlers
// ============================================================================

// CreateSubscription godoc
// @ID           createSubscription
// @Summary      Create a subscription
// @Description  Enroll the current tenant in a plan with the given billable features
// @Tags         billing
// @Accept       json
// @Produce      json
// @Param        request body CreateSubscriptionRequest true "Subscription details"
// @Success      201 {object} APIResponse[SubscriptionResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /billing/subscriptions [post]
func (h *SubscriptionHandler) CreateSubscription(c *gin.Context) {
	var req CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RejectInvalidPayload(c, err)
		return
	}

	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID format")
		return
	}

	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}

	sub, err := h.subscriptionService.CreateSubscription(c.Request.Context(), appbilling.CreateSubscriptionRequest{
		TenantID:   tenantID,
		PlanID:     req.PlanID,
		Cycle:      pricing.BillingCycle(req.Cycle),
		Quantity:   quantity,
		FeatureIDs: req.FeatureIDs,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toSubscriptionResponse(sub))
}

// GetSubscription godoc
// @ID           getSubscription
// @Summary      Get a subscription by ID
// @Description  Retrieve a subscription with its billable features
// @Tags         billing
// @Produce      json
// @Param        id path string true "Subscription ID" format(uuid)
// @Success      200 {object} APIResponse[SubscriptionResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /billing/subscriptions/{id} [get]
func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid subscription ID")
		return
	}

	sub, err := h.subscriptionService.GetSubscription(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toSubscriptionResponse(sub))
}

// ============================================================================
// Conversion functions
// ============================================================================

func toSubscriptionResponse(sub *billing.Subscription) SubscriptionResponse {
	return SubscriptionResponse{
		ID:           sub.ID.String(),
		TenantID:     sub.TenantID.String(),
		PlanID:       sub.PlanID,
		Cycle:        string(sub.Cycle),
		Quantity:     sub.Quantity,
		StartedAt:    sub.StartedAt.Format(time.RFC3339),
		PromoPercent: sub.PromoPercent.String(),
		TaxRate:      sub.TaxRate.String(),
		FeatureIDs:   sub.FeatureIDs(),
		CreatedAt:    sub.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    sub.UpdatedAt.Format(time.RFC3339),
	}
}
