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

// InvoiceHandler handles invoice HTTP requests
type InvoiceHandler struct {
	BaseHandler
	invoiceService *appbilling.InvoiceService
	metrics        *telemetry.BillingMetrics
}

// NewInvoiceHandler creates a new invoice handler
func NewInvoiceHandler(invoiceService *appbilling.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceService: invoiceService,
	}
}

// SetMetrics wires a metrics recorder; nil disables recording
func (h *InvoiceHandler) SetMetrics(metrics *telemetry.BillingMetrics) {
	h.metrics = metrics
}

// ============================================================================
// Request/Response DTOs
// ============================================================================

// GenerateInvoiceRequest represents an invoice generation request
type GenerateInvoiceRequest struct {
	SubscriptionID string    `json:"subscription_id" binding:"required,uuid"`
	PeriodStart    time.Time `json:"period_start" binding:"required"`
	PeriodEnd      time.Time `json:"period_end" binding:"required"`
}

// InvoiceLineResponse represents one line of an invoice
type InvoiceLineResponse struct {
	ID          string `json:"id"`
	FeatureID   string `json:"feature_id"`
	UsageAmount int64  `json:"usage_amount"`
	Amount      string `json:"amount"`
}

// InvoiceResponse represents an invoice in API responses
type InvoiceResponse struct {
	ID             string                `json:"id"`
	TenantID       string                `json:"tenant_id"`
	SubscriptionID string                `json:"subscription_id"`
	PlanID         string                `json:"plan_id"`
	PeriodStart    string                `json:"period_start"`
	PeriodEnd      string                `json:"period_end"`
	Currency       string                `json:"currency"`
	Subtotal       string                `json:"subtotal"`
	Discount       string                `json:"discount"`
	Tax            string                `json:"tax"`
	Total          string                `json:"total"`
	Status         string                `json:"status"`
	Lines          []InvoiceLineResponse `json:"lines"`
	CreatedAt      string                `json:"created_at"`
	UpdatedAt      string                `json:"updated_at"`
}

// ============================================================================
// Handlers
// ============================================================================

// GenerateInvoice godoc
// @ID           generateInvoice
// @Summary      Generate an invoice
// @Description  Run a fail-closed billing calculation and persist it as an issued invoice
// @Tags         billing
// @Accept       json
// @Produce      json
// @Param        request body GenerateInvoiceRequest true "Invoice parameters"
// @Success      201 {object} APIResponse[InvoiceResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /billing/invoices [post]
func (h *InvoiceHandler) GenerateInvoice(c *gin.Context) {
	var req GenerateInvoiceRequest
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
	invoice, err := h.invoiceService.GenerateInvoice(c.Request.Context(), subscriptionID, req.PeriodStart, req.PeriodEnd)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordInvoiceWithAmount(c.Request.Context(), invoice.TenantID, invoice.PlanID, invoice.Total)
		h.metrics.RecordCalculationDuration(c.Request.Context(), telemetry.BillingModeInvoice, time.Since(start))
	}

	h.Created(c, toInvoiceResponse(invoice))
}

// GetInvoice godoc
// @ID           getInvoice
// @Summary      Get an invoice by ID
// @Description  Retrieve an invoice with its per-feature lines
// @Tags         billing
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Success      200 {object} APIResponse[InvoiceResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /billing/invoices/{id} [get]
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID")
		return
	}

	invoice, err := h.invoiceService.GetInvoice(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toInvoiceResponse(invoice))
}

// PayInvoice godoc
// @ID           payInvoice
// @Summary      Mark an invoice as paid
// @Description  Transition an issued invoice to PAID and record the payment event
// @Tags         billing
// @Accept       json
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Success      200 {object} APIResponse[InvoiceResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /billing/invoices/{id}/pay [post]
func (h *InvoiceHandler) PayInvoice(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID")
		return
	}

	invoice, err := h.invoiceService.PayInvoice(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toInvoiceResponse(invoice))
}

// ============================================================================
// Conversion functions
// ============================================================================

func toInvoiceResponse(invoice *billing.Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		ID:             invoice.ID.String(),
		TenantID:       invoice.TenantID.String(),
		SubscriptionID: invoice.SubscriptionID.String(),
		PlanID:         invoice.PlanID,
		PeriodStart:    invoice.PeriodStart.Format(time.RFC3339),
		PeriodEnd:      invoice.PeriodEnd.Format(time.RFC3339),
		Currency:       string(invoice.Currency),
		Subtotal:       invoice.Subtotal.String(),
		Discount:       invoice.Discount.String(),
		Tax:            invoice.Tax.String(),
		Total:          invoice.Total.String(),
		Status:         string(invoice.Status),
		CreatedAt:      invoice.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      invoice.UpdatedAt.Format(time.RFC3339),
	}
	for _, line := range invoice.Lines {
		resp.Lines = append(resp.Lines, InvoiceLineResponse{
			ID:          line.ID.String(),
			FeatureID:   line.FeatureID,
			UsageAmount: line.UsageAmount,
			Amount:      line.Amount.String(),
		})
	}
	return resp
}
