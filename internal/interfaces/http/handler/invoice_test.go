package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appbilling "github.com/billflow/backend/internal/application/billing"
	"github.com/billflow/backend/internal/domain/billing"
	"github.com/billflow/backend/internal/domain/pricing"
	"github.com/billflow/backend/internal/domain/shared/valueobject"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func valueobjectMoney(amount string) valueobject.Money {
	return valueobject.NewMoneyUSD(decimal.RequireFromString(amount))
}

// mockInvoiceRepository is an in-memory billing.InvoiceRepository
type mockInvoiceRepository struct {
	invoices map[uuid.UUID]*billing.Invoice
}

func newMockInvoiceRepository() *mockInvoiceRepository {
	return &mockInvoiceRepository{invoices: make(map[uuid.UUID]*billing.Invoice)}
}

func (m *mockInvoiceRepository) Save(ctx context.Context, invoice *billing.Invoice) error {
	m.invoices[invoice.ID] = invoice
	return nil
}

func (m *mockInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	return m.invoices[id], nil
}

func newInvoiceTestRouter(subRepo *mockSubscriptionRepository, usageRepo *mockUsageRecordRepository, invoiceRepo *mockInvoiceRepository, configs map[string]*pricing.Config) *gin.Engine {
	billingSvc := appbilling.NewBillingService(
		subRepo,
		usageRepo,
		&mockConfigStore{configs: configs},
		pricing.NewComposer(),
		zap.NewNop(),
	)
	svc := appbilling.NewInvoiceService(billingSvc, invoiceRepo, zap.NewNop())
	h := NewInvoiceHandler(svc)

	router := gin.New()
	router.POST("/billing/invoices", h.GenerateInvoice)
	router.GET("/billing/invoices/:id", h.GetInvoice)
	router.POST("/billing/invoices/:id/pay", h.PayInvoice)
	return router
}

func TestInvoiceHandler_GenerateInvoice(t *testing.T) {
	subRepo := newMockSubscriptionRepository()
	sub := newStoredSubscription(t, subRepo)

	usageRepo := &mockUsageRecordRepository{}
	record, err := billing.NewUsageRecord(sub.TenantID, sub.ID, "api_calls", 250)
	require.NoError(t, err)
	require.NoError(t, usageRepo.Save(context.Background(), record))

	invoiceRepo := newMockInvoiceRepository()
	router := newInvoiceTestRouter(subRepo, usageRepo, invoiceRepo, map[string]*pricing.Config{
		"api_calls": usagePriceConfig("0.02"),
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/billing/invoices", bytes.NewReader(estimateBody(sub.ID)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Success bool            `json:"success"`
		Data    InvoiceResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, sub.ID.String(), resp.Data.SubscriptionID)
	assert.Equal(t, "ISSUED", resp.Data.Status)
	assert.Equal(t, "5", resp.Data.Total)
	require.Len(t, resp.Data.Lines, 1)
	assert.Equal(t, "api_calls", resp.Data.Lines[0].FeatureID)
	assert.Equal(t, int64(250), resp.Data.Lines[0].UsageAmount)
	assert.Len(t, invoiceRepo.invoices, 1)
}

func TestInvoiceHandler_GenerateInvoice_FailsClosedOnMissingConfig(t *testing.T) {
	subRepo := newMockSubscriptionRepository()
	sub := newStoredSubscription(t, subRepo)

	invoiceRepo := newMockInvoiceRepository()
	// No pricing configuration: an invoice run must fail, never short-bill
	router := newInvoiceTestRouter(subRepo, &mockUsageRecordRepository{}, invoiceRepo, map[string]*pricing.Config{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/billing/invoices", bytes.NewReader(estimateBody(sub.ID)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, invoiceRepo.invoices)
}

func TestInvoiceHandler_GetInvoice(t *testing.T) {
	subRepo := newMockSubscriptionRepository()
	sub := newStoredSubscription(t, subRepo)

	invoiceRepo := newMockInvoiceRepository()
	invoice := seedInvoice(t, invoiceRepo, sub)

	router := newInvoiceTestRouter(subRepo, &mockUsageRecordRepository{}, invoiceRepo, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/billing/invoices/"+invoice.ID.String(), nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data InvoiceResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, invoice.ID.String(), resp.Data.ID)
}

func TestInvoiceHandler_GetInvoice_NotFound(t *testing.T) {
	router := newInvoiceTestRouter(newMockSubscriptionRepository(), &mockUsageRecordRepository{}, newMockInvoiceRepository(), nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/billing/invoices/"+uuid.New().String(), nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInvoiceHandler_PayInvoice(t *testing.T) {
	subRepo := newMockSubscriptionRepository()
	sub := newStoredSubscription(t, subRepo)

	invoiceRepo := newMockInvoiceRepository()
	invoice := seedInvoice(t, invoiceRepo, sub)

	router := newInvoiceTestRouter(subRepo, &mockUsageRecordRepository{}, invoiceRepo, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/billing/invoices/"+invoice.ID.String()+"/pay", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data InvoiceResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "PAID", resp.Data.Status)
}

func TestInvoiceHandler_PayInvoice_AlreadyPaid(t *testing.T) {
	subRepo := newMockSubscriptionRepository()
	sub := newStoredSubscription(t, subRepo)

	invoiceRepo := newMockInvoiceRepository()
	invoice := seedInvoice(t, invoiceRepo, sub)
	require.NoError(t, invoice.MarkPaid())
	invoice.ClearDomainEvents()

	router := newInvoiceTestRouter(subRepo, &mockUsageRecordRepository{}, invoiceRepo, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/billing/invoices/"+invoice.ID.String()+"/pay", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

// seedInvoice materializes a clean billing result into the repository
func seedInvoice(t *testing.T, repo *mockInvoiceRepository, sub *billing.Subscription) *billing.Invoice {
	t.Helper()
	result := cleanResultFor(sub)
	invoice, err := billing.NewInvoiceFromResult(result)
	require.NoError(t, err)
	invoice.ClearDomainEvents()
	require.NoError(t, repo.Save(context.Background(), invoice))
	return invoice
}

func cleanResultFor(sub *billing.Subscription) *billing.BillingResult {
	return &billing.BillingResult{
		SubscriptionID: sub.ID,
		TenantID:       sub.TenantID,
		PlanID:         sub.PlanID,
		PeriodStart:    time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		Quantity:       sub.Quantity,
		FeatureBillings: map[string]billing.FeatureBilling{
			"api_calls": {
				FeatureID:   "api_calls",
				UsageAmount: 100,
				Amount:      valueobjectMoney("1.00"),
			},
		},
		Subtotal:    valueobjectMoney("1.00"),
		Discount:    valueobjectMoney("0"),
		Tax:         valueobjectMoney("0"),
		TotalAmount: valueobjectMoney("1.00"),
	}
}
