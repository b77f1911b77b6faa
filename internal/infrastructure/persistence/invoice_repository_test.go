package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/billflow/backend/internal/domain/billing"
	"github.com/billflow/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupInvoiceTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&billing.Invoice{}, &billing.InvoiceLine{})
	require.NoError(t, err)

	return db
}

func testBillingResult() *billing.BillingResult {
	return &billing.BillingResult{
		SubscriptionID: uuid.New(),
		TenantID:       uuid.New(),
		PlanID:         "pro",
		PeriodStart:    time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		Quantity:       1,
		Subtotal:       valueobject.NewMoneyUSD(decimal.NewFromInt(45)),
		Discount:       valueobject.ZeroUSD(),
		Tax:            valueobject.ZeroUSD(),
		TotalAmount:    valueobject.NewMoneyUSD(decimal.NewFromInt(45)),
		FeatureBillings: map[string]billing.FeatureBilling{
			"api_calls": {
				FeatureID:   "api_calls",
				UsageAmount: 600,
				Amount:      valueobject.NewMoneyUSD(decimal.NewFromInt(45)),
			},
		},
	}
}

func TestInvoiceRepository_SaveAndFind(t *testing.T) {
	db := setupInvoiceTestDB(t)
	repo := NewGormInvoiceRepository(db)
	ctx := context.Background()

	invoice, err := billing.NewInvoiceFromResult(testBillingResult())
	require.NoError(t, err)

	require.NoError(t, repo.Save(ctx, invoice))

	found, err := repo.FindByID(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.ID, found.ID)
	assert.Equal(t, billing.InvoiceStatusIssued, found.Status)
	assert.True(t, found.Total.Equal(decimal.NewFromInt(45)))
	require.Len(t, found.Lines, 1)
	assert.Equal(t, "api_calls", found.Lines[0].FeatureID)
	assert.Equal(t, int64(600), found.Lines[0].UsageAmount)
}

func TestInvoiceRepository_FindByID_NotFound(t *testing.T) {
	db := setupInvoiceTestDB(t)
	repo := NewGormInvoiceRepository(db)

	found, err := repo.FindByID(context.Background(), uuid.New())

	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestInvoiceRepository_SaveWritesEventsToOutbox(t *testing.T) {
	db := setupInvoiceTestDB(t)
	repo := NewGormInvoiceRepository(db)
	writer := &recordingOutboxWriter{}
	repo.SetOutboxWriter(writer)

	invoice, err := billing.NewInvoiceFromResult(testBillingResult())
	require.NoError(t, err)

	require.NoError(t, repo.Save(context.Background(), invoice))

	require.Len(t, writer.events, 1)
	assert.True(t, writer.sawTx)
	assert.Equal(t, billing.EventTypeInvoiceGenerated, writer.events[0].EventType())
}

func TestInvoiceRepository_StatusTransitionPersists(t *testing.T) {
	db := setupInvoiceTestDB(t)
	repo := NewGormInvoiceRepository(db)
	ctx := context.Background()

	invoice, err := billing.NewInvoiceFromResult(testBillingResult())
	require.NoError(t, err)
	invoice.ClearDomainEvents()
	require.NoError(t, repo.Save(ctx, invoice))

	require.NoError(t, invoice.MarkPaid())
	invoice.ClearDomainEvents()
	require.NoError(t, repo.Save(ctx, invoice))

	found, err := repo.FindByID(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceStatusPaid, found.Status)
}
