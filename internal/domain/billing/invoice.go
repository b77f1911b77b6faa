package billing

import (
	"time"

	"github.com/billflow/backend/internal/domain/shared"
	"github.com/billflow/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents the lifecycle state of an invoice
type InvoiceStatus string

const (
	InvoiceStatusIssued InvoiceStatus = "ISSUED"
	InvoiceStatusPaid   InvoiceStatus = "PAID"
	InvoiceStatusVoided InvoiceStatus = "VOIDED"
)

// Invoice is a billing result materialized for collection. Invoices are
// only created from fail-closed calculation runs; a degraded estimate can
// never become an invoice.
type Invoice struct {
	shared.TenantAggregateRoot
	SubscriptionID uuid.UUID             `gorm:"type:uuid;not null;index"`
	PlanID         string                `gorm:"not null"`
	PeriodStart    time.Time             `gorm:"not null"`
	PeriodEnd      time.Time             `gorm:"not null"`
	Currency       valueobject.Currency  `gorm:"not null;default:USD"`
	Subtotal       decimal.Decimal       `gorm:"type:numeric(18,4);not null"`
	Discount       decimal.Decimal       `gorm:"type:numeric(18,4);not null"`
	Tax            decimal.Decimal       `gorm:"type:numeric(18,4);not null"`
	Total          decimal.Decimal       `gorm:"type:numeric(18,4);not null"`
	Status         InvoiceStatus         `gorm:"not null;default:ISSUED"`
	Lines          []InvoiceLine         `gorm:"foreignKey:InvoiceID"`
}

// InvoiceLine is the per-feature breakdown of an invoice
type InvoiceLine struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	InvoiceID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	FeatureID   string          `gorm:"not null"`
	UsageAmount int64           `gorm:"not null"`
	Amount      decimal.Decimal `gorm:"type:numeric(18,4);not null"`
}

// TableName returns the database table name for GORM
func (i *Invoice) TableName() string {
	return "invoices"
}

// TableName returns the database table name for GORM
func (l *InvoiceLine) TableName() string {
	return "invoice_lines"
}

// NewInvoiceFromResult materializes a billing result into an invoice and
// records the generation event. Degraded results are rejected: an invoice
// must never silently carry a zero charge for an unresolved feature.
func NewInvoiceFromResult(result *BillingResult) (*Invoice, error) {
	if result == nil {
		return nil, shared.ErrInvalidInput
	}
	if result.IsDegraded() {
		return nil, shared.NewDomainError("DEGRADED_RESULT", "Cannot invoice a degraded billing result")
	}

	invoice := &Invoice{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(result.TenantID),
		SubscriptionID:      result.SubscriptionID,
		PlanID:              result.PlanID,
		PeriodStart:         result.PeriodStart,
		PeriodEnd:           result.PeriodEnd,
		Currency:            result.TotalAmount.Currency(),
		Subtotal:            result.Subtotal.Amount(),
		Discount:            result.Discount.Amount(),
		Tax:                 result.Tax.Amount(),
		Total:               result.TotalAmount.Amount(),
		Status:              InvoiceStatusIssued,
	}
	for _, fb := range result.FeatureBillings {
		invoice.Lines = append(invoice.Lines, InvoiceLine{
			ID:          uuid.New(),
			InvoiceID:   invoice.ID,
			FeatureID:   fb.FeatureID,
			UsageAmount: fb.UsageAmount,
			Amount:      fb.Amount.Amount(),
		})
	}

	invoice.AddDomainEvent(NewInvoiceGeneratedEvent(invoice))
	return invoice, nil
}

// MarkPaid transitions the invoice to PAID and records the payment event
func (i *Invoice) MarkPaid() error {
	if i.Status != InvoiceStatusIssued {
		return shared.ErrInvalidState
	}
	i.Status = InvoiceStatusPaid
	i.UpdatedAt = time.Now()
	i.AddDomainEvent(NewPaymentSucceededEvent(i))
	return nil
}
