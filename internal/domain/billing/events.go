package billing

import (
	"github.com/billflow/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Event types published by the billing domain. Payload schemas are
// declared by the event structs below and registered with the event
// serializer at startup.
const (
	EventTypeSubscriptionCreated = "billing.subscription.created"
	EventTypeInvoiceGenerated    = "billing.invoice.generated"
	EventTypePaymentSucceeded    = "billing.payment.succeeded"
	EventTypeQuotaExceeded       = "billing.quota.exceeded"
)

// Aggregate type names used on outbox rows
const (
	AggregateTypeSubscription = "Subscription"
	AggregateTypeInvoice      = "Invoice"
)

// SubscriptionCreatedEvent is published when a subscription is created
type SubscriptionCreatedEvent struct {
	shared.BaseDomainEvent
	PlanID   string `json:"plan_id"`
	Cycle    string `json:"cycle"`
	Quantity int64  `json:"quantity"`
}

// NewSubscriptionCreatedEvent creates a SubscriptionCreatedEvent
func NewSubscriptionCreatedEvent(sub *Subscription) *SubscriptionCreatedEvent {
	return &SubscriptionCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSubscriptionCreated, AggregateTypeSubscription, sub.ID, sub.TenantID),
		PlanID:          sub.PlanID,
		Cycle:           string(sub.Cycle),
		Quantity:        sub.Quantity,
	}
}

// InvoiceGeneratedEvent is published when a billing result is
// materialized into an invoice
type InvoiceGeneratedEvent struct {
	shared.BaseDomainEvent
	SubscriptionID uuid.UUID `json:"subscription_id"`
	PlanID         string    `json:"plan_id"`
	PeriodStart    string    `json:"period_start"`
	PeriodEnd      string    `json:"period_end"`
	Currency       string    `json:"currency"`
	Subtotal       string    `json:"subtotal"`
	Discount       string    `json:"discount"`
	Tax            string    `json:"tax"`
	Total          string    `json:"total"`
}

// NewInvoiceGeneratedEvent creates an InvoiceGeneratedEvent
func NewInvoiceGeneratedEvent(invoice *Invoice) *InvoiceGeneratedEvent {
	return &InvoiceGeneratedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceGenerated, AggregateTypeInvoice, invoice.ID, invoice.TenantID),
		SubscriptionID:  invoice.SubscriptionID,
		PlanID:          invoice.PlanID,
		PeriodStart:     invoice.PeriodStart.UTC().Format("2006-01-02T15:04:05Z07:00"),
		PeriodEnd:       invoice.PeriodEnd.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Currency:        string(invoice.Currency),
		Subtotal:        invoice.Subtotal.String(),
		Discount:        invoice.Discount.String(),
		Tax:             invoice.Tax.String(),
		Total:           invoice.Total.String(),
	}
}

// PaymentSucceededEvent is published when an invoice is paid
type PaymentSucceededEvent struct {
	shared.BaseDomainEvent
	SubscriptionID uuid.UUID `json:"subscription_id"`
	Currency       string    `json:"currency"`
	Amount         string    `json:"amount"`
}

// NewPaymentSucceededEvent creates a PaymentSucceededEvent
func NewPaymentSucceededEvent(invoice *Invoice) *PaymentSucceededEvent {
	return &PaymentSucceededEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentSucceeded, AggregateTypeInvoice, invoice.ID, invoice.TenantID),
		SubscriptionID:  invoice.SubscriptionID,
		Currency:        string(invoice.Currency),
		Amount:          invoice.Total.String(),
	}
}

// QuotaExceededEvent is published when a feature's usage passes its
// included quota during a billing run
type QuotaExceededEvent struct {
	shared.BaseDomainEvent
	FeatureID   string `json:"feature_id"`
	UsageAmount int64  `json:"usage_amount"`
	Quota       int64  `json:"quota"`
}

// NewQuotaExceededEvent creates a QuotaExceededEvent
func NewQuotaExceededEvent(tenantID, subscriptionID uuid.UUID, featureID string, usage, quota int64) *QuotaExceededEvent {
	return &QuotaExceededEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeQuotaExceeded, AggregateTypeSubscription, subscriptionID, tenantID),
		FeatureID:       featureID,
		UsageAmount:     usage,
		Quota:           quota,
	}
}
