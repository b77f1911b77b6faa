package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/billflow/backend/internal/domain/billing"
	"github.com/billflow/backend/internal/domain/shared"
	"github.com/billflow/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InvoiceService materializes fail-closed billing runs into invoices.
// Persistence goes through the invoice repository, which saves the
// invoice rows and the generated domain events to the outbox in one
// database transaction.
type InvoiceService struct {
	billingService *BillingService
	invoiceRepo    billing.InvoiceRepository
	logger         *zap.Logger
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(
	billingService *BillingService,
	invoiceRepo billing.InvoiceRepository,
	logger *zap.Logger,
) *InvoiceService {
	return &InvoiceService{
		billingService: billingService,
		invoiceRepo:    invoiceRepo,
		logger:         logger,
	}
}

// GenerateInvoice runs a live billing calculation for the period and
// persists the result as an issued invoice. Any unresolved feature fails
// the run; no invoice is written in that case.
func (s *InvoiceService) GenerateInvoice(ctx context.Context, subscriptionID uuid.UUID, periodStart, periodEnd time.Time) (*billing.Invoice, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "generate",
		telemetry.WithAttribute(telemetry.SpanAttrSubscriptionID, subscriptionID.String()))
	defer span.End()

	// The calculation dominates CPU here, so its profile samples carry
	// the operation label.
	var (
		result *billing.BillingResult
		err    error
	)
	telemetry.WithProfilingLabels(ctx, telemetry.OperationLabels("GenerateInvoice", nil), func(ctx context.Context) {
		result, err = s.billingService.Calculate(ctx, CalculationInput{
			SubscriptionID: subscriptionID,
			PeriodStart:    periodStart,
			PeriodEnd:      periodEnd,
			Mode:           ModeInvoice,
		})
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	invoice, err := billing.NewInvoiceFromResult(result)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := s.invoiceRepo.Save(ctx, invoice); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to save invoice: %w", err)
	}
	invoice.ClearDomainEvents()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrInvoiceID, invoice.ID.String(),
		telemetry.SpanAttrTotal, invoice.Total.String(),
	)

	s.logger.Info("invoice generated",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("subscription_id", subscriptionID.String()),
		zap.String("total", invoice.Total.String()))
	return invoice, nil
}

// PayInvoice marks an issued invoice as paid and records the payment
// event through the outbox
func (s *InvoiceService) PayInvoice(ctx context.Context, invoiceID uuid.UUID) (*billing.Invoice, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "pay",
		telemetry.WithAttribute(telemetry.SpanAttrInvoiceID, invoiceID.String()))
	defer span.End()

	invoice, err := s.invoiceRepo.FindByID(ctx, invoiceID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}
	if invoice == nil {
		err := shared.NewDomainError("INVOICE_NOT_FOUND", "Invoice not found")
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := invoice.MarkPaid(); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.invoiceRepo.Save(ctx, invoice); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to save invoice: %w", err)
	}
	invoice.ClearDomainEvents()

	s.logger.Info("invoice paid", zap.String("invoice_id", invoice.ID.String()))
	return invoice, nil
}

// GetInvoice retrieves an invoice by ID
func (s *InvoiceService) GetInvoice(ctx context.Context, invoiceID uuid.UUID) (*billing.Invoice, error) {
	invoice, err := s.invoiceRepo.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}
	if invoice == nil {
		return nil, shared.NewDomainError("INVOICE_NOT_FOUND", "Invoice not found")
	}
	return invoice, nil
}
