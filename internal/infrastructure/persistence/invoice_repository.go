package persistence

import (
	"context"
	"errors"

	"github.com/billflow/backend/internal/domain/billing"
	"github.com/billflow/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormInvoiceRepository implements billing.InvoiceRepository
type GormInvoiceRepository struct {
	db          *gorm.DB
	outboxSaver shared.OutboxWriter // optional, for transactional outbox pattern
}

// NewGormInvoiceRepository creates a new invoice repository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// SetOutboxWriter sets the outbox writer for transactional event publishing
func (r *GormInvoiceRepository) SetOutboxWriter(saver shared.OutboxWriter) {
	r.outboxSaver = saver
}

// FindByID retrieves an invoice with its line items.
// Returns (nil, nil) when no invoice exists so callers can map the miss
// to their own domain error.
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	var invoice billing.Invoice
	if err := r.db.WithContext(ctx).
		Preload("Lines").
		First(&invoice, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

// Save persists the invoice and its pending domain events atomically.
// The outbox rows commit or roll back with the invoice itself, which is
// what makes InvoiceGenerated delivery reliable.
func (r *GormInvoiceRepository) Save(ctx context.Context, invoice *billing.Invoice) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Lines").Save(invoice).Error; err != nil {
			return err
		}

		for i := range invoice.Lines {
			if err := tx.Save(&invoice.Lines[i]).Error; err != nil {
				return err
			}
		}

		if events := invoice.GetDomainEvents(); r.outboxSaver != nil && len(events) > 0 {
			if err := r.outboxSaver.SaveEvents(ctx, tx, events...); err != nil {
				return err
			}
		}

		return nil
	})
}

var _ billing.InvoiceRepository = (*GormInvoiceRepository)(nil)
