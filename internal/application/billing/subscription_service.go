package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/billflow/backend/internal/domain/billing"
	"github.com/billflow/backend/internal/domain/pricing"
	"github.com/billflow/backend/internal/domain/shared"
	"github.com/billflow/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SubscriptionService manages subscriptions and their usage records
type SubscriptionService struct {
	subscriptionRepo billing.SubscriptionRepository
	usageRepo        billing.UsageRecordRepository
	logger           *zap.Logger
}

// NewSubscriptionService creates a new SubscriptionService
func NewSubscriptionService(
	subscriptionRepo billing.SubscriptionRepository,
	usageRepo billing.UsageRecordRepository,
	logger *zap.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		subscriptionRepo: subscriptionRepo,
		usageRepo:        usageRepo,
		logger:           logger,
	}
}

// CreateSubscriptionRequest carries the inputs for a new subscription
type CreateSubscriptionRequest struct {
	TenantID   uuid.UUID
	PlanID     string
	Cycle      pricing.BillingCycle
	Quantity   int64
	FeatureIDs []string
}

// CreateSubscription creates a subscription. The creation event is saved
// to the outbox within the same transaction as the subscription rows.
func (s *SubscriptionService) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*billing.Subscription, error) {
	sub, err := billing.NewSubscription(req.TenantID, req.PlanID, req.Cycle, req.Quantity, req.FeatureIDs)
	if err != nil {
		return nil, err
	}

	if err := s.subscriptionRepo.Save(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}
	sub.ClearDomainEvents()

	s.logger.Info("subscription created",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("plan_id", sub.PlanID),
		zap.String("cycle", string(sub.Cycle)))
	return sub, nil
}

// GetSubscription retrieves a subscription by ID
func (s *SubscriptionService) GetSubscription(ctx context.Context, id uuid.UUID) (*billing.Subscription, error) {
	sub, err := s.subscriptionRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	if sub == nil {
		return nil, shared.NewDomainError("SUBSCRIPTION_NOT_FOUND", "Subscription not found")
	}
	return sub, nil
}

// RecordUsageRequest carries one usage measurement
type RecordUsageRequest struct {
	TenantID       uuid.UUID
	SubscriptionID uuid.UUID
	FeatureID      string
	Quantity       int64
	SourceType     string
	SourceID       string
	RecordedAt     *time.Time
}

// RecordUsage appends a usage record to the ledger
func (s *SubscriptionService) RecordUsage(ctx context.Context, req RecordUsageRequest) (*billing.UsageRecord, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "usage", "record",
		telemetry.WithAttribute(telemetry.SpanAttrSubscriptionID, req.SubscriptionID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrFeatureID, req.FeatureID))
	defer span.End()

	record, err := billing.NewUsageRecord(req.TenantID, req.SubscriptionID, req.FeatureID, req.Quantity)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if req.SourceType != "" {
		record.WithSource(req.SourceType, req.SourceID)
	}
	if req.RecordedAt != nil {
		record.WithRecordedAt(*req.RecordedAt)
	}

	if err := s.usageRepo.Save(ctx, record); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to save usage record: %w", err)
	}

	telemetry.SetAttribute(span, telemetry.SpanAttrUsageRecordID, record.ID.String())
	return record, nil
}

// RecordUsageBatch appends multiple usage records in one transaction
func (s *SubscriptionService) RecordUsageBatch(ctx context.Context, reqs []RecordUsageRequest) ([]*billing.UsageRecord, error) {
	records := make([]*billing.UsageRecord, 0, len(reqs))
	for _, req := range reqs {
		record, err := billing.NewUsageRecord(req.TenantID, req.SubscriptionID, req.FeatureID, req.Quantity)
		if err != nil {
			return nil, err
		}
		if req.SourceType != "" {
			record.WithSource(req.SourceType, req.SourceID)
		}
		if req.RecordedAt != nil {
			record.WithRecordedAt(*req.RecordedAt)
		}
		records = append(records, record)
	}

	if err := s.usageRepo.SaveBatch(ctx, records); err != nil {
		return nil, fmt.Errorf("failed to save usage records: %w", err)
	}
	return records, nil
}
