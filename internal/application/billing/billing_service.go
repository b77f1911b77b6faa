package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/billflow/backend/internal/domain/billing"
	"github.com/billflow/backend/internal/domain/pricing"
	"github.com/billflow/backend/internal/domain/shared"
	"github.com/billflow/backend/internal/domain/shared/valueobject"
	"github.com/billflow/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RunMode selects the failure policy of a calculation run
type RunMode string

const (
	// ModeEstimate degrades on unresolved features: the feature is charged
	// zero and an advisory is attached to the result
	ModeEstimate RunMode = "ESTIMATE"
	// ModeInvoice fails the whole run on the first unresolved feature so a
	// bad configuration can never produce a silently short invoice
	ModeInvoice RunMode = "INVOICE"
)

// DefaultFetchTimeout bounds each usage or configuration fetch so one
// slow dependency cannot stall an entire billing run.
const DefaultFetchTimeout = 5 * time.Second

// CalculationInput identifies one billing run
type CalculationInput struct {
	SubscriptionID uuid.UUID
	PeriodStart    time.Time
	PeriodEnd      time.Time
	Mode           RunMode
}

// BillingService is the billing aggregator. It loads the subscription,
// sums usage per feature, resolves each feature's charge through the
// pricing configuration and composes discounts and tax into the final
// total. It performs no writes; callers persist the result if they
// want to keep it.
type BillingService struct {
	subscriptionRepo billing.SubscriptionRepository
	usageLedger      billing.UsageLedger
	configStore      pricing.ConfigStore
	composer         *pricing.Composer
	eventPublisher   shared.EventPublisher
	fetchTimeout     time.Duration
	logger           *zap.Logger
}

// NewBillingService creates a new BillingService. The event publisher is
// optional; when set, quota breaches observed during a run are published
// as best-effort notifications.
func NewBillingService(
	subscriptionRepo billing.SubscriptionRepository,
	usageLedger billing.UsageLedger,
	configStore pricing.ConfigStore,
	composer *pricing.Composer,
	logger *zap.Logger,
) *BillingService {
	return &BillingService{
		subscriptionRepo: subscriptionRepo,
		usageLedger:      usageLedger,
		configStore:      configStore,
		composer:         composer,
		fetchTimeout:     DefaultFetchTimeout,
		logger:           logger,
	}
}

// SetEventPublisher wires an event publisher for quota notifications
func (s *BillingService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetFetchTimeout overrides the per-fetch timeout
func (s *BillingService) SetFetchTimeout(timeout time.Duration) {
	if timeout > 0 {
		s.fetchTimeout = timeout
	}
}

// Calculate runs one billing calculation. In ESTIMATE mode unresolved
// features degrade to a zero charge with an advisory; in INVOICE mode
// they fail the run. Discounts and tax are composed over the subtotal of
// all feature charges.
func (s *BillingService) Calculate(ctx context.Context, input CalculationInput) (*billing.BillingResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "calculate",
		telemetry.WithAttribute(telemetry.SpanAttrSubscriptionID, input.SubscriptionID.String()),
		telemetry.WithAttribute("mode", string(input.Mode)))
	defer span.End()

	if input.SubscriptionID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_SUBSCRIPTION", "Subscription ID cannot be empty")
	}
	if !input.PeriodStart.Before(input.PeriodEnd) {
		return nil, shared.NewDomainError("INVALID_PERIOD", "Period start must be before period end")
	}
	if input.Mode != ModeEstimate && input.Mode != ModeInvoice {
		return nil, shared.NewDomainError("INVALID_MODE", "Unknown calculation mode")
	}

	sub, err := s.findSubscription(ctx, input.SubscriptionID)
	if err != nil {
		return nil, err
	}

	result := &billing.BillingResult{
		SubscriptionID:  sub.ID,
		TenantID:        sub.TenantID,
		PlanID:          sub.PlanID,
		PeriodStart:     input.PeriodStart,
		PeriodEnd:       input.PeriodEnd,
		Quantity:        sub.Quantity,
		FeatureBillings: make(map[string]billing.FeatureBilling, len(sub.Features)),
	}

	subtotal := valueobject.ZeroUSD()
	for _, featureID := range sub.FeatureIDs() {
		fb, advisory := s.resolveFeature(ctx, sub, featureID, input)
		if advisory != nil {
			if input.Mode == ModeInvoice {
				return nil, shared.NewDomainError(advisory.Code,
					fmt.Sprintf("Feature %s could not be billed: %s", featureID, advisory.Message))
			}
			s.logger.Warn("billing run degraded for feature",
				zap.String("subscription_id", sub.ID.String()),
				zap.String("feature_id", featureID),
				zap.String("code", advisory.Code))
			result.Advisories = append(result.Advisories, *advisory)
		}
		result.FeatureBillings[featureID] = fb
		if subtotal, err = subtotal.Add(fb.Amount); err != nil {
			return nil, fmt.Errorf("failed to accumulate subtotal: %w", err)
		}
	}

	charge := s.composer.Compose(subtotal.Amount(), sub.ChargeContext(input.PeriodEnd))
	result.Subtotal = valueobject.NewMoneyUSD(charge.Subtotal)
	result.Discount = valueobject.NewMoneyUSD(charge.Discount)
	result.Tax = valueobject.NewMoneyUSD(charge.Tax)
	result.TotalAmount = valueobject.NewMoneyUSD(charge.Total)

	return result, nil
}

// findSubscription loads the subscription under the per-fetch timeout
func (s *BillingService) findSubscription(ctx context.Context, id uuid.UUID) (*billing.Subscription, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	sub, err := s.subscriptionRepo.FindByID(fetchCtx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	if sub == nil {
		return nil, shared.NewDomainError("SUBSCRIPTION_NOT_FOUND", "Subscription not found")
	}
	return sub, nil
}

// resolveFeature computes one feature's charge. A non-nil advisory means
// the feature could not be resolved; the returned billing then carries a
// zero amount for ESTIMATE callers to keep.
func (s *BillingService) resolveFeature(ctx context.Context, sub *billing.Subscription, featureID string, input CalculationInput) (billing.FeatureBilling, *billing.Advisory) {
	zero := billing.FeatureBilling{FeatureID: featureID, Amount: valueobject.ZeroUSD()}

	usage, err := s.sumUsage(ctx, sub, featureID, input)
	if err != nil {
		return zero, advisoryFor(featureID, "USAGE_UNAVAILABLE", err)
	}
	zero.UsageAmount = usage

	cfg, err := s.effectiveConfig(ctx, sub, featureID)
	if err != nil {
		return zero, advisoryFor(featureID, "PRICING_CONFIG_NOT_FOUND", err)
	}

	amount, err := pricing.Resolve(usage, *cfg)
	if err != nil {
		return zero, advisoryFor(featureID, "PRICING_RESOLVE_FAILED", err)
	}

	fb := billing.FeatureBilling{
		FeatureID:   featureID,
		UsageAmount: usage,
		Amount:      valueobject.NewMoneyUSD(amount),
	}
	if cfg.Type == pricing.TypeQuota && cfg.Tiers[0].Max != nil {
		fb.QuotaAtCalc = *cfg.Tiers[0].Max
		if usage > fb.QuotaAtCalc {
			s.notifyQuotaExceeded(ctx, sub, featureID, usage, fb.QuotaAtCalc)
		}
	}
	return fb, nil
}

// sumUsage totals the feature's usage for the period under the per-fetch
// timeout
func (s *BillingService) sumUsage(ctx context.Context, sub *billing.Subscription, featureID string, input CalculationInput) (int64, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()
	return s.usageLedger.SumUsage(fetchCtx, sub.TenantID, sub.ID, featureID, input.PeriodStart, input.PeriodEnd)
}

// effectiveConfig resolves the feature's pricing configuration under the
// per-fetch timeout
func (s *BillingService) effectiveConfig(ctx context.Context, sub *billing.Subscription, featureID string) (*pricing.Config, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()
	return s.configStore.EffectiveConfig(fetchCtx, sub.TenantID, featureID, sub.Cycle)
}

// notifyQuotaExceeded publishes a quota breach as a best-effort
// notification. Failures are logged and never affect the billing run.
func (s *BillingService) notifyQuotaExceeded(ctx context.Context, sub *billing.Subscription, featureID string, usage, quota int64) {
	if s.eventPublisher == nil {
		return
	}
	telemetry.AddEvent(telemetry.SpanFromContext(ctx), "quota_exceeded",
		telemetry.SpanAttrFeatureID, featureID,
		"usage", usage,
		"quota", quota,
	)

	event := billing.NewQuotaExceededEvent(sub.TenantID, sub.ID, featureID, usage, quota)
	if err := s.eventPublisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish quota exceeded event",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("feature_id", featureID),
			zap.Error(err))
	}
}

// advisoryFor maps a resolution failure to an advisory, preserving the
// domain error code when one is present
func advisoryFor(featureID, fallbackCode string, err error) *billing.Advisory {
	code := fallbackCode
	message := err.Error()
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code = domainErr.Code
		message = domainErr.Message
	}
	return &billing.Advisory{FeatureID: featureID, Code: code, Message: message}
}
