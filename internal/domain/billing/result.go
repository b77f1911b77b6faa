package billing

import (
	"time"

	"github.com/billflow/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// FeatureBilling is the charge computed for one feature in one billing
// run. It is created once per feature and never mutated afterwards; it is
// owned by the BillingResult that contains it.
type FeatureBilling struct {
	FeatureID   string            `json:"feature_id"`
	UsageAmount int64             `json:"usage_amount"`
	Amount      valueobject.Money `json:"amount"`
	QuotaAtCalc int64             `json:"quota_at_calc"`
}

// Advisory records a feature that could not be resolved during an
// estimate run. The feature's amount is zero and the advisory explains
// why; live invoice runs fail instead of producing advisories.
type Advisory struct {
	FeatureID string `json:"feature_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// BillingResult is the outcome of one calculation run. It is created
// fresh per call and never persisted by the billing core itself; the
// caller decides whether to materialize it into an invoice.
//
// TotalAmount = Subtotal - Discount + Tax, with Discount <= Subtotal
// always enforced by the composer.
type BillingResult struct {
	SubscriptionID  uuid.UUID                 `json:"subscription_id"`
	TenantID        uuid.UUID                 `json:"tenant_id"`
	PlanID          string                    `json:"plan_id"`
	PeriodStart     time.Time                 `json:"period_start"`
	PeriodEnd       time.Time                 `json:"period_end"`
	Quantity        int64                     `json:"quantity"`
	Subtotal        valueobject.Money         `json:"subtotal"`
	Discount        valueobject.Money         `json:"discount"`
	Tax             valueobject.Money         `json:"tax"`
	TotalAmount     valueobject.Money         `json:"total_amount"`
	FeatureBillings map[string]FeatureBilling `json:"feature_billings"`
	Advisories      []Advisory                `json:"advisories,omitempty"`
}

// IsDegraded returns true if any feature was skipped with an advisory
func (r *BillingResult) IsDegraded() bool {
	return len(r.Advisories) > 0
}
