package pricing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillingCycle is the subscription's billing interval
type BillingCycle string

const (
	CycleMonthly BillingCycle = "MONTHLY"
	CycleAnnual  BillingCycle = "ANNUAL"
)

// IsValid returns true if the billing cycle is known
func (c BillingCycle) IsValid() bool {
	return c == CycleMonthly || c == CycleAnnual
}

// ChargeContext carries the subscription and plan facts the discount and
// tax rules evaluate against. It is assembled by the billing aggregator;
// rules never perform I/O.
type ChargeContext struct {
	TenantID         uuid.UUID
	PlanID           string
	Cycle            BillingCycle
	Quantity         int64           // purchased quantity (e.g. seats)
	MonthsSubscribed int             // tenure, for loyalty discounts
	PromoPercent     decimal.Decimal // active promotion, 0-100
	TaxRate          decimal.Decimal // e.g. 0.08 for 8%
}

// DiscountRule computes one discount contribution. Rules are pure
// functions of the original subtotal and the context; contributions are
// additive, so evaluation order only affects audit readability.
type DiscountRule interface {
	Name() string
	Apply(subtotal decimal.Decimal, ctx ChargeContext) decimal.Decimal
}

// RuleAmount records one rule's contribution for audit output
type RuleAmount struct {
	Rule   string          `json:"rule"`
	Amount decimal.Decimal `json:"amount"`
}

// Charge is the composed result of discounts and tax over a subtotal.
// The invariants discount <= subtotal and total >= 0 always hold.
type Charge struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	Discount  decimal.Decimal `json:"discount"`
	Tax       decimal.Decimal `json:"tax"`
	Total     decimal.Decimal `json:"total"`
	Breakdown []RuleAmount    `json:"breakdown,omitempty"`
}

// Composer applies a fixed, declared stack of discount rules and then
// tax. Discounts are each computed against the original subtotal, summed
// and capped at the subtotal; tax applies to what remains.
type Composer struct {
	rules []DiscountRule
}

// NewComposer creates a composer with rules in their declared order
func NewComposer(rules ...DiscountRule) *Composer {
	return &Composer{rules: rules}
}

// Compose produces the final charge for a subtotal
func (c *Composer) Compose(subtotal decimal.Decimal, ctx ChargeContext) Charge {
	if subtotal.IsNegative() {
		subtotal = decimal.Zero
	}

	breakdown := make([]RuleAmount, 0, len(c.rules))
	discount := decimal.Zero
	for _, rule := range c.rules {
		amount := rule.Apply(subtotal, ctx)
		if amount.IsNegative() {
			amount = decimal.Zero
		}
		discount = discount.Add(amount)
		breakdown = append(breakdown, RuleAmount{Rule: rule.Name(), Amount: amount})
	}

	// Stacked discounts never exceed the subtotal
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}

	taxable := subtotal.Sub(discount)
	tax := decimal.Zero
	if ctx.TaxRate.IsPositive() {
		tax = taxable.Mul(ctx.TaxRate)
	}

	return Charge{
		Subtotal:  subtotal,
		Discount:  discount,
		Tax:       tax,
		Total:     taxable.Add(tax),
		Breakdown: breakdown,
	}
}

// CycleDiscount grants a percentage off for longer billing cycles,
// typically annual prepay.
type CycleDiscount struct {
	Cycle   BillingCycle
	Percent decimal.Decimal
}

// Name returns the audit name of the rule
func (d CycleDiscount) Name() string { return "cycle" }

// Apply computes the cycle discount against the original subtotal
func (d CycleDiscount) Apply(subtotal decimal.Decimal, ctx ChargeContext) decimal.Decimal {
	if ctx.Cycle != d.Cycle {
		return decimal.Zero
	}
	return subtotal.Mul(d.Percent).Div(decimal.NewFromInt(100))
}

// VolumeBand is one quantity threshold of a volume discount
type VolumeBand struct {
	MinQuantity int64
	Percent     decimal.Decimal
}

// VolumeDiscount grants a percentage off based on purchased quantity.
// Bands must be declared in ascending MinQuantity order; the highest
// band at or below the quantity applies.
type VolumeDiscount struct {
	Bands []VolumeBand
}

// Name returns the audit name of the rule
func (d VolumeDiscount) Name() string { return "volume" }

// Apply computes the volume discount against the original subtotal
func (d VolumeDiscount) Apply(subtotal decimal.Decimal, ctx ChargeContext) decimal.Decimal {
	percent := decimal.Zero
	for _, band := range d.Bands {
		if ctx.Quantity >= band.MinQuantity {
			percent = band.Percent
		}
	}
	return subtotal.Mul(percent).Div(decimal.NewFromInt(100))
}

// PromotionDiscount applies the promotion percentage carried in the
// charge context, if any.
type PromotionDiscount struct{}

// Name returns the audit name of the rule
func (d PromotionDiscount) Name() string { return "promotion" }

// Apply computes the promotion discount against the original subtotal
func (d PromotionDiscount) Apply(subtotal decimal.Decimal, ctx ChargeContext) decimal.Decimal {
	if !ctx.PromoPercent.IsPositive() {
		return decimal.Zero
	}
	percent := ctx.PromoPercent
	hundred := decimal.NewFromInt(100)
	if percent.GreaterThan(hundred) {
		percent = hundred
	}
	return subtotal.Mul(percent).Div(hundred)
}

// LoyaltyDiscount grants a percentage off once a tenant has been
// subscribed for a minimum number of months.
type LoyaltyDiscount struct {
	MinMonths int
	Percent   decimal.Decimal
}

// Name returns the audit name of the rule
func (d LoyaltyDiscount) Name() string { return "loyalty" }

// Apply computes the loyalty discount against the original subtotal
func (d LoyaltyDiscount) Apply(subtotal decimal.Decimal, ctx ChargeContext) decimal.Decimal {
	if ctx.MonthsSubscribed < d.MinMonths {
		return decimal.Zero
	}
	return subtotal.Mul(d.Percent).Div(decimal.NewFromInt(100))
}

// DefaultRules returns the standard discount stack in its declared order:
// cycle, volume, promotion, loyalty.
func DefaultRules() []DiscountRule {
	return []DiscountRule{
		CycleDiscount{Cycle: CycleAnnual, Percent: decimal.NewFromInt(10)},
		VolumeDiscount{Bands: []VolumeBand{
			{MinQuantity: 10, Percent: decimal.NewFromInt(5)},
			{MinQuantity: 50, Percent: decimal.NewFromInt(10)},
			{MinQuantity: 200, Percent: decimal.NewFromInt(15)},
		}},
		PromotionDiscount{},
		LoyaltyDiscount{MinMonths: 12, Percent: decimal.NewFromInt(5)},
	}
}
