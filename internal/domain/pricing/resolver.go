package pricing

import (
	"github.com/shopspring/decimal"
)

// Resolve computes the charge for a usage amount under a pricing
// configuration. It is pure and total: every input yields either an
// amount >= 0 or a typed failure, never a panic. Callers decide whether a
// failure aborts the run (live invoicing) or degrades it (estimates).
func Resolve(usage int64, cfg Config) (decimal.Decimal, error) {
	if usage < 0 {
		return decimal.Zero, ErrNegativeUsage
	}
	if len(cfg.Tiers) == 0 {
		return decimal.Zero, ErrEmptyTiers
	}

	switch cfg.Type {
	case TypeQuota:
		return resolveQuota(usage, cfg.Tiers)
	case TypeUsage:
		return resolveUsage(usage, cfg.Tiers)
	case TypeTiered:
		return resolveTiered(usage, cfg.Tiers)
	case TypePackage:
		return resolvePackage(usage, cfg.Tiers)
	case TypeTieredFixed:
		return resolveTieredFixed(usage, cfg.Tiers)
	default:
		return decimal.Zero, ErrUnsupportedType
	}
}

// resolveQuota charges only the overage beyond the included allowance.
// The single tier's max is the quota.
func resolveQuota(usage int64, tiers []Tier) (decimal.Decimal, error) {
	tier := tiers[0]
	if tier.Max == nil {
		return decimal.Zero, ErrMalformedTiers
	}
	overage := usage - *tier.Max
	if overage <= 0 {
		return decimal.Zero, nil
	}
	return tier.UnitPrice.Mul(decimal.NewFromInt(overage)), nil
}

// resolveUsage charges every unit at the single metered rate
func resolveUsage(usage int64, tiers []Tier) (decimal.Decimal, error) {
	return tiers[0].UnitPrice.Mul(decimal.NewFromInt(usage)), nil
}

// resolveTiered walks the bands in ascending min order and charges the
// slice of usage inside each band at that band's rate. Bands cover
// [min, max), so the unit exactly at a boundary is billed at the next
// band's rate and no unit is ever charged twice.
func resolveTiered(usage int64, tiers []Tier) (decimal.Decimal, error) {
	if err := validateBands(tiers); err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, tier := range tiers {
		if usage <= tier.Min {
			break
		}
		upper := usage
		if tier.Max != nil && *tier.Max < upper {
			upper = *tier.Max
		}
		units := upper - tier.Min
		total = total.Add(tier.UnitPrice.Mul(decimal.NewFromInt(units)))
	}
	return total, nil
}

// resolvePackage selects the smallest block covering the usage and
// charges its flat price. Usage exceeding every block is billed at the
// largest block's price; there is no per-unit overage in this mode.
func resolvePackage(usage int64, tiers []Tier) (decimal.Decimal, error) {
	var best *Tier
	var largest *Tier
	for i := range tiers {
		tier := &tiers[i]
		if tier.Quantity == nil || *tier.Quantity <= 0 {
			return decimal.Zero, ErrMalformedTiers
		}
		if largest == nil || *tier.Quantity > *largest.Quantity {
			largest = tier
		}
		if *tier.Quantity >= usage {
			if best == nil || *tier.Quantity < *best.Quantity {
				best = tier
			}
		}
	}
	if best == nil {
		best = largest
	}
	return best.UnitPrice, nil
}

// resolveTieredFixed charges the flat price of the single bracket
// containing the usage value. Usage outside every bracket is a failure,
// not a zero charge.
func resolveTieredFixed(usage int64, tiers []Tier) (decimal.Decimal, error) {
	if err := validateBands(tiers); err != nil {
		return decimal.Zero, err
	}
	for _, tier := range tiers {
		if tier.Contains(usage) {
			return tier.UnitPrice, nil
		}
	}
	return decimal.Zero, ErrUnmatchedTier
}
