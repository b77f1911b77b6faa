package pricing

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/billflow/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Type identifies the pricing model applied to a feature's usage
type Type string

const (
	// TypeQuota includes a usage allowance; only overage is charged
	TypeQuota Type = "QUOTA"
	// TypeTiered charges each slice of usage at its tier's rate (water-fill)
	TypeTiered Type = "TIERED"
	// TypeUsage charges every unit at a single rate
	TypeUsage Type = "USAGE"
	// TypePackage charges a flat price for the smallest covering block
	TypePackage Type = "PACKAGE"
	// TypeTieredFixed charges the flat price of the bracket containing usage
	TypeTieredFixed Type = "TIERED_FIXED"
)

// IsValid returns true if the pricing type is known
func (t Type) IsValid() bool {
	switch t {
	case TypeQuota, TypeTiered, TypeUsage, TypePackage, TypeTieredFixed:
		return true
	}
	return false
}

// String returns the string representation of the pricing type
func (t Type) String() string {
	return string(t)
}

// Tier is one band of a pricing configuration. A tier covers the usage
// range [Min, Max); a nil Max means the tier is open-ended. Quantity is
// only meaningful for PACKAGE configurations, where it is the number of
// units the block covers.
type Tier struct {
	Min       int64           `json:"min"`
	Max       *int64          `json:"max,omitempty"`
	Quantity  *int64          `json:"quantity,omitempty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Width returns the number of units the tier covers, or -1 if open-ended
func (t Tier) Width() int64 {
	if t.Max == nil {
		return -1
	}
	return *t.Max - t.Min
}

// Contains reports whether usage falls inside the tier's [Min, Max) range
func (t Tier) Contains(usage int64) bool {
	if usage < t.Min {
		return false
	}
	return t.Max == nil || usage < *t.Max
}

// Config is an immutable pricing configuration resolved for one
// calculation. It is loaded per call from the pricing-config store; the
// resolver never caches or mutates it.
type Config struct {
	Type  Type   `json:"type"`
	Tiers []Tier `json:"tiers"`
}

// Validation errors. These are expected failures and are returned as
// typed values so callers can distinguish configuration problems from
// infrastructure errors.
var (
	ErrUnsupportedType = shared.NewDomainError("PRICING_UNSUPPORTED_TYPE", "Unsupported pricing type")
	ErrEmptyTiers      = shared.NewDomainError("PRICING_EMPTY_TIERS", "Pricing configuration has no tiers")
	ErrMalformedTiers  = shared.NewDomainError("PRICING_MALFORMED_TIERS", "Pricing tiers are malformed")
	ErrUnmatchedTier   = shared.NewDomainError("PRICING_UNMATCHED_TIER", "No pricing tier matches the usage value")
	ErrNegativeUsage   = shared.NewDomainError("PRICING_NEGATIVE_USAGE", "Usage amount cannot be negative")
)

// Validate checks the configuration against the invariants of its type.
// It is called at configuration-write time so malformed documents are
// rejected before they can affect a billing run.
func (c *Config) Validate() error {
	if !c.Type.IsValid() {
		return ErrUnsupportedType
	}
	if len(c.Tiers) == 0 {
		return ErrEmptyTiers
	}
	for _, tier := range c.Tiers {
		if tier.Min < 0 || tier.UnitPrice.IsNegative() {
			return ErrMalformedTiers
		}
		if tier.Max != nil && *tier.Max <= tier.Min {
			return ErrMalformedTiers
		}
	}

	switch c.Type {
	case TypeQuota:
		if len(c.Tiers) != 1 || c.Tiers[0].Max == nil {
			return ErrMalformedTiers
		}
	case TypeUsage:
		if len(c.Tiers) != 1 {
			return ErrMalformedTiers
		}
	case TypeTiered, TypeTieredFixed:
		return validateBands(c.Tiers)
	case TypePackage:
		for _, tier := range c.Tiers {
			if tier.Quantity == nil || *tier.Quantity <= 0 {
				return ErrMalformedTiers
			}
		}
	}
	return nil
}

// validateBands enforces that tiers are ordered by min, contiguous and
// non-overlapping, with only the last tier allowed to be open-ended.
func validateBands(tiers []Tier) error {
	for i, tier := range tiers {
		last := i == len(tiers)-1
		if tier.Max == nil && !last {
			return ErrMalformedTiers
		}
		if !last {
			next := tiers[i+1]
			if next.Min != *tier.Max {
				return ErrMalformedTiers
			}
		}
	}
	return nil
}

// ParseConfig parses and validates a pricing configuration document.
// Unknown fields are rejected so a typo in a stored document surfaces at
// write time rather than as a silent zero charge.
func ParseConfig(data []byte) (*Config, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse pricing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MarshalDocument serializes the configuration to its stored JSON form
func (c *Config) MarshalDocument() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(c)
}
