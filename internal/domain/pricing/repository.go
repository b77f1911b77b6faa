package pricing

import (
	"context"

	"github.com/billflow/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// ErrConfigNotFound is returned when no pricing configuration is stored
// for a billing target. Callers decide whether to fall back to a default
// (estimates) or fail the run (live invoicing).
var ErrConfigNotFound = shared.NewDomainError("PRICING_CONFIG_NOT_FOUND", "No pricing configuration for target")

// ConfigStore resolves the effective pricing configuration for a billing
// target. Tenant-specific overrides take precedence over plan defaults.
// Implementations may read through a cache; the returned config is
// immutable for the duration of one calculation.
type ConfigStore interface {
	// EffectiveConfig returns the configuration for (tenant, target, cycle)
	EffectiveConfig(ctx context.Context, tenantID uuid.UUID, target string, cycle BillingCycle) (*Config, error)
	// SaveConfig validates and stores a configuration document
	SaveConfig(ctx context.Context, tenantID uuid.UUID, target string, cycle BillingCycle, cfg *Config) error
}
