// Package pool stores parameter values harvested from API responses,
// keyed by semantic type, so a load run can feed real subscription and
// invoice IDs back into later requests.
package pool

import (
	"sync/atomic"
	"time"
)

// SemanticType classifies what a pooled value means to the billing API,
// e.g. entity.subscription.id or billing.invoice.id.
type SemanticType string

const (
	SemanticTypeTenantID       SemanticType = "entity.tenant.id"
	SemanticTypeSubscriptionID SemanticType = "entity.subscription.id"
	SemanticTypePlanID         SemanticType = "entity.plan.id"
	SemanticTypeFeatureID      SemanticType = "entity.feature.id"

	SemanticTypeInvoiceID     SemanticType = "billing.invoice.id"
	SemanticTypeUsageRecordID SemanticType = "billing.usage_record.id"
	SemanticTypeOutboxEventID SemanticType = "billing.outbox_event.id"

	SemanticTypeQuantity  SemanticType = "common.quantity"
	SemanticTypePeriod    SemanticType = "common.period"
	SemanticTypeTimestamp SemanticType = "common.timestamp"
	SemanticTypeUUID      SemanticType = "common.uuid"
)

// ParameterValue is one pooled value plus its provenance and expiry.
// Value is treated as immutable once stored; access statistics are
// atomic so Touch is safe from concurrent getters.
type ParameterValue struct {
	Value        any
	SemanticType SemanticType

	// Where the value came from, e.g. "POST /billing/subscriptions"
	// and the JSONPath "$.data.id" it was extracted with.
	SourceEndpoint string
	ResponsePath   string

	CreatedAt time.Time
	ExpiresAt time.Time // zero means the value never expires

	accessCount atomic.Int64
	lastAccess  atomic.Int64 // unix nanoseconds
}

// NewParameterValue wraps a harvested value. A ttl of 0 keeps it alive
// for the whole run.
func NewParameterValue(value any, semanticType SemanticType, ttl time.Duration) *ParameterValue {
	now := time.Now()
	pv := &ParameterValue{
		Value:        value,
		SemanticType: semanticType,
		CreatedAt:    now,
	}
	pv.lastAccess.Store(now.UnixNano())
	if ttl > 0 {
		pv.ExpiresAt = now.Add(ttl)
	}
	return pv
}

// WithSource records which endpoint and response path produced the value.
func (pv *ParameterValue) WithSource(endpoint, path string) *ParameterValue {
	pv.SourceEndpoint = endpoint
	pv.ResponsePath = path
	return pv
}

// IsExpired reports whether the value's TTL has lapsed.
func (pv *ParameterValue) IsExpired() bool {
	return !pv.ExpiresAt.IsZero() && time.Now().After(pv.ExpiresAt)
}

// Touch bumps the access counter; the LRU eviction policy keys off it.
func (pv *ParameterValue) Touch() {
	pv.accessCount.Add(1)
	pv.lastAccess.Store(time.Now().UnixNano())
}

// AccessCount returns how many times the value has been handed out.
func (pv *ParameterValue) AccessCount() int64 {
	return pv.accessCount.Load()
}

// LastAccessedAt returns the time of the most recent Touch.
func (pv *ParameterValue) LastAccessedAt() time.Time {
	return time.Unix(0, pv.lastAccess.Load())
}
