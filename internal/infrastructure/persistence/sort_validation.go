package persistence

import (
	"strings"
)

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "DESC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField validates the sort field against a whitelist of allowed fields.
// Returns the defaultField if the input is invalid, empty, or not in the whitelist.
// Sort fields come from query strings, so anything outside the whitelist is
// treated as untrusted and replaced rather than interpolated into SQL.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// OutboxEventSortFields contains allowed sort fields for outbox events
var OutboxEventSortFields = map[string]bool{
	"id":              true,
	"created_at":      true,
	"updated_at":      true,
	"event_type":      true,
	"status":          true,
	"retry_count":     true,
	"next_attempt_at": true,
	"published_at":    true,
}

// UsageRecordSortFields contains allowed sort fields for usage records
var UsageRecordSortFields = map[string]bool{
	"id":          true,
	"created_at":  true,
	"updated_at":  true,
	"feature_id":  true,
	"quantity":    true,
	"recorded_at": true,
	"source_type": true,
}

// SubscriptionSortFields contains allowed sort fields for subscriptions
var SubscriptionSortFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
	"plan_id":    true,
	"cycle":      true,
	"quantity":   true,
	"started_at": true,
}

// InvoiceSortFields contains allowed sort fields for invoices
var InvoiceSortFields = map[string]bool{
	"id":           true,
	"created_at":   true,
	"updated_at":   true,
	"status":       true,
	"total":        true,
	"period_start": true,
	"period_end":   true,
	"issued_at":    true,
}

// PricingConfigSortFields contains allowed sort fields for pricing configs
var PricingConfigSortFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
	"target_id":  true,
	"cycle":      true,
	"type":       true,
	"priority":   true,
}
