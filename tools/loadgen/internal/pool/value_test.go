package pool

import (
	"testing"
	"time"
)

func TestNewParameterValue(t *testing.T) {
	t.Run("with TTL", func(t *testing.T) {
		pv := NewParameterValue("sub-8821", SemanticTypeSubscriptionID, time.Hour)

		if pv.Value != "sub-8821" {
			t.Errorf("Value = %v, want sub-8821", pv.Value)
		}
		if pv.SemanticType != SemanticTypeSubscriptionID {
			t.Errorf("SemanticType = %v", pv.SemanticType)
		}
		if pv.CreatedAt.IsZero() {
			t.Error("CreatedAt should be set")
		}
		if pv.ExpiresAt.IsZero() || pv.ExpiresAt.Before(pv.CreatedAt) {
			t.Errorf("ExpiresAt = %v, want after %v", pv.ExpiresAt, pv.CreatedAt)
		}
	})

	t.Run("zero TTL never expires", func(t *testing.T) {
		pv := NewParameterValue(42, SemanticTypeQuantity, 0)

		if !pv.ExpiresAt.IsZero() {
			t.Errorf("ExpiresAt = %v, want zero", pv.ExpiresAt)
		}
		if pv.IsExpired() {
			t.Error("value without TTL reported expired")
		}
	})
}

func TestParameterValueWithSource(t *testing.T) {
	pv := NewParameterValue("inv-2026-0042", SemanticTypeInvoiceID, 0).
		WithSource("POST /billing/invoices/generate", "$.data.id")

	if pv.SourceEndpoint != "POST /billing/invoices/generate" {
		t.Errorf("SourceEndpoint = %v", pv.SourceEndpoint)
	}
	if pv.ResponsePath != "$.data.id" {
		t.Errorf("ResponsePath = %v", pv.ResponsePath)
	}
}

func TestParameterValueIsExpired(t *testing.T) {
	fresh := NewParameterValue("sub-1", SemanticTypeSubscriptionID, time.Hour)
	if fresh.IsExpired() {
		t.Error("value with future expiry reported expired")
	}

	stale := NewParameterValue("sub-2", SemanticTypeSubscriptionID, time.Nanosecond)
	time.Sleep(2 * time.Millisecond)
	if !stale.IsExpired() {
		t.Error("value past its TTL not reported expired")
	}
}

func TestParameterValueTouch(t *testing.T) {
	pv := NewParameterValue("sub-1", SemanticTypeSubscriptionID, 0)
	before := pv.LastAccessedAt()

	time.Sleep(time.Millisecond)
	pv.Touch()
	pv.Touch()

	if got := pv.AccessCount(); got != 2 {
		t.Errorf("AccessCount = %d, want 2", got)
	}
	if !pv.LastAccessedAt().After(before) {
		t.Error("LastAccessedAt not advanced by Touch")
	}
}
