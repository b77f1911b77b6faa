package telemetry

import (
	"context"
	"runtime/pprof"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ctxLabel reads a pprof label off the context handed to the wrapped
// function. Pyroscope labels ride on the same mechanism.
func ctxLabel(ctx context.Context, key string) (string, bool) {
	return pprof.Label(ctx, key)
}

func TestWithProfilingLabels(t *testing.T) {
	t.Run("labels reach the wrapped context", func(t *testing.T) {
		var called bool
		WithProfilingLabels(context.Background(), map[string]string{
			ProfilingLabelOperation: "GenerateInvoice",
			ProfilingLabelTenantID:  "acme",
		}, func(ctx context.Context) {
			called = true
			op, ok := ctxLabel(ctx, ProfilingLabelOperation)
			require.True(t, ok)
			assert.Equal(t, "GenerateInvoice", op)

			tenant, ok := ctxLabel(ctx, ProfilingLabelTenantID)
			require.True(t, ok)
			assert.Equal(t, "acme", tenant)
		})
		assert.True(t, called)
	})

	t.Run("empty labels still run the function", func(t *testing.T) {
		var called bool
		WithProfilingLabels(context.Background(), nil, func(ctx context.Context) {
			called = true
		})
		assert.True(t, called)
	})

	t.Run("caller may reuse the map afterwards", func(t *testing.T) {
		labels := map[string]string{ProfilingLabelOperation: "RecordUsage"}
		WithProfilingLabels(context.Background(), labels, func(ctx context.Context) {})
		labels[ProfilingLabelOperation] = "mutated"
	})
}

func TestSanitizeLabels(t *testing.T) {
	t.Run("high cardinality keys are dropped", func(t *testing.T) {
		pairs := sanitizeLabels(map[string]string{
			"invoice_id":           "inv-9f2c",
			"usage_record_id":      "ur-1",
			"event_id":             "evt-1",
			"idempotency_key":      "idem-1",
			"request_id":           "req-1",
			ProfilingLabelTenantID: "acme",
		})

		assert.Equal(t, []string{"tenant_id", "acme"}, pairs)
	})

	t.Run("empty keys and values are dropped", func(t *testing.T) {
		pairs := sanitizeLabels(map[string]string{
			"":                   "orphan",
			ProfilingLabelMethod: "",
			ProfilingLabelRoute:  "/api/v1/usage",
		})

		assert.Equal(t, []string{"route", "/api/v1/usage"}, pairs)
	})

	t.Run("long values are truncated", func(t *testing.T) {
		long := strings.Repeat("x", MaxLabelValueLength*2)
		pairs := sanitizeLabels(map[string]string{"plan_code": long})

		require.Len(t, pairs, 2)
		assert.Len(t, pairs[1], MaxLabelValueLength)
	})

	t.Run("keys are normalized to snake_case", func(t *testing.T) {
		pairs := sanitizeLabels(map[string]string{"Plan Code": "pro-monthly"})

		assert.Equal(t, []string{"plan_code", "pro-monthly"}, pairs)
	})

	t.Run("output order is deterministic", func(t *testing.T) {
		labels := map[string]string{
			"route":     "/api/v1/invoices",
			"method":    "GET",
			"tenant_id": "acme",
		}

		first := sanitizeLabels(labels)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, sanitizeLabels(labels))
		}
	})

	t.Run("nil input yields nil", func(t *testing.T) {
		assert.Nil(t, sanitizeLabels(nil))
	})
}

func TestSanitizeLabelKey(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"tenant_id", "tenant_id"},
		{"Tenant ID", "tenant_id"},
		{"plan-code", "plan_code"},
		{"Route/Path!", "routepath"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, sanitizeLabelKey(tt.input), "input %q", tt.input)
	}
}

func TestHTTPRequestLabels(t *testing.T) {
	t.Run("full set", func(t *testing.T) {
		labels := HTTPRequestLabels("usage", "/api/v1/usage", "POST", "acme")

		assert.Equal(t, map[string]string{
			ProfilingLabelController: "usage",
			ProfilingLabelRoute:      "/api/v1/usage",
			ProfilingLabelMethod:     "POST",
			ProfilingLabelTenantID:   "acme",
		}, labels)
	})

	t.Run("empty values are omitted", func(t *testing.T) {
		labels := HTTPRequestLabels("", "/api/v1/plans", "GET", "")

		assert.Len(t, labels, 2)
		assert.NotContains(t, labels, ProfilingLabelController)
		assert.NotContains(t, labels, ProfilingLabelTenantID)
	})
}

func TestOperationLabels(t *testing.T) {
	labels := OperationLabels("RecordUsage", map[string]string{
		ProfilingLabelTenantID: "acme",
	})

	assert.Equal(t, "RecordUsage", labels[ProfilingLabelOperation])
	assert.Equal(t, "acme", labels[ProfilingLabelTenantID])
}
