package telemetry

import (
	"context"
	"maps"
	"sort"
	"strings"

	"github.com/grafana/pyroscope-go"
)

// Profiling label keys. These are the dimensions profiles can be sliced
// by in the Pyroscope UI.
const (
	ProfilingLabelController = "controller"
	ProfilingLabelRoute      = "route"
	ProfilingLabelMethod     = "method"
	ProfilingLabelTenantID   = "tenant_id"
	ProfilingLabelOperation  = "operation"
)

// MaxLabelValueLength caps label values so a runaway value cannot blow
// up series cardinality.
const MaxLabelValueLength = 128

// highCardinalityLabels are keys sanitizeLabels drops outright. Each of
// these is effectively unbounded in a billing backend: every usage event
// and invoice mints a new ID. tenant_id stays allowed because tenant
// counts are bounded; revisit if that stops being true.
var highCardinalityLabels = map[string]bool{
	"request_id":      true,
	"trace_id":        true,
	"span_id":         true,
	"invoice_id":      true,
	"usage_record_id": true,
	"event_id":        true,
	"idempotency_key": true,
}

// WithProfilingLabels runs fn with the given Pyroscope labels attached,
// so profile samples taken inside can be filtered by them.
//
//	telemetry.WithProfilingLabels(ctx, map[string]string{
//	    "operation": "GenerateInvoice",
//	    "tenant_id": tenantID,
//	}, func(c context.Context) {
//	    engine.Generate(c, subscription)
//	})
//
// The labels map is copied before use, so the caller may reuse it.
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	pairs := sanitizeLabels(labels)
	if len(pairs) == 0 {
		fn(ctx)
		return
	}

	pyroscope.TagWrapper(ctx, pyroscope.Labels(pairs...), fn)
}

// sanitizeLabels turns a label map into the flat key/value slice the
// profiling APIs take. It drops empty and high-cardinality entries,
// truncates oversized values, normalizes keys to snake_case, and sorts
// keys so output is deterministic.
func sanitizeLabels(labels map[string]string) []string {
	if len(labels) == 0 {
		return nil
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(labels)*2)
	for _, key := range keys {
		value := labels[key]
		if key == "" || value == "" || highCardinalityLabels[key] {
			continue
		}
		if len(value) > MaxLabelValueLength {
			value = value[:MaxLabelValueLength]
		}

		sanitizedKey := sanitizeLabelKey(key)
		if sanitizedKey == "" {
			continue
		}
		pairs = append(pairs, sanitizedKey, value)
	}

	return pairs
}

// sanitizeLabelKey normalizes a key to lowercase snake_case, dropping
// anything that is not alphanumeric or underscore.
func sanitizeLabelKey(key string) string {
	key = strings.ToLower(key)
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")

	result := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' {
			result = append(result, c)
		}
	}
	return string(result)
}

// HTTPRequestLabels builds the standard label set for profiling an HTTP
// request. Empty values are omitted.
func HTTPRequestLabels(controller, route, method, tenantID string) map[string]string {
	labels := make(map[string]string, 4)
	if controller != "" {
		labels[ProfilingLabelController] = controller
	}
	if route != "" {
		labels[ProfilingLabelRoute] = route
	}
	if method != "" {
		labels[ProfilingLabelMethod] = method
	}
	if tenantID != "" {
		labels[ProfilingLabelTenantID] = tenantID
	}
	return labels
}

// OperationLabels builds labels for a named operation such as
// "GenerateInvoice" or "RecordUsage".
func OperationLabels(operation string, extraLabels map[string]string) map[string]string {
	labels := make(map[string]string, len(extraLabels)+1)
	labels[ProfilingLabelOperation] = operation
	maps.Copy(labels, extraLabels)
	return labels
}

