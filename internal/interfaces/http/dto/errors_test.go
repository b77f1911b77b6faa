package dto

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := map[string]int{
		ErrCodeUnknown:             http.StatusInternalServerError,
		ErrCodeInternal:            http.StatusInternalServerError,
		ErrCodeValidation:          http.StatusBadRequest,
		ErrCodeValidationRequired:  http.StatusBadRequest,
		ErrCodeBadRequest:          http.StatusBadRequest,
		ErrCodeInvalidInput:        http.StatusBadRequest,
		ErrCodeUnauthorized:        http.StatusUnauthorized,
		ErrCodeForbidden:           http.StatusForbidden,
		ErrCodeNotFound:            http.StatusNotFound,
		ErrCodeAlreadyExists:       http.StatusConflict,
		ErrCodeConflict:            http.StatusConflict,
		ErrCodeConcurrencyConflict: http.StatusConflict,
		ErrCodeInvalidState:        http.StatusUnprocessableEntity,
		ErrCodeBusinessRule:        http.StatusUnprocessableEntity,
		ErrCodePricingConfig:       http.StatusUnprocessableEntity,
		ErrCodeDegradedResult:      http.StatusUnprocessableEntity,
		ErrCodeRateLimited:         http.StatusTooManyRequests,
	}

	for code, want := range tests {
		t.Run(code, func(t *testing.T) {
			assert.Equal(t, want, GetHTTPStatus(code))
		})
	}

	t.Run("unmapped code defaults to 500", func(t *testing.T) {
		assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus("SOMETHING_NEW"))
	})
}

// Domain errors carry bare codes like SUBSCRIPTION_NOT_FOUND; the DTO layer
// folds them into the stable ERR_* vocabulary clients program against.
func TestNormalizeErrorCode(t *testing.T) {
	tests := map[string]string{
		"NOT_FOUND":                ErrCodeNotFound,
		"SUBSCRIPTION_NOT_FOUND":   ErrCodeNotFound,
		"INVOICE_NOT_FOUND":        ErrCodeNotFound,
		"PRICING_CONFIG_NOT_FOUND": ErrCodeNotFound,
		"ALREADY_EXISTS":           ErrCodeAlreadyExists,
		"INVALID_INPUT":            ErrCodeInvalidInput,
		"INVALID_CYCLE":            ErrCodeInvalidInput,
		"INVALID_MODE":             ErrCodeInvalidInput,
		"INVALID_STATE":            ErrCodeInvalidState,
		"UNAUTHORIZED":             ErrCodeUnauthorized,
		"FORBIDDEN":                ErrCodeForbidden,
		"CONCURRENCY_CONFLICT":     ErrCodeConcurrencyConflict,
		"DEGRADED_RESULT":          ErrCodeDegradedResult,
		"PRICING_MALFORMED_TIERS":  ErrCodePricingConfig,
		"VALIDATION_ERROR":         ErrCodeValidation,
		"BAD_REQUEST":              ErrCodeBadRequest,
		"INTERNAL_ERROR":           ErrCodeInternal,
	}

	for input, want := range tests {
		t.Run(input, func(t *testing.T) {
			assert.Equal(t, want, NormalizeErrorCode(input))
		})
	}

	t.Run("already normalized codes pass through", func(t *testing.T) {
		assert.Equal(t, ErrCodeNotFound, NormalizeErrorCode(ErrCodeNotFound))
		assert.Equal(t, ErrCodeValidation, NormalizeErrorCode(ErrCodeValidation))
	})

	t.Run("unknown codes pass through", func(t *testing.T) {
		assert.Equal(t, "CUSTOM_ERROR", NormalizeErrorCode("CUSTOM_ERROR"))
	})
}

// Every ERR_* constant must map to a status; a gap would surface as a
// surprise 500 for an otherwise well-defined error.
func TestEveryErrorCodeHasStatusAndPrefix(t *testing.T) {
	allCodes := []string{
		ErrCodeUnknown,
		ErrCodeInternal,
		ErrCodeValidation,
		ErrCodeValidationRequired,
		ErrCodeValidationFormat,
		ErrCodeValidationRange,
		ErrCodeUnauthorized,
		ErrCodeForbidden,
		ErrCodeNotFound,
		ErrCodeAlreadyExists,
		ErrCodeConflict,
		ErrCodeConcurrencyConflict,
		ErrCodeInvalidState,
		ErrCodeBusinessRule,
		ErrCodePricingConfig,
		ErrCodeDegradedResult,
		ErrCodeBadRequest,
		ErrCodeInvalidInput,
		ErrCodeInvalidJSON,
		ErrCodeRateLimited,
		ErrCodeTooManyRequests,
	}

	for _, code := range allCodes {
		t.Run(code, func(t *testing.T) {
			status, ok := ErrorCodeHTTPStatus[code]
			require.True(t, ok, "code %s missing from ErrorCodeHTTPStatus", code)
			assert.GreaterOrEqual(t, status, http.StatusBadRequest)
			assert.True(t, strings.HasPrefix(code, "ERR_"))
		})
	}
}

func TestErrorResponseConstructors(t *testing.T) {
	t.Run("NewErrorResponse normalizes the code", func(t *testing.T) {
		before := time.Now()
		resp := NewErrorResponse("SUBSCRIPTION_NOT_FOUND", "Subscription not found")
		after := time.Now()

		assert.False(t, resp.Success)
		assert.Nil(t, resp.Data)
		require.NotNil(t, resp.Error)
		assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
		assert.Equal(t, "Subscription not found", resp.Error.Message)
		assert.False(t, resp.Error.Timestamp.Before(before))
		assert.False(t, resp.Error.Timestamp.After(after))
	})

	t.Run("NewErrorResponseWithRequestID", func(t *testing.T) {
		resp := NewErrorResponseWithRequestID(ErrCodeNotFound, "Invoice not found", "req-123-456")

		require.NotNil(t, resp.Error)
		assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
		assert.Equal(t, "req-123-456", resp.Error.RequestID)
	})

	t.Run("NewValidationErrorResponse carries details", func(t *testing.T) {
		details := []ValidationDetail{
			{Field: "metric", Message: "Required"},
			{Field: "quantity", Message: "Must be non-negative"},
		}

		resp := NewValidationErrorResponse("Request validation failed", "req-789", details)

		require.NotNil(t, resp.Error)
		assert.Equal(t, ErrCodeValidation, resp.Error.Code)
		assert.Equal(t, "req-789", resp.Error.RequestID)
		require.Len(t, resp.Error.Details, 2)
		assert.Equal(t, "metric", resp.Error.Details[0].Field)
	})
}

func TestErrorResponseJSONRoundTrip(t *testing.T) {
	resp := NewErrorResponseWithRequestID(ErrCodeNotFound, "Subscription not found", "req-test-123")

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded Response
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.False(t, decoded.Success)
	require.NotNil(t, decoded.Error)
	assert.Equal(t, ErrCodeNotFound, decoded.Error.Code)
	assert.Equal(t, "Subscription not found", decoded.Error.Message)
	assert.Equal(t, "req-test-123", decoded.Error.RequestID)
}

func TestSuccessResponses(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		resp := NewSuccessResponse(map[string]string{"invoice_number": "INV-2026-0042"})

		assert.True(t, resp.Success)
		assert.NotNil(t, resp.Data)
		assert.Nil(t, resp.Error)
		assert.Nil(t, resp.Meta)
	})

	t.Run("with meta", func(t *testing.T) {
		resp := NewSuccessResponseWithMeta([]string{"INV-2026-0041", "INV-2026-0042"}, 100, 1, 10)

		assert.True(t, resp.Success)
		require.NotNil(t, resp.Meta)
		assert.Equal(t, int64(100), resp.Meta.Total)
		assert.Equal(t, 1, resp.Meta.Page)
		assert.Equal(t, 10, resp.Meta.PageSize)
		assert.Equal(t, 10, resp.Meta.TotalPages)
	})
}

func TestPaginationMeta(t *testing.T) {
	tests := []struct {
		name      string
		total     int64
		pageSize  int
		wantPages int
		wantSize  int
	}{
		{"exact pages", 100, 10, 10, 10},
		{"partial last page", 101, 10, 11, 10},
		{"no rows", 0, 10, 0, 10},
		{"under one page", 9, 10, 1, 10},
		{"exactly one page", 10, 10, 1, 10},
		{"just over one page", 11, 10, 2, 10},
		{"zero page size falls back to default", 100, 0, 5, 20},
		{"negative page size falls back to default", 100, -1, 5, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := NewSuccessResponseWithMeta(nil, tt.total, 1, tt.pageSize)
			assert.Equal(t, tt.wantPages, resp.Meta.TotalPages)
			assert.Equal(t, tt.wantSize, resp.Meta.PageSize)
		})
	}
}
