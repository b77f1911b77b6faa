package dto

import "net/http"

// Wire-level error codes, ERR_<CATEGORY>_<DESCRIPTION>. These are the codes
// API clients branch on; the domain layer has its own vocabulary which
// NormalizeErrorCode translates into these.
const (
	ErrCodeUnknown  = "ERR_UNKNOWN"
	ErrCodeInternal = "ERR_INTERNAL"

	ErrCodeValidation         = "ERR_VALIDATION"
	ErrCodeValidationRequired = "ERR_VALIDATION_REQUIRED"
	ErrCodeValidationFormat   = "ERR_VALIDATION_FORMAT"
	ErrCodeValidationRange    = "ERR_VALIDATION_RANGE"

	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeForbidden    = "ERR_FORBIDDEN"

	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists       = "ERR_ALREADY_EXISTS"
	ErrCodeConflict            = "ERR_CONFLICT"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"

	// ErrCodeDegradedResult reports a fail-closed billing run that could
	// not complete; ErrCodePricingConfig a missing or malformed pricing
	// configuration.
	ErrCodeInvalidState   = "ERR_INVALID_STATE"
	ErrCodeBusinessRule   = "ERR_BUSINESS_RULE"
	ErrCodePricingConfig  = "ERR_PRICING_CONFIG"
	ErrCodeDegradedResult = "ERR_DEGRADED_RESULT"

	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON  = "ERR_INVALID_JSON"

	ErrCodeRateLimited     = "ERR_RATE_LIMITED"
	ErrCodeTooManyRequests = "ERR_TOO_MANY_REQUESTS"
)

// ErrorCodeHTTPStatus maps wire-level error codes to HTTP status codes.
// Validation and input problems are 400s, business rule violations 422s:
// the request parsed fine but the billing state refuses it.
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeValidationRequired: http.StatusBadRequest,
	ErrCodeValidationFormat:   http.StatusBadRequest,
	ErrCodeValidationRange:    http.StatusBadRequest,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeInvalidInput:       http.StatusBadRequest,
	ErrCodeInvalidJSON:        http.StatusBadRequest,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,

	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,

	ErrCodeInvalidState:   http.StatusUnprocessableEntity,
	ErrCodeBusinessRule:   http.StatusUnprocessableEntity,
	ErrCodePricingConfig:  http.StatusUnprocessableEntity,
	ErrCodeDegradedResult: http.StatusUnprocessableEntity,

	ErrCodeRateLimited:     http.StatusTooManyRequests,
	ErrCodeTooManyRequests: http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status for a wire-level error code,
// defaulting to 500 for codes with no mapping.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain-layer error codes to the standardized
// wire-level codes. Domain errors keep their own vocabulary; the HTTP layer
// translates them here.
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":                ErrCodeNotFound,
	"EVENT_NOT_FOUND":          ErrCodeNotFound,
	"INVOICE_NOT_FOUND":        ErrCodeNotFound,
	"SUBSCRIPTION_NOT_FOUND":   ErrCodeNotFound,
	"PRICING_CONFIG_NOT_FOUND": ErrCodeNotFound,
	"ALREADY_EXISTS":           ErrCodeAlreadyExists,
	"CONCURRENCY_CONFLICT":     ErrCodeConcurrencyConflict,
	"INVALID_INPUT":            ErrCodeInvalidInput,
	"INVALID_TENANT":           ErrCodeInvalidInput,
	"INVALID_PLAN":             ErrCodeInvalidInput,
	"INVALID_CYCLE":            ErrCodeInvalidInput,
	"INVALID_FEATURE":          ErrCodeInvalidInput,
	"INVALID_QUANTITY":         ErrCodeInvalidInput,
	"INVALID_PERIOD":           ErrCodeInvalidInput,
	"INVALID_MODE":             ErrCodeInvalidInput,
	"INVALID_SUBSCRIPTION":     ErrCodeInvalidInput,
	"INVALID_STATE":            ErrCodeInvalidState,
	"INVALID_STATUS":           ErrCodeInvalidState,
	"DEGRADED_RESULT":          ErrCodeDegradedResult,
	"PRICING_EMPTY_TIERS":      ErrCodePricingConfig,
	"PRICING_MALFORMED_TIERS":  ErrCodePricingConfig,
	"PRICING_UNMATCHED_TIER":   ErrCodePricingConfig,
	"PRICING_UNSUPPORTED_TYPE": ErrCodePricingConfig,
	"PRICING_NEGATIVE_USAGE":   ErrCodeInvalidInput,
	"UNAUTHORIZED":             ErrCodeUnauthorized,
	"TENANT_REQUIRED":          ErrCodeUnauthorized,
	"FORBIDDEN":                ErrCodeForbidden,
	"VALIDATION_ERROR":         ErrCodeValidation,
	"BAD_REQUEST":              ErrCodeBadRequest,
	"INTERNAL_ERROR":           ErrCodeInternal,
}

// NormalizeErrorCode converts a domain error code to its wire-level form.
// Codes already in wire form, or unknown ones, pass through unchanged.
func NormalizeErrorCode(code string) string {
	if wireCode, ok := DomainErrorCodeMapping[code]; ok {
		return wireCode
	}
	return code
}
