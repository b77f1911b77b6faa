package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/billflow/backend/internal/domain/pricing"
	"github.com/billflow/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// SetupValidator registers the billing-specific validation tags on gin's
// binding validator and makes error messages report JSON field names
// rather than Go struct fields.
func SetupValidator() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		}
		return name
	})

	// Billing cycle values are a closed set
	_ = v.RegisterValidation("billingcycle", func(fl validator.FieldLevel) bool {
		return pricing.BillingCycle(fl.Field().String()).IsValid()
	})
}

// RejectInvalidPayload writes the 400 for a failed request bind. Field
// validation failures carry per-field details; anything else (malformed
// JSON, wrong types) is reported as an unparseable body.
func RejectInvalidPayload(c *gin.Context, err error) {
	requestID := c.GetString("request_id")

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		details := make([]dto.ValidationDetail, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			details = append(details, dto.ValidationDetail{
				Field:   fe.Field(),
				Message: validationMessage(fe),
			})
		}
		c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse("Request validation failed", requestID, details))
		return
	}

	c.JSON(http.StatusBadRequest, dto.NewErrorResponseWithRequestID(
		dto.ErrCodeInvalidJSON, "Request body could not be parsed", requestID))
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "uuid":
		return "Invalid UUID format"
	case "billingcycle":
		return "Must be a valid billing cycle (MONTHLY or ANNUAL)"
	case "oneof":
		return "Must be one of: " + e.Param()
	case "min":
		if e.Type().Kind() == reflect.String {
			return "Must be at least " + e.Param() + " characters"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Type().Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "len":
		return "Must be exactly " + e.Param() + " characters"
	case "gt":
		return "Must be greater than " + e.Param()
	case "gte":
		return "Must be greater than or equal to " + e.Param()
	case "lte":
		return "Must be less than or equal to " + e.Param()
	case "email":
		return "Invalid email format"
	case "url":
		return "Invalid URL format"
	default:
		return "Invalid value"
	}
}
