package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/billflow/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUsageRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	SetupValidator()

	type recordUsageRequest struct {
		Metric   string  `json:"metric" binding:"required"`
		Quantity float64 `json:"quantity" binding:"required,gt=0"`
		Cycle    string  `json:"cycle" binding:"omitempty,billingcycle"`
	}

	router := gin.New()
	router.POST("/api/v1/usage", func(c *gin.Context) {
		var req recordUsageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			RejectInvalidPayload(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	})
	return router
}

func postUsage(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/usage", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRejectInvalidPayload(t *testing.T) {
	router := newUsageRouter()

	t.Run("reports every invalid field by its JSON name", func(t *testing.T) {
		w := postUsage(router, `{"metric": "", "quantity": -2}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

		assert.False(t, resp.Success)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		require.Len(t, resp.Error.Details, 2)

		fields := []string{resp.Error.Details[0].Field, resp.Error.Details[1].Field}
		assert.Contains(t, fields, "metric")
		assert.Contains(t, fields, "quantity")
	})

	t.Run("rejects an unknown billing cycle", func(t *testing.T) {
		w := postUsage(router, `{"metric": "api_calls", "quantity": 3, "cycle": "WEEKLY"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "billing cycle")
	})

	t.Run("malformed JSON is reported as unparseable, not field errors", func(t *testing.T) {
		w := postUsage(router, `{"metric": "api_calls",`)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeInvalidJSON, resp.Error.Code)
		assert.Empty(t, resp.Error.Details)
	})

	t.Run("passes a valid usage record through", func(t *testing.T) {
		w := postUsage(router, `{"metric": "api_calls", "quantity": 42}`)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestSetupValidatorUsesJSONFieldNames(t *testing.T) {
	SetupValidator()

	v, ok := binding.Validator.Engine().(*validator.Validate)
	require.True(t, ok)

	type pauseRequest struct {
		PauseReason string `json:"pause_reason" binding:"required"`
	}

	err := v.Struct(pauseRequest{})
	require.Error(t, err)

	verrs := err.(validator.ValidationErrors)
	require.Len(t, verrs, 1)
	assert.Equal(t, "pause_reason", verrs[0].Field())
}

func TestValidationMessage(t *testing.T) {
	type subscriptionInput struct {
		TenantID  string  `binding:"required"`
		PlanCode  string  `binding:"min=5"`
		Currency  string  `binding:"len=3"`
		InvoiceID string  `binding:"uuid"`
		Status    string  `binding:"oneof=ACTIVE PAUSED CANCELED"`
		Seats     int     `binding:"omitempty,gte=10"`
		Discount  float64 `binding:"lte=100"`
	}

	v := validator.New()
	v.SetTagName("binding")

	err := v.Struct(subscriptionInput{
		PlanCode:  "pro",
		Currency:  "usd1",
		InvoiceID: "not-a-uuid",
		Status:    "EXPIRED",
		Discount:  150,
	})
	require.Error(t, err)

	want := map[string]string{
		"TenantID":  "This field is required",
		"PlanCode":  "Must be at least 5 characters",
		"Currency":  "Must be exactly 3 characters",
		"InvoiceID": "Invalid UUID format",
		"Status":    "Must be one of: ACTIVE PAUSED CANCELED",
		"Discount":  "Must be less than or equal to 100",
	}

	got := map[string]string{}
	for _, fe := range err.(validator.ValidationErrors) {
		got[fe.Field()] = validationMessage(fe)
	}
	assert.Equal(t, want, got)
}
