package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newMeteredRouter builds a router with the metrics middleware backed by an
// in-memory reader, plus the billing routes the tests exercise.
func newMeteredRouter(t *testing.T, pre ...gin.HandlerFunc) (*gin.Engine, *sdkmetric.ManualReader) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = mp.Shutdown(context.Background())
	})

	router := gin.New()
	router.Use(pre...)
	router.Use(HTTPMetricsWithMeter(mp.Meter("http.server"), true))
	router.GET("/api/v1/invoices/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": "PAID"})
	})
	router.POST("/api/v1/usage", func(c *gin.Context) {
		c.JSON(http.StatusAccepted, gin.H{"recorded": true})
	})
	router.GET("/api/v1/plans", func(c *gin.Context) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "catalog unavailable"})
	})

	return router, reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetricByName(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func requestCounter(t *testing.T, rm metricdata.ResourceMetrics) metricdata.Sum[int64] {
	t.Helper()

	m := findMetricByName(rm, "http_server_request_total")
	require.NotNil(t, m, "http_server_request_total not found")
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected Sum data for counter")
	return sum
}

func pointAttr(dp metricdata.DataPoint[int64], key string) (string, bool) {
	for _, attr := range dp.Attributes.ToSlice() {
		if string(attr.Key) == key {
			return attr.Value.Emit(), true
		}
	}
	return "", false
}

func getInvoice(router *gin.Engine, id string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/invoices/"+id, nil)
	router.ServeHTTP(w, req)
	return w
}

// Disabled or unconfigured metrics must degrade to a passthrough, never an
// error.
func TestHTTPMetrics_NoopConfigurations(t *testing.T) {
	gin.SetMode(gin.TestMode)

	configs := map[string]HTTPMetricsConfig{
		"disabled":          {Enabled: false},
		"nil meterprovider": {Enabled: true, MeterProvider: nil},
	}

	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			router := gin.New()
			router.Use(HTTPMetrics(cfg))
			router.GET("/api/v1/invoices/:id", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
			})

			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, "/api/v1/invoices/inv-1", nil)
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestHTTPMetricsWithMeter_Disabled(t *testing.T) {
	gin.SetMode(gin.TestMode)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = mp.Shutdown(context.Background())
	})

	router := gin.New()
	router.Use(HTTPMetricsWithMeter(mp.Meter("http.server"), false))
	router.GET("/api/v1/plans", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"plans": []string{}})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/plans", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	rm := collectMetrics(t, reader)
	assert.Nil(t, findMetricByName(rm, "http_server_request_total"))
}

func TestHTTPMetricsWithMeter_CountsRequests(t *testing.T) {
	router, reader := newMeteredRouter(t)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, getInvoice(router, "inv-1").Code)
	}

	sum := requestCounter(t, collectMetrics(t, reader))
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(3), sum.DataPoints[0].Value)
}

// Each method/status combination gets its own series; the totals must still
// add up.
func TestHTTPMetricsWithMeter_SplitsByStatusAndMethod(t *testing.T) {
	router, reader := newMeteredRouter(t)

	getInvoice(router, "inv-1")
	getInvoice(router, "inv-2")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/usage", strings.NewReader(`{"metric":"api_calls","quantity":5}`))
	router.ServeHTTP(w, req)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/v1/plans", nil)
	router.ServeHTTP(w, req)

	sum := requestCounter(t, collectMetrics(t, reader))
	require.Len(t, sum.DataPoints, 3, "one series per method/route/status combination")

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(4), total)
}

func TestHTTPMetricsWithMeter_RequestDuration(t *testing.T) {
	router, reader := newMeteredRouter(t)
	router.GET("/api/v1/billing/runs", func(c *gin.Context) {
		time.Sleep(50 * time.Millisecond)
		c.JSON(http.StatusOK, gin.H{"runs": 1})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/billing/runs", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	rm := collectMetrics(t, reader)
	m := findMetricByName(rm, "http_server_request_duration_seconds")
	require.NotNil(t, m, "duration histogram not found")

	hist, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok, "expected Histogram data for duration")
	require.Len(t, hist.DataPoints, 1)
	assert.Greater(t, hist.DataPoints[0].Sum, 0.05, "handler slept for 50ms")
}

func TestHTTPMetricsWithMeter_BodySizes(t *testing.T) {
	router, reader := newMeteredRouter(t)

	body := strings.NewReader(`{"metric":"api_calls","quantity":100,"recorded_at":"2026-08-01T00:00:00Z"}`)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/usage", body)
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	rm := collectMetrics(t, reader)

	for _, name := range []string{"http_server_request_size_bytes", "http_server_response_size_bytes"} {
		m := findMetricByName(rm, name)
		require.NotNil(t, m, "%s not found", name)

		hist, ok := m.Data.(metricdata.Histogram[float64])
		require.True(t, ok, "expected Histogram data for %s", name)
		require.Len(t, hist.DataPoints, 1)
		assert.Greater(t, hist.DataPoints[0].Sum, float64(0))
	}
}

func TestHTTPMetricsWithMeter_ActiveRequestsReturnsToZero(t *testing.T) {
	router, reader := newMeteredRouter(t)

	getInvoice(router, "inv-1")
	getInvoice(router, "inv-2")

	rm := collectMetrics(t, reader)
	m := findMetricByName(rm, "http_server_active_requests")
	require.NotNil(t, m, "active requests counter not found")

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected Sum data for active requests")
	if len(sum.DataPoints) > 0 {
		assert.Equal(t, int64(0), sum.DataPoints[0].Value)
	}
}

func TestHTTPMetricsWithMeter_TenantLabel(t *testing.T) {
	const tenantID = "0c7f3a52-9a1e-4b83-b6c7-2f4f6d1c9e10"

	router, reader := newMeteredRouter(t, func(c *gin.Context) {
		// The tenant middleware resolves this before metrics record
		c.Set(TenantIDKey, tenantID)
		c.Next()
	})

	require.Equal(t, http.StatusOK, getInvoice(router, "inv-1").Code)

	sum := requestCounter(t, collectMetrics(t, reader))
	require.Len(t, sum.DataPoints, 1)

	got, found := pointAttr(sum.DataPoints[0], "tenant_id")
	require.True(t, found, "tenant_id label missing from request counter")
	assert.Equal(t, tenantID, got)
}

// Requests for different invoices must collapse into the one route pattern
// series, never one series per invoice ID.
func TestHTTPMetricsWithMeter_RoutePatternCollapsesIDs(t *testing.T) {
	router, reader := newMeteredRouter(t)

	for _, id := range []string{"inv-1", "inv-2", "inv-3", "inv-4"} {
		require.Equal(t, http.StatusOK, getInvoice(router, id).Code)
	}

	sum := requestCounter(t, collectMetrics(t, reader))
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(4), sum.DataPoints[0].Value)

	route, found := pointAttr(sum.DataPoints[0], "http.route")
	require.True(t, found, "http.route label missing")
	assert.Equal(t, "/api/v1/invoices/:id", route)
}

func TestGetRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("matched route returns the pattern", func(t *testing.T) {
		router := gin.New()
		router.GET("/api/v1/invoices/:id", func(c *gin.Context) {
			c.String(http.StatusOK, getRoutePattern(c))
		})

		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/api/v1/invoices/inv-42", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, "/api/v1/invoices/:id", w.Body.String())
	})

	t.Run("unmatched route falls back to unknown", func(t *testing.T) {
		router := gin.New()
		router.Use(func(c *gin.Context) {
			c.String(http.StatusNotFound, getRoutePattern(c))
			c.Abort()
		})

		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/nope", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, "unknown", w.Body.String())
	})
}

func TestGetTenantIDFromContext(t *testing.T) {
	gin.SetMode(gin.TestMode)

	testCases := []struct {
		name         string
		contextValue interface{}
		expected     string
	}{
		{"resolved tenant", "0c7f3a52-9a1e-4b83-b6c7-2f4f6d1c9e10", "0c7f3a52-9a1e-4b83-b6c7-2f4f6d1c9e10"},
		{"empty string", "", ""},
		{"not set", nil, ""},
		{"non-string value", 123, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			router := gin.New()
			if tc.contextValue != nil {
				router.Use(func(c *gin.Context) {
					c.Set(TenantIDKey, tc.contextValue)
					c.Next()
				})
			}
			router.GET("/api/v1/invoices", func(c *gin.Context) {
				c.String(http.StatusOK, getTenantIDFromContext(c))
			})

			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, "/api/v1/invoices", nil)
			router.ServeHTTP(w, req)

			assert.Equal(t, tc.expected, w.Body.String())
		})
	}
}

func TestDefaultHTTPMetricsConfig(t *testing.T) {
	cfg := DefaultHTTPMetricsConfig()

	assert.Equal(t, "billflow-backend", cfg.ServiceName)
	assert.True(t, cfg.Enabled)
	assert.Nil(t, cfg.MeterProvider)
}
