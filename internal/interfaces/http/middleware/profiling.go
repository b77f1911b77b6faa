// Package middleware provides HTTP middleware for the billing API.
package middleware

import (
	"context"
	"strings"

	"github.com/billflow/backend/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
)

// ProfilingConfig holds configuration for the profiling middleware.
type ProfilingConfig struct {
	Enabled bool
	// SkipPaths are exact paths that don't need profiling labels.
	SkipPaths []string
	// SkipPathPrefixes are path prefixes that don't need profiling labels.
	SkipPathPrefixes []string
}

// DefaultProfilingConfig returns default profiling middleware configuration.
func DefaultProfilingConfig() ProfilingConfig {
	return ProfilingConfig{
		Enabled: true,
		SkipPaths: []string{
			"/health",
			"/healthz",
			"/ready",
			"/metrics",
		},
		SkipPathPrefixes: []string{
			"/swagger",
			"/api-docs",
		},
	}
}

// skips reports whether the path is excluded from profiling labels.
func (cfg ProfilingConfig) skips(path string) bool {
	for _, p := range cfg.SkipPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range cfg.SkipPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Profiling returns profiling middleware with default configuration.
func Profiling() gin.HandlerFunc {
	return ProfilingWithConfig(DefaultProfilingConfig())
}

// ProfilingWithConfig tags each request's profile samples with the
// controller, route pattern, HTTP method, and tenant. Pyroscope can then
// break CPU and allocation profiles down by tenant or endpoint, which is
// how a hot usage-ingestion tenant gets spotted.
//
// Register this after the tenant middleware so tenant_id is resolved.
func ProfilingWithConfig(cfg ProfilingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		if cfg.skips(c.Request.URL.Path) {
			c.Next()
			return
		}

		labels := requestProfilingLabels(c)
		telemetry.WithProfilingLabels(c.Request.Context(), labels, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}

// requestProfilingLabels builds the label set for one request. Only the
// route pattern goes in, never the raw path, so /api/v1/invoices/:id
// stays one series no matter how many invoices exist.
func requestProfilingLabels(c *gin.Context) map[string]string {
	route := c.FullPath()
	controller := controllerFromRoute(route)

	tenantID := ""
	if id, exists := c.Get(TenantIDKey); exists {
		tenantID, _ = id.(string)
	}

	return telemetry.HTTPRequestLabels(controller, route, c.Request.Method, tenantID)
}

// controllerFromRoute derives a resource name from a route pattern:
// "/api/v1/invoices/:id" yields "invoices".
func controllerFromRoute(route string) string {
	if route == "" {
		return ""
	}

	for _, part := range strings.Split(route, "/") {
		if part == "" || part == "api" || isVersionSegment(part) {
			continue
		}
		if strings.HasPrefix(part, ":") || strings.HasPrefix(part, "{") {
			continue
		}
		return part
	}
	return ""
}

// isVersionSegment reports whether a path segment names an API version
// such as "v1".
func isVersionSegment(segment string) bool {
	if len(segment) < 2 || (segment[0] != 'v' && segment[0] != 'V') {
		return false
	}
	for i := 1; i < len(segment); i++ {
		if segment[i] < '0' || segment[i] > '9' {
			return false
		}
	}
	return true
}
