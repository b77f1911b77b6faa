package middleware

import (
	"net/http"
	"strings"

	"github.com/billflow/backend/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Context keys for resolved tenant information.
const (
	TenantIDKey     = "tenant_id"
	TenantCodeKey   = "tenant_code"
	TenantHeaderKey = "X-Tenant-ID"
)

// TenantInfo is what a validator returns for an active tenant.
type TenantInfo struct {
	ID   uuid.UUID `json:"id"`
	Code string    `json:"code"`
}

// TenantValidator checks that a tenant exists and is active. Wired in by
// deployments that keep a tenant registry; nil skips the check.
type TenantValidator interface {
	ValidateTenant(tenantID string) (*TenantInfo, error)
}

// TenantMiddlewareConfig holds configuration for tenant resolution.
type TenantMiddlewareConfig struct {
	// HeaderEnabled enables X-Tenant-ID header extraction
	HeaderEnabled bool
	// SubdomainEnabled enables subdomain extraction
	SubdomainEnabled bool
	// BaseDomain anchors subdomain extraction ("billflow.io")
	BaseDomain string
	// SkipPaths bypass tenant resolution (health checks, metrics)
	SkipPaths []string
	// Required rejects requests without a resolvable tenant
	Required  bool
	Validator TenantValidator
	Logger    *zap.Logger
}

// DefaultTenantConfig returns the configuration billing routes mount:
// header extraction only, tenant mandatory.
func DefaultTenantConfig() TenantMiddlewareConfig {
	return TenantMiddlewareConfig{
		HeaderEnabled: true,
		SkipPaths:     []string{"/health", "/healthz", "/ready", "/metrics", "/api/v1/health"},
		Required:      true,
	}
}

// TenantMiddleware resolves the tenant with the default configuration.
func TenantMiddleware() gin.HandlerFunc {
	return TenantMiddlewareWithConfig(DefaultTenantConfig())
}

// TenantMiddlewareWithConfig resolves the request's tenant, preferring the
// X-Tenant-ID header over the subdomain, and stores it in both the gin
// context and the request context so repository scoping and log fields see
// the same tenant.
func TenantMiddlewareWithConfig(cfg TenantMiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if skipTenantResolution(cfg.SkipPaths, c.Request.URL.Path) {
			c.Next()
			return
		}

		tenantID, source := resolveTenant(c, cfg)
		if tenantID == "" {
			if cfg.Required {
				respondUnauthorized(c, "Tenant identification required")
				return
			}
			c.Next()
			return
		}

		if _, err := uuid.Parse(tenantID); err != nil {
			respondUnauthorized(c, "Invalid tenant ID format")
			return
		}

		var info *TenantInfo
		if cfg.Validator != nil {
			var err error
			info, err = cfg.Validator.ValidateTenant(tenantID)
			if err != nil {
				tenantLogger(c, cfg).Warn("Tenant validation failed",
					zap.String("tenant_id", tenantID),
					zap.Error(err),
				)
				respondUnauthorized(c, "Invalid or inactive tenant")
				return
			}
		}

		c.Set(TenantIDKey, tenantID)
		if info != nil {
			c.Set(TenantCodeKey, info.Code)
		}

		// Propagate into the request context so service and repository
		// layers and their log fields carry the tenant
		ctx := c.Request.Context()
		ctx, _ = logger.WithTenantID(ctx, logger.FromContext(ctx), tenantID)
		c.Request = c.Request.WithContext(ctx)

		if cfg.Logger != nil {
			cfg.Logger.Debug("Tenant identified",
				zap.String("tenant_id", tenantID),
				zap.String("method", source),
			)
		}

		c.Next()
	}
}

func skipTenantResolution(skipPaths []string, path string) bool {
	for _, skipPath := range skipPaths {
		if path == skipPath || strings.HasPrefix(path, skipPath+"/") {
			return true
		}
	}
	return false
}

// resolveTenant returns the raw tenant ID and where it came from.
func resolveTenant(c *gin.Context, cfg TenantMiddlewareConfig) (tenantID, source string) {
	if cfg.HeaderEnabled {
		if id := c.GetHeader(TenantHeaderKey); id != "" {
			return id, "header"
		}
	}
	if cfg.SubdomainEnabled && cfg.BaseDomain != "" {
		if id := extractTenantFromSubdomain(c.Request.Host, cfg.BaseDomain); id != "" {
			return id, "subdomain"
		}
	}
	return "", ""
}

func tenantLogger(c *gin.Context, cfg TenantMiddlewareConfig) *zap.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	return logger.FromContext(c.Request.Context())
}

// extractTenantFromSubdomain maps "acme.billflow.io" with base domain
// "billflow.io" to "acme". Multi-level subdomains keep only the first label;
// "www" and the bare base domain resolve to nothing.
func extractTenantFromSubdomain(host, baseDomain string) string {
	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}
	if !strings.HasSuffix(host, baseDomain) {
		return ""
	}

	subdomain := strings.TrimSuffix(host, "."+baseDomain)
	if subdomain == host || subdomain == "" || subdomain == "www" {
		return ""
	}
	return strings.Split(subdomain, ".")[0]
}

func respondUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "UNAUTHORIZED",
			"message": message,
		},
	})
}

// GetTenantID returns the resolved tenant ID, empty when none was set.
func GetTenantID(c *gin.Context) string {
	if tenantID, exists := c.Get(TenantIDKey); exists {
		if tid, ok := tenantID.(string); ok {
			return tid
		}
	}
	return ""
}

// GetTenantCode returns the tenant code set by a validator, empty otherwise.
func GetTenantCode(c *gin.Context) string {
	if tenantCode, exists := c.Get(TenantCodeKey); exists {
		if code, ok := tenantCode.(string); ok {
			return code
		}
	}
	return ""
}
