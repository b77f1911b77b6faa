package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter is an in-memory fixed-window limiter. Usage ingestion is
// bursty, so limits are tracked per key (tenant, falling back to client
// IP) rather than globally.
type RateLimiter struct {
	mu          sync.Mutex
	buckets     map[string]*bucket
	limit       int           // Maximum requests per window
	window      time.Duration // Time window
	cleanupTick time.Duration // Cleanup interval
}

type bucket struct {
	tokens    int
	lastReset time.Time
}

// NewRateLimiter creates a new rate limiter allowing limit requests
// per window for each key
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		buckets:     make(map[string]*bucket),
		limit:       limit,
		window:      window,
		cleanupTick: window * 2,
	}
	go rl.cleanup()
	return rl
}

// cleanup drops buckets idle for more than two windows
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.cleanupTick)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		now := time.Now()
		for key, b := range rl.buckets {
			if now.Sub(b.lastReset) > rl.window*2 {
				delete(rl.buckets, key)
			}
		}
		rl.mu.Unlock()
	}
}

// Allow reports whether a request for the key fits in the current
// window and how many requests the key has left
func (rl *RateLimiter) Allow(key string) (bool, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, exists := rl.buckets[key]

	if !exists {
		rl.buckets[key] = &bucket{
			tokens:    rl.limit - 1,
			lastReset: now,
		}
		return true, rl.limit - 1
	}

	if now.Sub(b.lastReset) >= rl.window {
		b.tokens = rl.limit - 1
		b.lastReset = now
		return true, b.tokens
	}

	if b.tokens > 0 {
		b.tokens--
		return true, b.tokens
	}

	return false, 0
}

// Remaining returns the number of requests left for the key in the
// current window without consuming one
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, exists := rl.buckets[key]
	if !exists {
		return rl.limit
	}
	if time.Since(b.lastReset) >= rl.window {
		return rl.limit
	}
	return b.tokens
}

// rateLimitKey picks the limit subject for a request. Tenants are the
// natural quota unit for the billing API; requests that carry no tenant
// header (health checks, system routes) fall back to the client IP.
func rateLimitKey(c *gin.Context) string {
	if tenantID := c.GetHeader("X-Tenant-ID"); tenantID != "" {
		return "tenant:" + tenantID
	}
	return "ip:" + c.ClientIP()
}

func tooManyRequests(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "RATE_LIMIT_EXCEEDED",
			"message": "Too many requests. Please try again later.",
		},
	})
}

// RateLimit returns a rate limiting middleware keyed by tenant
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return RateLimitByKey(limiter, rateLimitKey)
}

// RateLimitByKey returns a rate limiting middleware with a custom key
// extractor
func RateLimitByKey(limiter *RateLimiter, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFunc(c)

		allowed, remaining := limiter.Allow(key)
		if !allowed {
			tooManyRequests(c)
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		c.Next()
	}
}
