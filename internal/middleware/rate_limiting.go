package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"rte-image-backend/internal/config"
)

const rateLimitManagerKey = "rateLimitManager"

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// WithRateLimitManager exposes the manager to the rate limiting middlewares.
func WithRateLimitManager(manager *RateLimitManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(rateLimitManagerKey, manager)
		c.Next()
	}
}

// RateLimitMiddleware limits the request rate per client IP. Requests for
// stored files below the public base URL are not limited.
func RateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if shouldBypassRateLimit(c.Request, cfg.PublicBaseURL) {
			c.Next()
			return
		}

		manager := managerFromContext(c)
		if manager == nil {
			c.Next()
			return
		}

		limiter := manager.GetVisitor(
			c.ClientIP(),
			cfg.RateLimitRequests,
			cfg.RateLimitWindow,
			cfg.RateLimitBurst,
		)
		if limiter == nil {
			c.Next()
			return
		}

		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests, please try again later",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// UploadRateLimitMiddleware limits file uploads per IP.
// Default: 10 requests per 300 seconds.
func UploadRateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	requestsPerWindow := cfg.UploadRateLimitRequests
	if requestsPerWindow <= 0 {
		requestsPerWindow = 10
	}
	windowSeconds := cfg.UploadRateLimitWindow
	if windowSeconds <= 0 {
		windowSeconds = 300
	}

	return func(c *gin.Context) {
		manager := managerFromContext(c)
		if manager == nil {
			c.Next()
			return
		}

		limiter := manager.GetCriticalOperationLimiter(c.ClientIP(), operationUpload, requestsPerWindow, windowSeconds)
		if limiter == nil {
			c.Next()
			return
		}

		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":          "upload rate limit exceeded",
				"retry_after":    windowSeconds,
				"max_requests":   requestsPerWindow,
				"window_seconds": windowSeconds,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func managerFromContext(c *gin.Context) *RateLimitManager {
	value, exists := c.Get(rateLimitManagerKey)
	if !exists {
		return nil
	}
	manager, _ := value.(*RateLimitManager)
	return manager
}

func shouldBypassRateLimit(r *http.Request, publicBaseURL string) bool {
	if r == nil || r.URL == nil {
		return false
	}

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}

	path := r.URL.Path
	if path == "" {
		return false
	}

	if publicBaseURL != "" && strings.HasPrefix(path, strings.TrimRight(publicBaseURL, "/")+"/") {
		return true
	}

	switch path {
	case "/favicon.ico", "/health":
		return true
	}

	return false
}
