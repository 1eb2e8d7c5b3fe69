// ratelimit.go provides Gin middleware enforcing a per-client request
// throttle in Redis, returning 429 responses when the configured
// requests-per-minute threshold is exceeded.
//
// This is the coarse transport-level throttle, distinct from the per
// operation quotas in internal/quota: the throttle protects the service
// from any single noisy client, while quotas budget specific privileged
// operations. Both fail open on a Redis outage.
package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"

	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/telemetry"
)

// RateLimitConfig holds configuration for the request throttle.
type RateLimitConfig struct {
	// RequestsPerMinute is the maximum number of requests allowed per minute
	RequestsPerMinute int
	// BurstSize is the maximum burst of requests allowed
	BurstSize int
}

// DefaultRateLimitConfig returns sensible defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 200, // Higher limit for authenticated API usage
		BurstSize:         50,  // Allow burst for pages that load multiple resources
	}
}

// AuthRateLimitConfig returns stricter limits for credential endpoints.
func AuthRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10,
		BurstSize:         5,
	}
}

// RateLimiter wraps the Redis-backed GCRA limiter.
type RateLimiter struct {
	limiter *redis_rate.Limiter
	config  RateLimitConfig
}

// NewRateLimiter creates a rate limiter on the shared Redis client.
func NewRateLimiter(rdb *redis.Client, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		limiter: redis_rate.NewLimiter(rdb),
		config:  config,
	}
}

// RateLimitMiddleware creates a Gin middleware that throttles requests.
func RateLimitMiddleware(limiter *RateLimiter) gin.HandlerFunc {
	limit := redis_rate.Limit{
		Rate:   limiter.config.RequestsPerMinute,
		Burst:  limiter.config.BurstSize,
		Period: time.Minute,
	}
	return func(c *gin.Context) {
		key := "throttle:" + clientKey(c)

		res, err := limiter.limiter.Allow(c.Request.Context(), key, limit)
		if err != nil {
			// Redis down: fail open. The auth layer still fails closed, so
			// this only lifts the throttle, never the access control.
			slog.Warn("request throttle unavailable, failing open", "error", err)
			telemetry.StoreErrors.WithLabelValues("throttle").Inc()
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.config.RequestsPerMinute))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if res.Allowed == 0 {
			retryAfter := int(res.RetryAfter / time.Second)
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			telemetry.ThrottleRejections.Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": retryAfter,
			})
			return
		}

		c.Next()
	}
}

// clientKey picks the throttle key for a request. The throttle runs before
// auth, so it keys on the transport-level caller: the client IP.
func clientKey(c *gin.Context) string {
	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}
