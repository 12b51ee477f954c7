// redis_ratelimit.go provides a Redis-backed rate limiter for multi-replica
// deployments. The in-memory limiter in ratelimit.go counts per process; behind
// a load balancer each replica would grant the full budget independently.
// Backing the counters with Redis gives one shared budget per client.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter enforces per-client limits using Redis GCRA counters.
type RedisRateLimiter struct {
	limiter *redis_rate.Limiter
	config  RateLimitConfig
}

// NewRedisRateLimiter creates a limiter backed by the given Redis client.
func NewRedisRateLimiter(client *redis.Client, config RateLimitConfig) *RedisRateLimiter {
	return &RedisRateLimiter{
		limiter: redis_rate.NewLimiter(client),
		config:  config,
	}
}

// RedisRateLimitMiddleware creates a Gin middleware that rate limits requests
// against the shared Redis budget. If Redis is unreachable the request is
// allowed through: availability beats strict limiting for this service.
func RedisRateLimitMiddleware(rl *RedisRateLimiter) gin.HandlerFunc {
	limit := redis_rate.Limit{
		Rate:   rl.config.RequestsPerMinute,
		Burst:  rl.config.BurstSize,
		Period: time.Minute,
	}

	return func(c *gin.Context) {
		key := getRateLimitKey(c)

		res, err := rl.limiter.Allow(c.Request.Context(), key, limit)
		if err != nil {
			// Fail open on Redis errors.
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.config.RequestsPerMinute))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if res.Allowed == 0 {
			retryAfter := int(res.RetryAfter / time.Second)
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success":     false,
				"message":     "Rate limit exceeded",
				"retry_after": retryAfter,
			})
			return
		}

		c.Next()
	}
}
