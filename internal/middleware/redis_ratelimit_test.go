package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// ---------------------------------------------------------------------------
// RedisRateLimitMiddleware — fail-open behavior
// ---------------------------------------------------------------------------

func TestRedisRateLimitMiddleware_FailsOpenWhenRedisUnreachable(t *testing.T) {
	// Point the client at a port nothing listens on. The limiter call errors
	// and the middleware must let the request through.
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })

	rl := NewRedisRateLimiter(client, DefaultRateLimitConfig())

	r := gin.New()
	r.Use(RedisRateLimitMiddleware(rl))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:1234"
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 (fail open when Redis is down)", w.Code)
	}
	if got := w.Header().Get("X-RateLimit-Limit"); got != "" {
		t.Errorf("X-RateLimit-Limit = %q, want unset when limiter errored", got)
	}
}

func TestNewRedisRateLimiter_CarriesConfig(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { client.Close() })

	cfg := IngestRateLimitConfig()
	rl := NewRedisRateLimiter(client, cfg)
	if rl.config.RequestsPerMinute != cfg.RequestsPerMinute {
		t.Errorf("RequestsPerMinute = %d, want %d", rl.config.RequestsPerMinute, cfg.RequestsPerMinute)
	}
	if rl.limiter == nil {
		t.Error("limiter not initialised")
	}
}
