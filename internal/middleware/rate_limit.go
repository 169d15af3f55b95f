package middleware

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"reportdesk/internal/repository"
)

// RateLimiter is the quota check consumed by the import pipeline. It is
// injected so the fixed-window counter can be swapped for a distributed
// implementation without touching the handlers.
type RateLimiter interface {
	Allow(ctx context.Context, key string) bool
}

// FixedWindowLimiter counts requests per key in fixed windows held in
// process memory. Counters are not shared across replicas.
type FixedWindowLimiter struct {
	mu       sync.Mutex
	counts   map[string]int
	windowAt time.Time
	limit    int
	window   time.Duration
	now      func() time.Time
}

func NewFixedWindowLimiter(limit int, window time.Duration) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		counts: make(map[string]int),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func (l *FixedWindowLimiter) Allow(_ context.Context, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.windowAt) >= l.window {
		l.counts = make(map[string]int)
		l.windowAt = now
	}

	l.counts[key]++
	return l.counts[key] <= l.limit
}

// RedisFixedWindowLimiter shares the window counters through Redis so the
// quota holds across replicas. Fails open on Redis errors.
type RedisFixedWindowLimiter struct {
	cache  repository.CacheRepository
	limit  int
	window time.Duration
}

func NewRedisFixedWindowLimiter(cache repository.CacheRepository, limit int, window time.Duration) *RedisFixedWindowLimiter {
	return &RedisFixedWindowLimiter{
		cache:  cache,
		limit:  limit,
		window: window,
	}
}

func (l *RedisFixedWindowLimiter) Allow(ctx context.Context, key string) bool {
	bucket := time.Now().UTC().Truncate(l.window).Unix()
	counterKey := "ratelimit:" + key + ":" + time.Unix(bucket, 0).UTC().Format("20060102150405")

	count, err := l.cache.Increment(ctx, counterKey)
	if err != nil {
		log.Printf("Rate limiter Redis error for %s: %v", key, err)
		return true
	}
	if count == 1 {
		if err := l.cache.Expire(ctx, counterKey, l.window); err != nil {
			log.Printf("Rate limiter expire failed for %s: %v", counterKey, err)
		}
	}
	return count <= int64(l.limit)
}

// PerKeyRateLimit applies the injected limiter, keyed by the
// authenticated uploader when present, otherwise by client IP.
func PerKeyRateLimit(limiter RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString(ContextUploader)
		if key == "" {
			key = c.ClientIP()
		}

		if !limiter.Allow(c.Request.Context(), key) {
			log.Printf("Rate limit blocked %s for path: %s", key, c.Request.URL.Path)
			c.JSON(http.StatusTooManyRequests, gin.H{
				"code":    "rate_limited",
				"message": "import quota exceeded, please try again later",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RateLimitMiddleware is the coarse whole-server guard.
func RateLimitMiddleware(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" || c.Request.URL.Path == "/api/v1/health" {
			c.Next()
			return
		}

		if !limiter.Allow() {
			log.Printf("Rate limit blocked IP: %s for path: %s",
				c.ClientIP(), c.Request.URL.Path)

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate limit exceeded",
				"message": "please try again later",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
