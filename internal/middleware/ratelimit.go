// ratelimit.go provides per-client token-bucket rate limiting. A single replica uses the
// in-memory RateLimiter; when security.rate_limiting.redis_url is configured the bucket lives
// in Redis so all replicas share it, with the in-memory bucket as fallback while Redis is down.
package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"

	"github.com/cirrus-mro/cirrus-api/internal/config"
	"github.com/cirrus-mro/cirrus-api/internal/safego"
	"github.com/cirrus-mro/cirrus-api/internal/telemetry"
)

// Limiter backends, used as the metric label
const (
	backendMemory = "memory"
	backendRedis  = "redis"
)

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained refill rate
	RequestsPerMinute int
	// BurstSize is the bucket capacity
	BurstSize int
	// CleanupInterval is how often idle in-memory buckets are evicted
	CleanupInterval time.Duration
}

// RateLimitConfigFrom builds a RateLimitConfig from the security settings
func RateLimitConfigFrom(cfg config.RateLimitingConfig) RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: cfg.RequestsPerMinute,
		BurstSize:         cfg.Burst,
		CleanupInterval:   5 * time.Minute,
	}
}

// LimitResult is the outcome of one Allow call
type LimitResult struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	Backend    string
}

// Limiter decides whether a request identified by key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) LimitResult
	Limit() int
	Stop()
}

// rateLimitEntry tracks the bucket of a single client
type rateLimitEntry struct {
	tokens     float64
	lastUpdate time.Time
}

// RateLimiter implements an in-memory token bucket rate limiter
type RateLimiter struct {
	config  RateLimitConfig
	entries map[string]*rateLimitEntry
	mu      sync.Mutex
	stopCh  chan struct{}
	stop    sync.Once
	now     func() time.Time
}

// NewRateLimiter creates a new rate limiter and starts its cleanup goroutine
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		entries: make(map[string]*rateLimitEntry),
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}

	safego.Go("rate-limiter-cleanup", rl.cleanup)

	return rl
}

// cleanup periodically removes buckets idle for more than 10 minutes
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.evictIdle(10 * time.Minute)
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RateLimiter) evictIdle(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for key, entry := range rl.entries {
		if now.Sub(entry.lastUpdate) > maxIdle {
			delete(rl.entries, key)
		}
	}
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stop.Do(func() { close(rl.stopCh) })
}

// Limit returns the configured requests per minute
func (rl *RateLimiter) Limit() int {
	return rl.config.RequestsPerMinute
}

// Allow consumes one token for key if one is available
func (rl *RateLimiter) Allow(_ context.Context, key string) LimitResult {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	burst := float64(rl.config.BurstSize)
	perSecond := float64(rl.config.RequestsPerMinute) / 60.0

	entry, exists := rl.entries[key]
	if !exists {
		entry = &rateLimitEntry{tokens: burst, lastUpdate: now}
		rl.entries[key] = entry
	} else {
		elapsed := now.Sub(entry.lastUpdate).Seconds()
		entry.tokens = math.Min(burst, entry.tokens+elapsed*perSecond)
		entry.lastUpdate = now
	}

	if entry.tokens >= 1 {
		entry.tokens--
		return LimitResult{Allowed: true, Remaining: int(entry.tokens), Backend: backendMemory}
	}

	retry := time.Minute
	if perSecond > 0 {
		retry = time.Duration((1 - entry.tokens) / perSecond * float64(time.Second))
	}
	return LimitResult{Allowed: false, Remaining: 0, RetryAfter: retry, Backend: backendMemory}
}

// RedisRateLimiter shares buckets across replicas through Redis (GCRA via redis_rate).
// Redis errors fall back to the in-memory limiter so an outage never blocks traffic.
type RedisRateLimiter struct {
	limiter  *redis_rate.Limiter
	limit    redis_rate.Limit
	fallback *RateLimiter
	closer   func() error
}

// NewRedisRateLimiter creates a limiter backed by client
func NewRedisRateLimiter(client redis.UniversalClient, config RateLimitConfig) *RedisRateLimiter {
	return &RedisRateLimiter{
		limiter: redis_rate.NewLimiter(client),
		limit: redis_rate.Limit{
			Rate:   config.RequestsPerMinute,
			Burst:  config.BurstSize,
			Period: time.Minute,
		},
		fallback: NewRateLimiter(config),
		closer:   client.Close,
	}
}

// Limit returns the configured requests per minute
func (rl *RedisRateLimiter) Limit() int {
	return rl.limit.Rate
}

// Allow consumes one token for key in Redis
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) LimitResult {
	res, err := rl.limiter.Allow(ctx, "mro:ratelimit:"+key, rl.limit)
	if err != nil {
		slog.Warn("redis rate limiter unavailable, using in-memory bucket", "error", err)
		return rl.fallback.Allow(ctx, key)
	}
	return LimitResult{
		Allowed:    res.Allowed > 0,
		Remaining:  res.Remaining,
		RetryAfter: res.RetryAfter,
		Backend:    backendRedis,
	}
}

// Stop stops the fallback's cleanup and closes the Redis client
func (rl *RedisRateLimiter) Stop() {
	rl.fallback.Stop()
	if rl.closer != nil {
		if err := rl.closer(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
}

// NewLimiter returns a Redis-backed limiter when redis_url is set, otherwise an in-memory one
func NewLimiter(cfg config.RateLimitingConfig) (Limiter, error) {
	rlc := RateLimitConfigFrom(cfg)
	if cfg.RedisURL == "" {
		return NewRateLimiter(rlc), nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	return NewRedisRateLimiter(redis.NewClient(opts), rlc), nil
}

// RateLimitMiddleware rejects requests over the limit with 429
func RateLimitMiddleware(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		res := limiter.Allow(c.Request.Context(), getRateLimitKey(c))

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if !res.Allowed {
			retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			telemetry.RateLimitRejectionsTotal.WithLabelValues(res.Backend).Inc()
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": retryAfter,
			})
			return
		}

		c.Next()
	}
}

// getRateLimitKey keys authenticated callers by identity and everyone else by client IP
func getRateLimitKey(c *gin.Context) string {
	if userID := c.GetString(UserIDKey); userID != "" {
		return "user:" + userID
	}
	return "ip:" + c.ClientIP()
}
