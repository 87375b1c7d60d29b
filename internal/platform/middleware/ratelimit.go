package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/saude/saude/internal/platform/auth"
)

// RateCounter counts hits for a key inside a fixed window. Hit returns the
// count including this hit and the time left until the window resets.
type RateCounter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RateLimitConfig caps each caller at Limit requests per Window.
type RateLimitConfig struct {
	Limit   int
	Window  time.Duration
	Counter RateCounter // nil counts in process
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Limit: 300, Window: time.Minute}
}

// RateLimit rejects callers over their window budget with 429. Counter
// failures let the request through.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	if cfg.Limit <= 0 || cfg.Window <= 0 {
		cfg = DefaultRateLimitConfig()
	}
	counter := cfg.Counter
	if counter == nil {
		counter = NewMemoryRateCounter()
	}
	limit := strconv.Itoa(cfg.Limit)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			n, reset, err := counter.Hit(c.Request().Context(), rateLimitKey(c), cfg.Window)
			if err != nil {
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			remaining := int64(cfg.Limit) - n
			if remaining < 0 {
				remaining = 0
			}
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if n > int64(cfg.Limit) {
				h.Set("Retry-After", strconv.Itoa(retrySeconds(reset)))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

func retrySeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		return 1
	}
	return s
}

// rateLimitKey buckets authenticated callers by account and anonymous ones
// by client IP.
func rateLimitKey(c echo.Context) string {
	if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
		return "account:" + uid
	}
	return "ip:" + c.RealIP()
}

type window struct {
	count int64
	ends  time.Time
}

// MemoryRateCounter keeps windows in process. Expired windows are swept
// whenever a new window opens.
type MemoryRateCounter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewMemoryRateCounter() *MemoryRateCounter {
	return &MemoryRateCounter{windows: make(map[string]*window), now: time.Now}
}

func (m *MemoryRateCounter) Hit(_ context.Context, key string, d time.Duration) (int64, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[key]
	if !ok || !now.Before(w.ends) {
		for k, old := range m.windows {
			if !now.Before(old.ends) {
				delete(m.windows, k)
			}
		}
		w = &window{ends: now.Add(d)}
		m.windows[key] = w
	}
	w.count++
	return w.count, w.ends.Sub(now), nil
}

// RedisRateCounter shares windows between replicas with INCR and PEXPIRE.
type RedisRateCounter struct {
	client redis.Cmdable
	prefix string
}

func NewRedisRateCounter(client redis.Cmdable, prefix string) *RedisRateCounter {
	if prefix == "" {
		prefix = "saude:ratelimit:"
	}
	return &RedisRateCounter{client: client, prefix: prefix}
}

func (r *RedisRateCounter) Hit(ctx context.Context, key string, d time.Duration) (int64, time.Duration, error) {
	k := r.prefix + key
	n, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, 0, err
	}
	if n == 1 {
		if err := r.client.PExpire(ctx, k, d).Err(); err != nil {
			return 0, 0, err
		}
		return n, d, nil
	}
	ttl, err := r.client.PTTL(ctx, k).Result()
	if err != nil {
		return 0, 0, err
	}
	if ttl < 0 {
		// The key lost its expiry; give it one so the caller is not locked out.
		if err := r.client.PExpire(ctx, k, d).Err(); err != nil {
			return 0, 0, err
		}
		ttl = d
	}
	return n, ttl, nil
}
