package linking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// AttemptLimiter counts code lookups per caller in fixed windows.
type AttemptLimiter interface {
	// Allow records one attempt for key and reports whether it is within
	// the limit.
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisLimiter shares attempt counters between server replicas.
type RedisLimiter struct {
	client    redis.Cmdable
	keyPrefix string
	max       int
	window    time.Duration
}

func NewRedisLimiter(client redis.Cmdable, keyPrefix string, max int, window time.Duration) *RedisLimiter {
	if keyPrefix == "" {
		keyPrefix = "saude"
	}
	return &RedisLimiter{client: client, keyPrefix: keyPrefix, max: max, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := l.keyPrefix + ":linkcode:attempts:" + key
	n, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("count attempt: %w", err)
	}
	if n == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return false, fmt.Errorf("expire attempt counter: %w", err)
		}
	}
	return n <= int64(l.max), nil
}

type window struct {
	count int
	reset time.Time
}

// MemoryLimiter is the single-process fallback.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	max     int
	period  time.Duration
	now     func() time.Time
}

func NewMemoryLimiter(max int, period time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*window),
		max:     max,
		period:  period,
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for k, w := range l.windows {
		if !now.Before(w.reset) {
			delete(l.windows, k)
		}
	}
	w, ok := l.windows[key]
	if !ok {
		w = &window{reset: now.Add(l.period)}
		l.windows[key] = w
	}
	w.count++
	return w.count <= l.max, nil
}
