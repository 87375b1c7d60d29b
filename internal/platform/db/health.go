package db

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// Pinger is a dependency that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// Check is the outcome of one ping.
type Check struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// PoolStats is a snapshot of the pgx pool counters.
type PoolStats struct {
	Total    int32 `json:"total"`
	Idle     int32 `json:"idle"`
	Acquired int32 `json:"acquired"`
	Max      int32 `json:"max"`
	Waits    int64 `json:"empty_acquire_waits"`
}

// HealthReport is the /health/db body.
type HealthReport struct {
	Status string           `json:"status"`
	Checks map[string]Check `json:"checks"`
	Pool   *PoolStats       `json:"pool,omitempty"`
}

const healthTimeout = 5 * time.Second

// HealthHandler pings the database and each named dependency in parallel
// and answers 503 when any of them fails.
func HealthHandler(pool *pgxpool.Pool, deps map[string]Pinger) echo.HandlerFunc {
	all := make(map[string]Pinger, len(deps)+1)
	for name, p := range deps {
		all[name] = p
	}
	if pool != nil {
		all["postgres"] = pool
	}

	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()

		report := runChecks(ctx, all)
		if pool != nil {
			s := pool.Stat()
			report.Pool = &PoolStats{
				Total:    s.TotalConns(),
				Idle:     s.IdleConns(),
				Acquired: s.AcquiredConns(),
				Max:      s.MaxConns(),
				Waits:    s.EmptyAcquireCount(),
			}
		}

		code := http.StatusOK
		if report.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		return c.JSON(code, report)
	}
}

func runChecks(ctx context.Context, deps map[string]Pinger) *HealthReport {
	report := &HealthReport{Status: "healthy", Checks: make(map[string]Check, len(deps))}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, p := range deps {
		wg.Add(1)
		go func(name string, p Pinger) {
			defer wg.Done()
			start := time.Now()
			err := p.Ping(ctx)
			chk := Check{Status: "ok", LatencyMS: time.Since(start).Milliseconds()}
			if err != nil {
				chk.Status, chk.Error = "down", err.Error()
			}

			mu.Lock()
			defer mu.Unlock()
			report.Checks[name] = chk
			if err != nil {
				report.Status = "unhealthy"
			}
		}(name, p)
	}
	wg.Wait()
	return report
}
