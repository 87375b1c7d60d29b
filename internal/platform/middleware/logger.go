package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/saude/saude/internal/platform/auth"
)

// Logger writes one line per request. Identity is read after the handler
// runs, so the person or provider resolved by the auth chain is included.
// Health checks log at debug.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			req := c.Request()
			status := responseStatus(c, err)
			evt := requestEvent(logger, req.URL.Path, status, err)

			ctx := req.Context()
			if uid := auth.UserIDFromContext(ctx); uid != "" {
				evt = evt.Str("user_id", uid)
			}
			if p := auth.ProfileFromContext(ctx); p.Role != "" {
				evt = evt.Str("role", p.Role)
				if p.PersonID != 0 {
					evt = evt.Int64("person_id", p.PersonID)
				}
				if p.ProviderID != 0 {
					evt = evt.Int64("provider_id", p.ProviderID)
				}
			}

			rid, _ := c.Get("request_id").(string)
			evt.Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Int64("bytes_out", c.Response().Size).
				Str("remote_ip", c.RealIP()).
				Msg("request")
			return err
		}
	}
}

func responseStatus(c echo.Context, err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return c.Response().Status
}

func requestEvent(logger zerolog.Logger, path string, status int, err error) *zerolog.Event {
	switch {
	case status >= 500:
		return logger.Error().Err(err)
	case err != nil || status >= 400:
		return logger.Warn().Err(err)
	case strings.HasPrefix(path, "/health"):
		return logger.Debug()
	default:
		return logger.Info()
	}
}
