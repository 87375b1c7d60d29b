package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout puts a deadline on the request context. Database and broker
// calls honour it, and a handler failing because the deadline passed is
// answered with 504. The handler keeps the response writer to itself, so a
// late write can never race a timeout reply.
//
// Paths under any of the skip prefixes are long-lived and get no deadline.
func RequestTimeout(timeout time.Duration, skip ...string) echo.MiddlewareFunc {
	if len(skip) == 0 {
		skip = []string{"/ws"}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			for _, p := range skip {
				if strings.HasPrefix(path, p) {
					return next(c)
				}
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
				return echo.NewHTTPError(http.StatusGatewayTimeout, "Request processing exceeded the allowed time limit").SetInternal(err)
			}
			return err
		}
	}
}
