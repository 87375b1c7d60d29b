package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/saude/saude/internal/platform/auth"
)

const stackSize = 8 << 10

// Recovery turns a handler panic into a 500 and logs the stack with the
// caller's account. http.ErrAbortHandler is re-raised so net/http can drop
// the connection quietly.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}

				stack := make([]byte, stackSize)
				stack = stack[:runtime.Stack(stack, false)]
				rid, _ := c.Get("request_id").(string)
				logger.Error().
					Str("request_id", rid).
					Str("user_id", auth.UserIDFromContext(c.Request().Context())).
					Str("route", c.Path()).
					Str("method", c.Request().Method).
					Str("panic", fmt.Sprint(r)).
					Bytes("stack", stack).
					Msg("handler panicked")

				err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}()
			return next(c)
		}
	}
}
