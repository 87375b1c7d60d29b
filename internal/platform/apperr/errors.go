// Package apperr defines the error taxonomy shared by the domain packages and
// its mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrExpired         = errors.New("expired")
	ErrAlreadyConsumed = errors.New("already consumed")
	ErrTooManyAttempts = errors.New("too many attempts")
)

var sentinels = []error{
	ErrNotFound, ErrValidation, ErrConflict, ErrForbidden,
	ErrExpired, ErrAlreadyConsumed, ErrTooManyAttempts,
}

// HTTPStatus maps a domain error onto the status code returned to clients.
// Expired and consumed link codes share the 400 used for invalid codes so that
// a caller cannot tell which codes exist.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrExpired),
		errors.Is(err, ErrAlreadyConsumed):
		return http.StatusBadRequest
	case errors.Is(err, ErrTooManyAttempts):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the client-facing text of err: the detail that follows a
// leading sentinel, or the whole message when err was not built as
// fmt.Errorf("%w: detail", sentinel).
func Message(err error) string {
	msg := err.Error()
	for _, s := range sentinels {
		if prefix := s.Error() + ": "; strings.HasPrefix(msg, prefix) {
			return strings.TrimPrefix(msg, prefix)
		}
	}
	return msg
}

// ToHTTP converts err into an *echo.HTTPError. Internal errors are reported
// with a generic message.
func ToHTTP(err error) *echo.HTTPError {
	code := HTTPStatus(err)
	if code == http.StatusInternalServerError {
		return echo.NewHTTPError(code, "internal server error")
	}
	return echo.NewHTTPError(code, Message(err))
}
