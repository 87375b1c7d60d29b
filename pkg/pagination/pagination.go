// Package pagination reads paging query parameters and shapes paged
// responses.
package pagination

import (
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// ErrInvalidLimit is returned by LimitOnly for a limit that is not a
// positive integer.
var ErrInvalidLimit = errors.New("invalid limit")

// Params is a limit/offset window.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads ?limit and ?offset. Bad or missing values fall back to
// DefaultLimit and 0, and limit is capped at MaxLimit.
func FromContext(c echo.Context) Params {
	p := Params{Limit: atoiOr(c.QueryParam("limit"), DefaultLimit)}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if off := atoiOr(c.QueryParam("offset"), 0); off > 0 {
		p.Offset = off
	}
	return p
}

// LimitOnly reads an optional ?limit where 0 means "everything". Diary lists
// use it.
func LimitOnly(c echo.Context) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, ErrInvalidLimit
	}
	return min(n, MaxLimit), nil
}

func atoiOr(raw string, def int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// Page is one window of a larger result set. NextOffset is set while more
// items remain.
type Page[T any] struct {
	Data       []T  `json:"data"`
	Total      int  `json:"total"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	HasMore    bool `json:"has_more"`
	NextOffset *int `json:"next_offset,omitempty"`
}

func NewPage[T any](items []T, total int, p Params) *Page[T] {
	if items == nil {
		items = []T{}
	}
	page := &Page[T]{Data: items, Total: total, Limit: p.Limit, Offset: p.Offset}
	if next := p.Offset + p.Limit; next < total {
		page.HasMore = true
		page.NextOffset = &next
	}
	return page
}
