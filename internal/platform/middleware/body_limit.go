package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

const (
	defaultBodyLimit   = "1M"
	defaultUploadLimit = "6M"
)

// UploadPaths lists the routes that accept binary uploads.
var UploadPaths = []string{"/api/v1/account/profile-picture"}

// BodyLimit caps request bodies with echo's limiter: uploadLimit on
// UploadPaths, defaultLimit everywhere else. Limits use echo's notation
// ("512K", "1M"); empty strings take the defaults. An unparsable limit
// panics at startup.
func BodyLimit(defaultLimit, uploadLimit string) echo.MiddlewareFunc {
	if defaultLimit == "" {
		defaultLimit = defaultBodyLimit
	}
	if uploadLimit == "" {
		uploadLimit = defaultUploadLimit
	}
	general := echomw.BodyLimitWithConfig(echomw.BodyLimitConfig{
		Limit:   defaultLimit,
		Skipper: isUpload,
	})
	upload := echomw.BodyLimitWithConfig(echomw.BodyLimitConfig{
		Limit:   uploadLimit,
		Skipper: func(c echo.Context) bool { return !isUpload(c) },
	})
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return general(upload(next))
	}
}

func isUpload(c echo.Context) bool {
	path := c.Request().URL.Path
	for _, p := range UploadPaths {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
