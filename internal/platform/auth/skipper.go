package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// publicPaths bypass authentication.
var publicPaths = map[string]bool{
	"/health":    true,
	"/health/db": true,
}

// publicPrefixes covers the login endpoints, which issue tokens rather than
// consume them, and stored media, which image tags fetch without headers.
var publicPrefixes = []string{
	"/api/v1/auth/",
	"/api/v1/media/",
}

// AuthSkipper returns true for requests whose route should skip
// authentication.
func AuthSkipper(c echo.Context) bool {
	if IsPublicPath(c.Path()) {
		return true
	}
	return IsPublicPath(c.Request().URL.Path)
}

func IsPublicPath(path string) bool {
	if publicPaths[path] {
		return true
	}
	for _, p := range publicPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
