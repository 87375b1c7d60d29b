// Package media serves stored blobs, such as profile pictures, under the
// public media prefix.
package media

import (
	"errors"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/saude/saude/internal/platform/blobstore"
)

// Prefix is the URL path under which blobs are served. Picture URLs stored
// on profiles start with it.
const Prefix = "/api/v1/media/"

type Handler struct {
	blobs  blobstore.Store
	logger zerolog.Logger
}

func NewHandler(blobs blobstore.Store, logger zerolog.Logger) *Handler {
	return &Handler{blobs: blobs, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/media/*", h.Serve)
}

// cleanKey rejects keys that try to leave the store namespace.
func cleanKey(raw string) (string, bool) {
	if raw == "" || strings.Contains(raw, "..") || strings.HasPrefix(raw, "/") {
		return "", false
	}
	key := path.Clean(raw)
	if key == "." {
		return "", false
	}
	return key, true
}

func (h *Handler) Serve(c echo.Context) error {
	key, ok := cleanKey(c.Param("*"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	body, obj, err := h.blobs.Get(c.Request().Context(), key)
	if errors.Is(err, blobstore.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		h.logger.Error().Err(err).Str("key", key).Msg("read blob")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
	defer body.Close()

	etag := `"` + obj.Hash + `"`
	res := c.Response()
	res.Header().Set("ETag", etag)
	res.Header().Set("Cache-Control", "public, max-age=86400")
	if obj.Hash != "" && c.Request().Header.Get("If-None-Match") == etag {
		return c.NoContent(http.StatusNotModified)
	}
	if obj.Size > 0 {
		res.Header().Set(echo.HeaderContentLength, strconv.FormatInt(obj.Size, 10))
	}
	return c.Stream(http.StatusOK, obj.ContentType, body)
}
