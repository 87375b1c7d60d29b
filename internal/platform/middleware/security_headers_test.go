package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func runSecurityHeaders(t *testing.T, req *http.Request, h echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	t.Helper()
	rec := httptest.NewRecorder()
	err := SecurityHeaders()(h)(echo.New().NewContext(req, rec))
	return rec, err
}

func TestSecurityHeaders_API(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/person/diaries", nil)
	rec, err := runSecurityHeaders(t, req, okHandler)
	if err != nil {
		t.Fatal(err)
	}
	for _, kv := range apiHeaders {
		if got := rec.Header().Get(kv[0]); got != kv[1] {
			t.Errorf("%s = %q, want %q", kv[0], got, kv[1])
		}
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS must not be sent over plain HTTP")
	}
}

func TestSecurityHeaders_HSTSBehindProxy(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/person/help", nil)
	req.Header.Set(echo.HeaderXForwardedProto, "https")
	rec, _ := runSecurityHeaders(t, req, okHandler)
	if rec.Header().Get("Strict-Transport-Security") != hsts {
		t.Errorf("expected HSTS, got %q", rec.Header().Get("Strict-Transport-Security"))
	}
}

func TestSecurityHeaders_HandlerMayAllowCaching(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/media/profile/abc.png", nil)
	rec, _ := runSecurityHeaders(t, req, func(c echo.Context) error {
		c.Response().Header().Set("Cache-Control", "public, max-age=86400")
		return c.Blob(http.StatusOK, "image/png", []byte{0x89})
	})
	if rec.Header().Get("Cache-Control") != "public, max-age=86400" {
		t.Errorf("handler override lost: %q", rec.Header().Get("Cache-Control"))
	}
}

func TestSecurityHeaders_KeepsHandlerError(t *testing.T) {
	want := echo.NewHTTPError(http.StatusForbidden, "Only person accounts can access this resource")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/person/help", nil)
	rec, err := runSecurityHeaders(t, req, func(echo.Context) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("got %v", err)
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("headers must be set before the handler fails")
	}
}
