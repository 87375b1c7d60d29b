package linking

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/saude/saude/internal/platform/auth"
)

func newRequest(e *echo.Echo, method, body string, p *auth.Profile) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, "/", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, "/", nil)
	}
	if p != nil {
		req = req.WithContext(auth.WithProfile(req.Context(), p))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

var (
	anaProfile  = &auth.Profile{Role: auth.RolePerson, PersonID: ana}
	betoProfile = &auth.Profile{Role: auth.RoleProvider, ProviderID: drBeto}
)

func httpCode(t *testing.T, err error) int {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	return he.Code
}

func TestHandler_GenerateAndRedeem(t *testing.T) {
	env := newTestEnv()
	h, e := NewHandler(env.svc), echo.New()

	c, rec := newRequest(e, http.MethodPost, "", betoProfile)
	if err := h.Generate(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var g GeneratedCode
	if err := json.Unmarshal(rec.Body.Bytes(), &g); err != nil {
		t.Fatal(err)
	}
	if g.ExpiresInMinutes != 10 {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	c, rec = newRequest(e, http.MethodPost, `{"code":"`+g.Code+`"}`, anaProfile)
	if err := h.Preview(c); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rec.Body.String(), `"code_status"`) || !strings.Contains(rec.Body.String(), `"provider_id":10`) {
		t.Errorf("unexpected preview %s", rec.Body.String())
	}

	c, rec = newRequest(e, http.MethodPost, `{"code":"`+g.Code+`"}`, anaProfile)
	if err := h.Redeem(c); err != nil {
		t.Fatal(err)
	}
	var res RedeemResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Status != "linked" || res.ProviderID != drBeto {
		t.Errorf("unexpected redeem %+v", res)
	}

	c, _ = newRequest(e, http.MethodPost, `{"code":"`+g.Code+`"}`, anaProfile)
	err := h.Redeem(c)
	if httpCode(t, err) != http.StatusBadRequest {
		t.Errorf("expected 400 on reuse, got %v", err)
	}
	if he := err.(*echo.HTTPError); he.Message != MsgInvalidCode {
		t.Errorf("expected %q, got %v", MsgInvalidCode, he.Message)
	}
}

func TestHandler_Redeem_MissingCode(t *testing.T) {
	env := newTestEnv()
	h, e := NewHandler(env.svc), echo.New()
	c, _ := newRequest(e, http.MethodPost, `{}`, anaProfile)
	err := h.Redeem(c)
	if httpCode(t, err) != http.StatusBadRequest || err.(*echo.HTTPError).Message != MsgCodeRequired {
		t.Errorf("expected 400 %q, got %v", MsgCodeRequired, err)
	}
}

func TestHandler_NoProfile(t *testing.T) {
	env := newTestEnv()
	h, e := NewHandler(env.svc), echo.New()

	c, _ := newRequest(e, http.MethodPost, "", nil)
	if got := httpCode(t, h.Generate(c)); got != http.StatusNotFound {
		t.Errorf("generate: expected 404, got %d", got)
	}
	c, _ = newRequest(e, http.MethodPost, `{"code":"AAAAAA"}`, nil)
	if got := httpCode(t, h.Redeem(c)); got != http.StatusNotFound {
		t.Errorf("redeem: expected 404, got %d", got)
	}
}

func TestHandler_Unlink(t *testing.T) {
	env := newTestEnv()
	env.links.edges[[2]int64{ana, drBeto}] = true
	h, e := NewHandler(env.svc), echo.New()

	c, _ := newRequest(e, http.MethodPost, `{"person_id":2,"provider_id":10}`, anaProfile)
	if got := httpCode(t, h.Unlink(c)); got != http.StatusForbidden {
		t.Errorf("expected 403 for another person's link, got %d", got)
	}

	c, rec := newRequest(e, http.MethodPost, `{"person_id":1,"provider_id":10}`, betoProfile)
	if err := h.Unlink(c); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rec.Body.String(), `"status":"unlinked"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_LinkedLists(t *testing.T) {
	env := newTestEnv()
	env.links.edges[[2]int64{ana, drBeto}] = true
	h, e := NewHandler(env.svc), echo.New()

	c, rec := newRequest(e, http.MethodGet, "", betoProfile)
	if err := h.LinkedPersons(c); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rec.Body.String(), `"name":"Ana"`) || !strings.Contains(rec.Body.String(), `"last_help_date"`) {
		t.Errorf("unexpected persons %s", rec.Body.String())
	}

	c, rec = newRequest(e, http.MethodGet, "", &auth.Profile{Role: auth.RolePerson, PersonID: bruno})
	if err := h.LinkedProviders(c); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected [], got %s", rec.Body.String())
	}
}
