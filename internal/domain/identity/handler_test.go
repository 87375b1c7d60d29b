package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/saude/saude/internal/platform/auth"
)

func newRequest(e *echo.Echo, method, body string, accountID uuid.UUID) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, "/", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, "/", nil)
	}
	if accountID != uuid.Nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), accountID.String(), nil))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_OnboardPerson(t *testing.T) {
	svc, r := newTestService()
	h, e := NewHandler(svc), echo.New()
	body := `{"social_name":"Ana","weight":"61.2","height":"165","drug_exposures":[{"sig":"noite"}],
		"observations":[{"observation_concept_id":4000001,"value_as_string":"sim"}]}`
	c, rec := newRequest(e, http.MethodPost, body, ana)
	if err := h.OnboardPerson(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var resp struct {
		Message  string `json:"message"`
		PersonID int64  `json:"person_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Message != "Onboarding completed successfully" || resp.PersonID == 0 {
		t.Errorf("unexpected response %+v", resp)
	}
	if len(r.clinical.metrics) != 1 || r.clinical.metrics[0].Height.Decimal.String() != "165" {
		t.Errorf("expected flat weight/height to reach body metrics, got %+v", r.clinical.metrics)
	}
}

func TestHandler_OnboardPerson_Conflict(t *testing.T) {
	svc, _ := newTestService()
	h, e := NewHandler(svc), echo.New()
	if _, err := svc.OnboardPerson(context.Background(), ana, &PersonOnboarding{SocialName: "Ana"}); err != nil {
		t.Fatal(err)
	}
	c, _ := newRequest(e, http.MethodPost, `{"social_name":"Outra"}`, ana)
	err := h.OnboardPerson(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
	if he.Message != MsgHasPersonProfile {
		t.Errorf("unexpected message %v", he.Message)
	}
}

func TestHandler_OnboardPerson_Unauthenticated(t *testing.T) {
	svc, _ := newTestService()
	h, e := NewHandler(svc), echo.New()
	c, _ := newRequest(e, http.MethodPost, `{"social_name":"Ana"}`, uuid.Nil)
	err := h.OnboardPerson(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestHandler_OnboardProvider(t *testing.T) {
	svc, _ := newTestService()
	h, e := NewHandler(svc), echo.New()
	c, rec := newRequest(e, http.MethodPost, `{"social_name":"Dr. Beto","professional_registration":"CRM 9"}`, drBeto)
	if err := h.OnboardProvider(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["message"] != "Provider created successfully" || resp["provider_id"] == nil || resp["data"] == nil {
		t.Errorf("unexpected response %v", resp)
	}
}

func TestHandler_GetMyPerson_NotFound(t *testing.T) {
	svc, _ := newTestService()
	h, e := NewHandler(svc), echo.New()
	c, _ := newRequest(e, http.MethodGet, "", ana)
	err := h.GetMyPerson(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound || he.Message != auth.MsgNoPersonProfile {
		t.Fatalf("expected 404 %q, got %v", auth.MsgNoPersonProfile, err)
	}
}

func TestHandler_UpdateMyPerson(t *testing.T) {
	svc, _ := newTestService()
	h, e := NewHandler(svc), echo.New()
	onboardAna(t, svc)
	c, rec := newRequest(e, http.MethodPatch, `{"social_name":"Ana Clara"}`, ana)
	if err := h.UpdateMyPerson(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Person
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.SocialName == nil || *got.SocialName != "Ana Clara" {
		t.Errorf("expected renamed person, got %v", got.SocialName)
	}
}

func TestHandler_GetProvider_Public(t *testing.T) {
	svc, _ := newTestService()
	h, e := NewHandler(svc), echo.New()
	p, err := svc.OnboardProvider(context.Background(), drBeto, &ProviderOnboarding{SocialName: "Dr. Beto"})
	if err != nil {
		t.Fatal(err)
	}
	c, rec := newRequest(e, http.MethodGet, "", ana)
	c.SetParamNames("id")
	c.SetParamValues("1")
	if err := h.GetProvider(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got["provider_id"] != float64(p.ID) || got["name"] != "Dr. Beto" {
		t.Errorf("unexpected public card %v", got)
	}
	if _, leaked := got["user_id"]; leaked {
		t.Error("public card must not expose the account id")
	}
}

func TestHandler_GetProvider_BadID(t *testing.T) {
	svc, _ := newTestService()
	h, e := NewHandler(svc), echo.New()
	c, _ := newRequest(e, http.MethodGet, "", ana)
	c.SetParamNames("id")
	c.SetParamValues("abc")
	err := h.GetProvider(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}
