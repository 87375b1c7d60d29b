package interest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
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
	anaProfile   = &auth.Profile{Role: auth.RolePerson, PersonID: ana}
	betoProfile  = &auth.Profile{Role: auth.RoleProvider, ProviderID: drBeto}
	carlaProfile = &auth.Profile{Role: auth.RoleProvider, ProviderID: drCarla}
)

func withID(c echo.Context, name string, id int64) {
	c.SetParamNames(name)
	c.SetParamValues(strconv.FormatInt(id, 10))
}

func TestHandler_CreateAndList(t *testing.T) {
	env := newTestEnv()
	h, e := NewHandler(env.svc), echo.New()

	c, rec := newRequest(e, http.MethodPost, `{"name":"Sono","triggers":[{"name":"Dormiu bem?","type":"boolean"}],"shared_with_provider":true}`, anaProfile)
	if err := h.Create(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	c, rec = newRequest(e, http.MethodGet, "", anaProfile)
	if err := h.List(c); err != nil {
		t.Fatal(err)
	}
	var areas []Area
	if err := json.Unmarshal(rec.Body.Bytes(), &areas); err != nil {
		t.Fatal(err)
	}
	if len(areas) != 1 || areas[0].Name != "Sono" || len(areas[0].Triggers) != 1 {
		t.Errorf("unexpected list %s", rec.Body.String())
	}
}

func TestHandler_Create_MissingName(t *testing.T) {
	env := newTestEnv()
	h, e := NewHandler(env.svc), echo.New()
	c, _ := newRequest(e, http.MethodPost, `{"triggers":[]}`, anaProfile)
	if he, ok := h.Create(c).(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", he)
	}
}

func TestHandler_Mark(t *testing.T) {
	env := newTestEnv()
	a := env.create(t, ana, "Sono", true)
	h, e := NewHandler(env.svc), echo.New()

	c, rec := newRequest(e, http.MethodPatch, `{"is_attention_point":true}`, betoProfile)
	withID(c, "id", a.ID)
	if err := h.Mark(c); err != nil {
		t.Fatal(err)
	}
	var res MarkResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.MarkingAction != "added" || !res.IsMarked || res.TotalMarkers != 1 || res.ProviderName != "Dr. Beto" {
		t.Errorf("unexpected response %s", rec.Body.String())
	}

	c, rec = newRequest(e, http.MethodPatch, `{"is_attention_point":false}`, carlaProfile)
	withID(c, "id", a.ID)
	if err := h.Mark(c); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rec.Body.String(), `"marking_action":"not_marked"`) {
		t.Errorf("unexpected response %s", rec.Body.String())
	}
}

func TestHandler_Mark_FormStrings(t *testing.T) {
	env := newTestEnv()
	a := env.create(t, ana, "Sono", true)
	h, e := NewHandler(env.svc), echo.New()

	steps := []struct{ body, action string }{
		{`{"is_attention_point":"true"}`, "added"},
		{`{"is_attention_point":"False"}`, "removed"},
		{`{"is_attention_point":1}`, "added"},
		{`{"is_attention_point":0}`, "removed"},
	}
	for _, st := range steps {
		c, rec := newRequest(e, http.MethodPatch, st.body, betoProfile)
		withID(c, "id", a.ID)
		if err := h.Mark(c); err != nil {
			t.Fatalf("%s: %v", st.body, err)
		}
		if !strings.Contains(rec.Body.String(), `"marking_action":"`+st.action+`"`) {
			t.Errorf("%s: unexpected response %s", st.body, rec.Body.String())
		}
	}
}

func TestHandler_Mark_RejectsMalformedBody(t *testing.T) {
	env := newTestEnv()
	a := env.create(t, ana, "Sono", true)
	h, e := NewHandler(env.svc), echo.New()

	bodies := []string{
		"",
		`not json`,
		`{"is_attention_point":false`,
		`{}`,
		`{"is_attention_point":null}`,
		`{"is_attention_point":"maybe"}`,
		`{"is_attention_point":2}`,
		`{"is_attention_point":[]}`,
	}
	for _, body := range bodies {
		c, _ := newRequest(e, http.MethodPatch, body, betoProfile)
		withID(c, "id", a.ID)
		he, ok := h.Mark(c).(*echo.HTTPError)
		if !ok || he.Code != http.StatusBadRequest || he.Message != MsgMarkFlag {
			t.Errorf("%q: expected 400 %q, got %v", body, MsgMarkFlag, he)
		}
	}

	got, err := env.svc.Get(context.Background(), ana, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.IsAttentionPoint || len(got.MarkedBy) != 0 {
		t.Errorf("rejected requests must not mark, got %+v", got.MarkedBy)
	}
}

func TestHandler_Mark_NotLinked(t *testing.T) {
	env := newTestEnv()
	a := env.create(t, bruno, "Dor", true)
	h, e := NewHandler(env.svc), echo.New()

	c, _ := newRequest(e, http.MethodPatch, `{"is_attention_point":true}`, betoProfile)
	withID(c, "id", a.ID)
	he, ok := h.Mark(c).(*echo.HTTPError)
	if !ok || he.Code != http.StatusForbidden || he.Message != MsgMarkForbidden {
		t.Errorf("expected 403 %q, got %v", MsgMarkForbidden, he)
	}
}

func TestHandler_Shared_NotLinked(t *testing.T) {
	env := newTestEnv()
	h, e := NewHandler(env.svc), echo.New()
	c, _ := newRequest(e, http.MethodGet, "", betoProfile)
	withID(c, "person_id", bruno)
	if he, ok := h.Shared(c).(*echo.HTTPError); !ok || he.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %v", he)
	}
}

func TestHandler_Delete(t *testing.T) {
	env := newTestEnv()
	a := env.create(t, ana, "Sono", false)
	h, e := NewHandler(env.svc), echo.New()

	c, rec := newRequest(e, http.MethodDelete, "", anaProfile)
	withID(c, "id", a.ID)
	if err := h.Delete(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}

	c, _ = newRequest(e, http.MethodDelete, "", anaProfile)
	withID(c, "id", a.ID)
	if he, ok := h.Delete(c).(*echo.HTTPError); !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %v", he)
	}
}

func TestHandler_BadID(t *testing.T) {
	env := newTestEnv()
	h, e := NewHandler(env.svc), echo.New()
	c, _ := newRequest(e, http.MethodGet, "", anaProfile)
	c.SetParamNames("id")
	c.SetParamValues("x")
	if he, ok := h.Get(c).(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", he)
	}
}
