package vocabulary

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/saude/saude/internal/platform/apperr"
)

type mockRepo struct {
	mockFinder
	synonyms map[int64]string
	lastLang string
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		mockFinder: mockFinder{concepts: []*Concept{
			{ID: 8507, Name: "MALE", Code: "M", ConceptClassID: optional("Gender")},
			{ID: 8532, Name: "FEMALE", Code: "F", ConceptClassID: optional("Gender")},
			{ID: 2000007000, Name: "Help", Code: CodeHelp},
		}},
		synonyms: map[int64]string{8507: "Masculino", 8532: "Feminino"},
	}
}

func (m *mockRepo) translate(c *Concept, lang string) *Concept {
	out := *c
	if lang == DefaultLanguageCode {
		if s, ok := m.synonyms[c.ID]; ok {
			out.TranslatedName = &s
		}
	}
	return &out
}

func (m *mockRepo) GetConcept(_ context.Context, id int64, lang string) (*Concept, error) {
	m.lastLang = lang
	for _, c := range m.concepts {
		if c.ID == id {
			return m.translate(c, lang), nil
		}
	}
	return nil, fmt.Errorf("%w: concept %d", apperr.ErrNotFound, id)
}

func (m *mockRepo) ListConcepts(_ context.Context, f ConceptFilter, limit, offset int) ([]*Concept, int, error) {
	m.lastLang = f.LanguageCode
	classes := make(map[string]bool)
	for _, c := range f.ClassIDs {
		classes[c] = true
	}
	var out []*Concept
	for _, c := range m.concepts {
		if len(classes) > 0 && (c.ConceptClassID == nil || !classes[*c.ConceptClassID]) {
			continue
		}
		out = append(out, m.translate(c, f.LanguageCode))
	}
	return out, len(out), nil
}

func (m *mockRepo) ListDomains(_ context.Context) ([]*Domain, error) {
	return []*Domain{{ID: "Gender", Name: "Gender"}}, nil
}

func (m *mockRepo) ListVocabularies(_ context.Context) ([]*Vocabulary, error) {
	return []*Vocabulary{{ID: "SNOMED", Name: "SNOMED"}}, nil
}

func newTestHandler() (*Handler, *mockRepo, *echo.Echo) {
	repo := newMockRepo()
	svc := NewService(repo, []InterestTemplate{{Name: "Sono", Triggers: []string{"Dormiu bem esta noite?"}}})
	return NewHandler(svc), repo, echo.New()
}

func TestHandler_ListConcepts_ByClassWithSynonyms(t *testing.T) {
	h, repo, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/concepts?class=Gender", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListConcepts(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if repo.lastLang != DefaultLanguageCode {
		t.Errorf("expected default language %s, got %q", DefaultLanguageCode, repo.lastLang)
	}

	var body struct {
		Data  []*Concept `json:"data"`
		Total int        `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 2 {
		t.Fatalf("expected 2 gender concepts, got %d", body.Total)
	}
	if body.Data[0].DisplayName() != "Masculino" {
		t.Errorf("expected translated name, got %q", body.Data[0].DisplayName())
	}
}

func TestHandler_GetConcept(t *testing.T) {
	h, _, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("2000007000")

	if err := h.GetConcept(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Concept
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Code != CodeHelp {
		t.Errorf("expected HELP, got %q", got.Code)
	}
}

func TestHandler_GetConcept_Errors(t *testing.T) {
	tests := []struct {
		id     string
		status int
	}{
		{"abc", http.StatusBadRequest},
		{"0", http.StatusBadRequest},
		{"42", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			h, _, e := newTestHandler()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			c := e.NewContext(req, httptest.NewRecorder())
			c.SetParamNames("id")
			c.SetParamValues(tt.id)

			err := h.GetConcept(c)
			he, ok := err.(*echo.HTTPError)
			if !ok {
				t.Fatalf("expected *echo.HTTPError, got %v", err)
			}
			if he.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, he.Code)
			}
		})
	}
}

func TestHandler_ListDomainsAndVocabularies(t *testing.T) {
	h, _, e := newTestHandler()

	rec := httptest.NewRecorder()
	if err := h.ListDomains(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	if err := h.ListVocabularies(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var vocabs []*Vocabulary
	json.Unmarshal(rec.Body.Bytes(), &vocabs)
	if len(vocabs) != 1 || vocabs[0].ID != "SNOMED" {
		t.Errorf("unexpected vocabularies: %+v", vocabs)
	}
}

func TestHandler_ListInterestTemplates(t *testing.T) {
	h, _, e := newTestHandler()
	rec := httptest.NewRecorder()
	if err := h.ListInterestTemplates(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got []InterestTemplate
	json.Unmarshal(rec.Body.Bytes(), &got)
	if len(got) != 1 || got[0].Name != "Sono" {
		t.Errorf("unexpected templates: %+v", got)
	}
}

func TestSplitParam(t *testing.T) {
	if got := splitParam(""); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
	got := splitParam("Gender, Race,,")
	if len(got) != 2 || got[0] != "Gender" || got[1] != "Race" {
		t.Errorf("unexpected split: %v", got)
	}
}
