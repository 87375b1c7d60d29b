package vocabulary

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/saude/saude/internal/platform/apperr"
	"github.com/saude/saude/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the read-only vocabulary API. Any authenticated
// caller may read it.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/concepts", h.ListConcepts)
	api.GET("/concepts/:id", h.GetConcept)
	api.GET("/domains", h.ListDomains)
	api.GET("/vocabularies", h.ListVocabularies)
	api.GET("/interest-areas/templates", h.ListInterestTemplates)
}

func (h *Handler) ListConcepts(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := ConceptFilter{
		ClassIDs:     splitParam(c.QueryParam("class")),
		Codes:        splitParam(c.QueryParam("code")),
		LanguageCode: c.QueryParam("lang"),
	}
	items, total, err := h.svc.ListConcepts(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewPage(items, total, pg))
}

func (h *Handler) GetConcept(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	concept, err := h.svc.GetConcept(c.Request().Context(), id, c.QueryParam("lang"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, concept)
}

func (h *Handler) ListDomains(c echo.Context) error {
	items, err := h.svc.ListDomains(c.Request().Context())
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListVocabularies(c echo.Context) error {
	items, err := h.svc.ListVocabularies(c.Request().Context())
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListInterestTemplates(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.InterestTemplates())
}

// splitParam accepts both ?class=a,b and an empty value.
func splitParam(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
