package clinical

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/saude/saude/internal/platform/apperr"
	"github.com/saude/saude/internal/platform/auth"
)

// PersonNamer renders the display name of a person.
type PersonNamer interface {
	PersonName(ctx context.Context, personID int64) (string, error)
}

type Handler struct {
	svc   *Service
	names PersonNamer
}

func NewHandler(svc *Service, names PersonNamer) *Handler {
	return &Handler{svc: svc, names: names}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	person := api.Group("/person", auth.RequireRole(auth.RolePerson))
	person.GET("/measurements", h.ListMeasurements)
	person.GET("/drug-exposures", h.ListDrugExposures)
	person.POST("/drug-exposures", h.CreateDrugExposure)
	person.GET("/visits", h.ListVisits)

	provider := api.Group("/provider", auth.RequireRole(auth.RoleProvider))
	provider.POST("/visits", h.CreateVisit)
	provider.GET("/visits/next", h.NextVisit)
}

func (h *Handler) ListMeasurements(c echo.Context) error {
	personID, err := auth.PersonID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListMeasurements(c.Request().Context(), personID, c.QueryParam("concept"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, nonNil(items))
}

func (h *Handler) ListDrugExposures(c echo.Context) error {
	personID, err := auth.PersonID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListDrugExposures(c.Request().Context(), personID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, nonNil(items))
}

func (h *Handler) CreateDrugExposure(c echo.Context) error {
	personID, err := auth.PersonID(c)
	if err != nil {
		return err
	}
	var d DrugExposure
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	d.ID = 0
	d.PersonID = personID
	d.RecurrenceRuleID = nil
	if err := h.svc.CreateDrugExposure(c.Request().Context(), &d); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) ListVisits(c echo.Context) error {
	personID, err := auth.PersonID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListVisits(c.Request().Context(), personID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, nonNil(items))
}

type createVisitRequest struct {
	PersonID       int64      `json:"person_id"`
	VisitConceptID *int64     `json:"visit_concept_id"`
	StartDate      *time.Time `json:"visit_start_date"`
	EndDate        *time.Time `json:"visit_end_date"`
	CareSiteID     *int64     `json:"care_site_id"`
}

func (h *Handler) CreateVisit(c echo.Context) error {
	providerID, err := auth.ProviderID(c)
	if err != nil {
		return err
	}
	var req createVisitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	v := &Visit{
		PersonID:       req.PersonID,
		VisitConceptID: req.VisitConceptID,
		EndDate:        req.EndDate,
		CareSiteID:     req.CareSiteID,
	}
	if req.StartDate != nil {
		v.StartDate = req.StartDate.UTC()
	}
	if err := h.svc.RecordVisit(c.Request().Context(), providerID, v); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, v)
}

type visitDetails struct {
	PersonName string    `json:"person_name"`
	VisitDate  time.Time `json:"visit_date"`
}

func (h *Handler) NextVisit(c echo.Context) error {
	providerID, err := auth.ProviderID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	v, err := h.svc.NextVisit(ctx, providerID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	resp := map[string]*visitDetails{"next_visit": nil}
	if v != nil {
		name, err := h.names.PersonName(ctx, v.PersonID)
		if err != nil {
			return apperr.ToHTTP(err)
		}
		resp["next_visit"] = &visitDetails{PersonName: name, VisitDate: v.StartDate}
	}
	return c.JSON(http.StatusOK, resp)
}

// nonNil makes empty listings encode as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
