package diary

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/saude/saude/internal/platform/apperr"
	"github.com/saude/saude/internal/platform/auth"
	"github.com/saude/saude/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	person := api.Group("/person", auth.RequireRole(auth.RolePerson))
	person.GET("/diaries", h.List)
	person.POST("/diaries", h.Create)
	person.GET("/diaries/:id", h.Get)
	person.DELETE("/diaries/:id", h.Delete)

	provider := api.Group("/provider", auth.RequireRole(auth.RoleProvider))
	provider.GET("/persons/:person_id/diaries", h.SharedWith)
	provider.GET("/persons/:person_id/diaries/:id", h.GetShared)
}

func idParam(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func (h *Handler) List(c echo.Context) error {
	personID, err := auth.PersonID(c)
	if err != nil {
		return err
	}
	limit, err := pagination.LimitOnly(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	out, err := h.svc.List(c.Request().Context(), personID, limit)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) Create(c echo.Context) error {
	personID, err := auth.PersonID(c)
	if err != nil {
		return err
	}
	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	e, err := h.svc.Create(c.Request().Context(), personID, &in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) Get(c echo.Context) error {
	personID, err := auth.PersonID(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	e, err := h.svc.Get(c.Request().Context(), personID, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) Delete(c echo.Context) error {
	personID, err := auth.PersonID(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), personID, id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SharedWith(c echo.Context) error {
	providerID, err := auth.ProviderID(c)
	if err != nil {
		return err
	}
	personID, err := idParam(c, "person_id")
	if err != nil {
		return err
	}
	limit, err := pagination.LimitOnly(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	out, err := h.svc.SharedWith(c.Request().Context(), providerID, personID, limit)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) GetShared(c echo.Context) error {
	providerID, err := auth.ProviderID(c)
	if err != nil {
		return err
	}
	personID, err := idParam(c, "person_id")
	if err != nil {
		return err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	e, err := h.svc.GetShared(c.Request().Context(), providerID, personID, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, e)
}
