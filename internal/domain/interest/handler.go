package interest

import (
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/saude/saude/internal/platform/apperr"
	"github.com/saude/saude/internal/platform/auth"
)

// maxMarkBody caps the mark request body read into memory.
const maxMarkBody = 4 << 10

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	person := api.Group("/person", auth.RequireRole(auth.RolePerson))
	person.GET("/interest-areas", h.List)
	person.POST("/interest-areas", h.Create)
	person.GET("/interest-areas/:id", h.Get)
	person.PUT("/interest-areas/:id", h.Update)
	person.DELETE("/interest-areas/:id", h.Delete)

	provider := api.Group("/provider", auth.RequireRole(auth.RoleProvider))
	provider.GET("/persons/:person_id/interest-areas", h.Shared)
	provider.PATCH("/interest-areas/:id/mark", h.Mark)
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
	out, err := h.svc.List(c.Request().Context(), personID)
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
	a, err := h.svc.Create(c.Request().Context(), personID, &in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, a)
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
	a, err := h.svc.Get(c.Request().Context(), personID, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Update(c echo.Context) error {
	personID, err := auth.PersonID(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.Update(c.Request().Context(), personID, id, &in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
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

func (h *Handler) Shared(c echo.Context) error {
	providerID, err := auth.ProviderID(c)
	if err != nil {
		return err
	}
	personID, err := idParam(c, "person_id")
	if err != nil {
		return err
	}
	out, err := h.svc.Shared(c.Request().Context(), providerID, personID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, out)
}

// Mark answers 400 unless the body carries a boolean is_attention_point, so a
// garbled unmark never turns into a mark.
func (h *Handler) Mark(c echo.Context) error {
	providerID, err := auth.ProviderID(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxMarkBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req, err := ParseMarkRequest(body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, MsgMarkFlag)
	}
	res, err := h.svc.Mark(c.Request().Context(), providerID, id, req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, res)
}
