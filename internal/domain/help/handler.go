package help

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/saude/saude/internal/platform/apperr"
	"github.com/saude/saude/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	person := api.Group("/person", auth.RequireRole(auth.RolePerson))
	person.POST("/help", h.Send)
	person.GET("/help", h.Sent)

	provider := api.Group("/provider", auth.RequireRole(auth.RoleProvider))
	provider.GET("/help", h.Received)
	provider.GET("/help/count", h.Count)
	provider.POST("/help/:id/resolve", h.Resolve)
}

func (h *Handler) Send(c echo.Context) error {
	personID, err := auth.PersonID(c)
	if err != nil {
		return err
	}
	var items []SendItem
	if err := c.Bind(&items); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	out, err := h.svc.Send(c.Request().Context(), personID, items)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *Handler) Sent(c echo.Context) error {
	personID, err := auth.PersonID(c)
	if err != nil {
		return err
	}
	out, err := h.svc.Sent(c.Request().Context(), personID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) Received(c echo.Context) error {
	providerID, err := auth.ProviderID(c)
	if err != nil {
		return err
	}
	out, err := h.svc.Received(c.Request().Context(), providerID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) Count(c echo.Context) error {
	providerID, err := auth.ProviderID(c)
	if err != nil {
		return err
	}
	n, err := h.svc.ActiveCount(c.Request().Context(), providerID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, Count{HelpCount: n})
}

func (h *Handler) Resolve(c echo.Context) error {
	providerID, err := auth.ProviderID(c)
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid help id")
	}
	req, err := h.svc.Resolve(c.Request().Context(), providerID, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, req)
}
