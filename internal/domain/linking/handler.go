package linking

import (
	"net/http"

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
	provider := api.Group("/provider", auth.RequireRole(auth.RoleProvider))
	provider.POST("/link-code", h.Generate)
	provider.GET("/persons", h.LinkedPersons)

	// Preview sits under /provider but is asked by persons.
	api.POST("/provider/by-link-code", h.Preview, auth.RequireRole(auth.RolePerson))

	person := api.Group("/person", auth.RequireRole(auth.RolePerson))
	person.POST("/link-code", h.Redeem)
	person.GET("/providers", h.LinkedProviders)

	api.POST("/links/unlink", h.Unlink, auth.RequireRole(auth.RolePerson, auth.RoleProvider))
}

type codeRequest struct {
	Code string `json:"code"`
}

func (h *Handler) Generate(c echo.Context) error {
	providerID, err := auth.ProviderID(c)
	if err != nil {
		return err
	}
	code, err := h.svc.Generate(c.Request().Context(), providerID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, code)
}

func (h *Handler) Preview(c echo.Context) error {
	personID, err := auth.PersonID(c)
	if err != nil {
		return err
	}
	var req codeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.svc.Preview(c.Request().Context(), personID, req.Code)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Redeem(c echo.Context) error {
	personID, err := auth.PersonID(c)
	if err != nil {
		return err
	}
	var req codeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.Redeem(c.Request().Context(), personID, req.Code)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) LinkedProviders(c echo.Context) error {
	personID, err := auth.PersonID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.LinkedProviders(c.Request().Context(), personID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) LinkedPersons(c echo.Context) error {
	providerID, err := auth.ProviderID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.LinkedPersons(c.Request().Context(), providerID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Unlink(c echo.Context) error {
	p := auth.ProfileFromContext(c.Request().Context())
	var req UnlinkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.Unlink(c.Request().Context(), Caller{PersonID: p.PersonID, ProviderID: p.ProviderID}, req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, res)
}
