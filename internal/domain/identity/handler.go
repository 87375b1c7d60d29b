package identity

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
	api.POST("/onboarding/person", h.OnboardPerson)
	api.POST("/onboarding/provider", h.OnboardProvider)

	persons := api.Group("/persons", auth.RequireRole(auth.RolePerson))
	persons.GET("/me", h.GetMyPerson)
	persons.PATCH("/me", h.UpdateMyPerson)

	providers := api.Group("/providers")
	providers.GET("/me", h.GetMyProvider, auth.RequireRole(auth.RoleProvider))
	providers.PATCH("/me", h.UpdateMyProvider, auth.RequireRole(auth.RoleProvider))
	providers.GET("/:id", h.GetProvider)
}

func (h *Handler) OnboardPerson(c echo.Context) error {
	accountID, err := auth.AccountID(c)
	if err != nil {
		return err
	}
	var req PersonOnboarding
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.svc.OnboardPerson(c.Request().Context(), accountID, &req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message":   "Onboarding completed successfully",
		"person_id": p.ID,
	})
}

func (h *Handler) OnboardProvider(c echo.Context) error {
	accountID, err := auth.AccountID(c)
	if err != nil {
		return err
	}
	var req ProviderOnboarding
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.svc.OnboardProvider(c.Request().Context(), accountID, &req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message":     "Provider created successfully",
		"data":        p,
		"provider_id": p.ID,
	})
}

func (h *Handler) GetMyPerson(c echo.Context) error {
	accountID, err := auth.AccountID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.PersonByAccount(c.Request().Context(), accountID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdateMyPerson(c echo.Context) error {
	accountID, err := auth.AccountID(c)
	if err != nil {
		return err
	}
	var patch PersonPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.svc.UpdatePerson(c.Request().Context(), accountID, &patch)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetMyProvider(c echo.Context) error {
	accountID, err := auth.AccountID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.ProviderByAccount(c.Request().Context(), accountID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdateMyProvider(c echo.Context) error {
	accountID, err := auth.AccountID(c)
	if err != nil {
		return err
	}
	var patch ProviderPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.svc.UpdateProvider(c.Request().Context(), accountID, &patch)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

// GetProvider is the public card of a provider, visible to any caller.
func (h *Handler) GetProvider(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid provider id")
	}
	p, err := h.svc.GetProvider(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p.Public())
}
