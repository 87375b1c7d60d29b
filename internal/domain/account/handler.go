package account

import (
	"errors"
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

// RegisterRoutes mounts the login endpoints, which the auth skipper leaves
// public, and the account endpoints.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	a := api.Group("/auth")
	if h.svc.opts.Development {
		a.POST("/dev", h.DevLogin)
	}
	a.POST("/google", h.GoogleLogin)
	a.POST("/admin", h.AdminLogin)
	a.POST("/refresh", h.Refresh)
	a.POST("/logout", h.Logout)

	api.GET("/account/role", h.GetRole)
	api.GET("/account", h.GetAccount)
	api.DELETE("/account", h.DeleteAccount)
	api.POST("/account/dark-mode", h.ToggleDarkMode)
	api.PUT("/account/profile-picture", h.UploadProfilePicture)

}

func loginError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials.")
	case errors.Is(err, ErrInactive):
		return echo.NewHTTPError(http.StatusForbidden, "Account is deactivated.")
	}
	return apperr.ToHTTP(err)
}

func (h *Handler) DevLogin(c echo.Context) error {
	var req DevLoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	resp, err := h.svc.DevLogin(c.Request().Context(), &req)
	if err != nil {
		return loginError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

type googleLoginRequest struct {
	IDToken string `json:"id_token"`
}

func (h *Handler) GoogleLogin(c echo.Context) error {
	var req googleLoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	resp, err := h.svc.GoogleLogin(c.Request().Context(), req.IDToken)
	if err != nil {
		return loginError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) AdminLogin(c echo.Context) error {
	var req AdminLoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	resp, err := h.svc.AdminLogin(c.Request().Context(), &req)
	if err != nil {
		return loginError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

func (h *Handler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil || req.Refresh == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "refresh token is required")
	}
	pair, err := h.svc.Refresh(c.Request().Context(), req.Refresh)
	if err != nil {
		return loginError(err)
	}
	return c.JSON(http.StatusOK, pair)
}

func (h *Handler) Logout(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil || req.Refresh == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "refresh token is required")
	}
	if err := h.svc.Logout(c.Request().Context(), req.Refresh); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (h *Handler) GetRole(c echo.Context) error {
	id, err := auth.AccountID(c)
	if err != nil {
		return err
	}
	role, err := h.svc.Role(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"role": role})
}

func (h *Handler) GetAccount(c echo.Context) error {
	id, err := auth.AccountID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteAccount(c echo.Context) error {
	id, err := auth.AccountID(c)
	if err != nil {
		return err
	}
	removed, err := h.svc.Delete(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":               "Account deleted successfully",
		"relationships_removed": removed,
	})
}

func (h *Handler) ToggleDarkMode(c echo.Context) error {
	id, err := auth.AccountID(c)
	if err != nil {
		return err
	}
	enabled, err := h.svc.ToggleDarkMode(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"use_dark_mode": enabled})
}

func (h *Handler) UploadProfilePicture(c echo.Context) error {
	id, err := auth.AccountID(c)
	if err != nil {
		return err
	}
	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to open uploaded file")
	}
	defer src.Close()

	url, err := h.svc.SetProfilePicture(c.Request().Context(), id, file.Header.Get("Content-Type"), src)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"profile_picture": url})
}
