package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequireRole returns middleware that checks if the user has at least one of the specified roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if HasRole(c.Request().Context(), roles...) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// HasRole reports whether the caller holds any of roles. Admin holds all.
func HasRole(ctx context.Context, roles ...string) bool {
	for _, has := range RolesFromContext(ctx) {
		if has == RoleAdmin {
			return true
		}
		for _, required := range roles {
			if has == required {
				return true
			}
		}
	}
	return false
}

// Profile is the person or provider profile behind an account. Accounts
// that have not finished onboarding have an empty Role.
type Profile struct {
	Role       string
	PersonID   int64
	ProviderID int64
}

// ProfileLookup returns the stored profile of an account. It returns an empty
// profile, not an error, for accounts without one.
type ProfileLookup func(ctx context.Context, accountID string) (*Profile, error)

// LoadProfile attaches the account's profile to the request and adds its role
// to the roles carried by the token. Role selection happens after login, so
// the token alone can be stale.
func LoadProfile(lookup ProfileLookup) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			userID := UserIDFromContext(ctx)
			if userID == "" {
				return next(c)
			}
			p, err := lookup(ctx, userID)
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "failed to load account profile")
			}
			if p == nil {
				p = &Profile{}
			}
			ctx = WithProfile(ctx, p)
			if p.Role != "" && !containsRole(RolesFromContext(ctx), p.Role) {
				roles := append(append([]string{}, RolesFromContext(ctx)...), p.Role)
				ctx = WithIdentity(ctx, userID, roles)
			}
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func containsRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func WithProfile(ctx context.Context, p *Profile) context.Context {
	return context.WithValue(ctx, ProfileKey, p)
}

func ProfileFromContext(ctx context.Context) *Profile {
	p, _ := ctx.Value(ProfileKey).(*Profile)
	if p == nil {
		return &Profile{}
	}
	return p
}

// Messages returned when the caller lacks the profile a route needs.
const (
	MsgNoPersonProfile   = "Person profile not found."
	MsgNoProviderProfile = "Provider profile not found."
)

// PersonID returns the caller's person id or a 404 HTTP error.
func PersonID(c echo.Context) (int64, error) {
	if id := ProfileFromContext(c.Request().Context()).PersonID; id > 0 {
		return id, nil
	}
	return 0, echo.NewHTTPError(http.StatusNotFound, MsgNoPersonProfile)
}

// ProviderID returns the caller's provider id or a 404 HTTP error.
func ProviderID(c echo.Context) (int64, error) {
	if id := ProfileFromContext(c.Request().Context()).ProviderID; id > 0 {
		return id, nil
	}
	return 0, echo.NewHTTPError(http.StatusNotFound, MsgNoProviderProfile)
}

// AccountID returns the caller's account id or a 401 HTTP error.
func AccountID(c echo.Context) (uuid.UUID, error) {
	id, err := AccountIDFromContext(c.Request().Context())
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return id, nil
}
