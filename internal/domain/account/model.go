// Package account owns login accounts: token issuing for the supported login
// methods and the account-level endpoints (role, deletion, preferences).
package account

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidCredentials covers every failed login or refresh; callers get no
// hint about which part was wrong.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrInactive is returned when a deactivated account tries to log in.
var ErrInactive = errors.New("account is deactivated")

type Account struct {
	ID           uuid.UUID  `json:"user_id"`
	Email        string     `json:"email"`
	Username     string     `json:"username"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	PasswordHash *string    `json:"-"`
	IsAdmin      bool       `json:"is_admin"`
	IsActive     bool       `json:"is_active"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// LoginResponse is returned by every login endpoint.
type LoginResponse struct {
	Access         string    `json:"access"`
	Refresh        string    `json:"refresh"`
	ExpiresAt      time.Time `json:"access_expires_at"`
	ProviderID     *int64    `json:"provider_id"`
	PersonID       *int64    `json:"person_id"`
	Role           string    `json:"role"`
	UserID         uuid.UUID `json:"user_id"`
	FullName       string    `json:"full_name"`
	Email          string    `json:"email"`
	SocialName     *string   `json:"social_name"`
	ProfilePicture *string   `json:"profile_picture"`
	UseDarkMode    bool      `json:"use_dark_mode"`
}

// Details is the body of GET /account.
type Details struct {
	*Account
	Role       string `json:"role"`
	PersonID   *int64 `json:"person_id"`
	ProviderID *int64 `json:"provider_id"`
}

// RoleNone is reported for accounts that have not onboarded yet.
const RoleNone = "none"
