package account

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Create stores a new account; the email is stored lowercased.
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	SetAdminPassword(ctx context.Context, id uuid.UUID, hash string) error
	// Deactivate replaces the identifying columns and clears is_active.
	Deactivate(ctx context.Context, id uuid.UUID, email, username string) error
}
