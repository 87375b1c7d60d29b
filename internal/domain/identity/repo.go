package identity

import (
	"context"

	"github.com/google/uuid"
)

type PersonRepository interface {
	Create(ctx context.Context, p *Person) error
	// GetByID and GetByAccount fill AccountInfo from the owning account.
	GetByID(ctx context.Context, id int64) (*Person, error)
	GetByAccount(ctx context.Context, accountID uuid.UUID) (*Person, error)
	// ListByIDs returns the persons ordered by social name.
	ListByIDs(ctx context.Context, ids []int64) ([]*Person, error)
	Update(ctx context.Context, p *Person) error
	SocialNameExists(ctx context.Context, name string, excludeID int64) (bool, error)
}

type ProviderRepository interface {
	Create(ctx context.Context, p *Provider) error
	GetByID(ctx context.Context, id int64) (*Provider, error)
	GetByAccount(ctx context.Context, accountID uuid.UUID) (*Provider, error)
	// ListByIDs returns the providers ordered by social name.
	ListByIDs(ctx context.Context, ids []int64) ([]*Provider, error)
	Update(ctx context.Context, p *Provider) error
	SocialNameExists(ctx context.Context, name string, excludeID int64) (bool, error)
	RegistrationExists(ctx context.Context, registration string, excludeID int64) (bool, error)
}

type LocationRepository interface {
	Create(ctx context.Context, l *Location) error
	GetByID(ctx context.Context, id int64) (*Location, error)
	Update(ctx context.Context, l *Location) error
}

// AccountRoleRepository owns account_role and reads the account row.
type AccountRoleRepository interface {
	// Assign records role for the account. A second assignment of either
	// role fails with ErrConflict.
	Assign(ctx context.Context, accountID uuid.UUID, role string) error
	// Lookup returns the profile of an active account; an account with no
	// role yields an empty profile.
	Lookup(ctx context.Context, accountID uuid.UUID) (*Profile, error)
	Email(ctx context.Context, accountID uuid.UUID) (string, error)
}
