package linking

import (
	"context"
	"time"
)

// CodeRepository stores link codes as observations. conceptID is the
// PROVIDER_LINK_CODE concept.
type CodeRepository interface {
	// Upsert overwrites the provider's code in place, creating it on first
	// use, and clears any consuming person.
	Upsert(ctx context.Context, conceptID, typeConceptID, providerID int64, code string, at time.Time) (*CodeRecord, error)
	// Reserve serializes generations drawing the same code until the
	// surrounding transaction ends, so a collision check followed by Upsert
	// cannot interleave with another provider's.
	Reserve(ctx context.Context, conceptID int64, code string) error
	// FindLatest returns the newest record carrying code, used or not.
	FindLatest(ctx context.Context, conceptID int64, code string) (*CodeRecord, error)
	// Claim marks an unused code generated at or after notBefore as consumed
	// by personID and returns the issuing provider. It is a single
	// conditional update; a code already consumed or too old yields
	// ErrNotFound.
	Claim(ctx context.Context, conceptID int64, code string, personID int64, notBefore time.Time) (int64, error)
}
