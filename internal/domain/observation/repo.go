package observation

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, o *Observation) error
	GetByID(ctx context.Context, id int64) (*Observation, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*Observation, error)
	List(ctx context.Context, f Filter) ([]*Observation, error)
	Count(ctx context.Context, f Filter) (int, error)
	// UpdateValue writes the value columns and shared flag of o and bumps
	// its version.
	UpdateValue(ctx context.Context, o *Observation) error
	Delete(ctx context.Context, id int64) error
	// LatestDate returns the newest observation_date matching f, or nil.
	LatestDate(ctx context.Context, f Filter) (*time.Time, error)
}
