package clinical

import (
	"context"
	"time"
)

type RecurrenceRuleRepository interface {
	Create(ctx context.Context, r *RecurrenceRule) error
	GetByID(ctx context.Context, id int64) (*RecurrenceRule, error)
}

type DrugExposureRepository interface {
	Create(ctx context.Context, d *DrugExposure) error
	ListByPerson(ctx context.Context, personID int64) ([]*DrugExposure, error)
}

type MeasurementRepository interface {
	Create(ctx context.Context, m *Measurement) error
	ListByPerson(ctx context.Context, personID int64, conceptID int64) ([]*Measurement, error)
}

type VisitRepository interface {
	Create(ctx context.Context, v *Visit) error
	// Latest returns the start date of the newest visit of personID with
	// providerID at or before now, or nil.
	Latest(ctx context.Context, personID, providerID int64, now time.Time) (*time.Time, error)
	// Next returns the earliest visit of providerID starting after now.
	Next(ctx context.Context, providerID int64, now time.Time) (*Visit, error)
	ListByPerson(ctx context.Context, personID int64) ([]*Visit, error)
}
