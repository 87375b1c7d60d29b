package clinical

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"github.com/saude/saude/internal/domain/vocabulary"
	"github.com/saude/saude/internal/platform/apperr"
	"github.com/saude/saude/internal/platform/db"
)

var weekdayPattern = regexp.MustCompile(`^[01]{7}$`)

// Plausibility bounds for onboarding body metrics.
var (
	maxWeightKg = decimal.NewFromInt(700)
	maxHeightCm = decimal.NewFromInt(300)
)

// LinkChecker reports whether a person and a provider are linked.
type LinkChecker interface {
	IsLinked(ctx context.Context, personID, providerID int64) (bool, error)
}

type Service struct {
	rules        RecurrenceRuleRepository
	drugs        DrugExposureRepository
	measurements MeasurementRepository
	visits       VisitRepository
	tx           db.TxRunner
	concepts     vocabulary.Resolver
	links        LinkChecker
	now          func() time.Time
}

func NewService(rules RecurrenceRuleRepository, drugs DrugExposureRepository, measurements MeasurementRepository,
	visits VisitRepository, tx db.TxRunner, concepts vocabulary.Resolver, links LinkChecker) *Service {
	return &Service{
		rules:        rules,
		drugs:        drugs,
		measurements: measurements,
		visits:       visits,
		tx:           tx,
		concepts:     concepts,
		links:        links,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// -- Measurement --

func (s *Service) RecordMeasurement(ctx context.Context, m *Measurement) error {
	if m.PersonID <= 0 {
		return fmt.Errorf("%w: person_id is required", apperr.ErrValidation)
	}
	if m.ConceptID == 0 {
		return fmt.Errorf("%w: measurement_concept_id is required", apperr.ErrValidation)
	}
	if !m.ValueAsNumber.Valid {
		return fmt.Errorf("%w: value_as_number is required", apperr.ErrValidation)
	}
	if m.Date.IsZero() {
		m.Date = s.now()
	}
	return s.measurements.Create(ctx, m)
}

// RecordBodyMetrics stores the weight and height that are present as
// self-reported measurements.
func (s *Service) RecordBodyMetrics(ctx context.Context, personID int64, bm BodyMetrics) ([]*Measurement, error) {
	type metric struct {
		code  string
		name  string
		value decimal.NullDecimal
		max   decimal.Decimal
	}
	metrics := []metric{
		{vocabulary.CodeBodyWeight, "weight", bm.Weight, maxWeightKg},
		{vocabulary.CodeBodyHeight, "height", bm.Height, maxHeightCm},
	}
	typeID, err := s.concepts.Resolve(vocabulary.CodeSelfReported)
	if err != nil {
		return nil, err
	}
	var out []*Measurement
	for _, mt := range metrics {
		if !mt.value.Valid {
			continue
		}
		if !mt.value.Decimal.IsPositive() || mt.value.Decimal.GreaterThan(mt.max) {
			return nil, fmt.Errorf("%w: %s must be between 0 and %s", apperr.ErrValidation, mt.name, mt.max)
		}
		conceptID, err := s.concepts.Resolve(mt.code)
		if err != nil {
			return nil, err
		}
		m := &Measurement{
			PersonID:      personID,
			ConceptID:     conceptID,
			ValueAsNumber: decimal.NewNullDecimal(mt.value.Decimal.Round(3)),
			TypeConceptID: &typeID,
		}
		if err := s.RecordMeasurement(ctx, m); err != nil {
			return nil, fmt.Errorf("record %s: %w", mt.name, err)
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Service) ListMeasurements(ctx context.Context, personID int64, conceptCode string) ([]*Measurement, error) {
	var conceptID int64
	if conceptCode != "" {
		id, err := s.concepts.Resolve(conceptCode)
		if err != nil {
			return nil, fmt.Errorf("%w: unknown concept %q", apperr.ErrValidation, conceptCode)
		}
		conceptID = id
	}
	return s.measurements.ListByPerson(ctx, personID, conceptID)
}

// -- DrugExposure --

func validateRule(r *RecurrenceRule) error {
	if r.Interval == 0 {
		r.Interval = 1
	}
	if r.Interval < 1 {
		return fmt.Errorf("%w: interval must be at least 1", apperr.ErrValidation)
	}
	if r.WeekdayBinary != nil && !weekdayPattern.MatchString(*r.WeekdayBinary) {
		return fmt.Errorf("%w: weekday_binary must be seven 0/1 digits", apperr.ErrValidation)
	}
	if r.ValidStartDate != nil && r.ValidEndDate != nil && r.ValidEndDate.Before(*r.ValidStartDate) {
		return fmt.Errorf("%w: valid_end_date is before valid_start_date", apperr.ErrValidation)
	}
	return nil
}

// CreateDrugExposure stores d and, when present, its recurrence rule in one
// unit of work.
func (s *Service) CreateDrugExposure(ctx context.Context, d *DrugExposure) error {
	if d.PersonID <= 0 {
		return fmt.Errorf("%w: person_id is required", apperr.ErrValidation)
	}
	if d.Quantity.Valid && d.Quantity.Decimal.IsNegative() {
		return fmt.Errorf("%w: quantity cannot be negative", apperr.ErrValidation)
	}
	if d.StartDate != nil && d.EndDate != nil && d.EndDate.Before(*d.StartDate) {
		return fmt.Errorf("%w: drug_exposure_end_date is before drug_exposure_start_date", apperr.ErrValidation)
	}
	if d.RecurrenceRule != nil {
		if err := validateRule(d.RecurrenceRule); err != nil {
			return err
		}
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if d.RecurrenceRule != nil {
			if err := s.rules.Create(ctx, d.RecurrenceRule); err != nil {
				return fmt.Errorf("create recurrence rule: %w", err)
			}
			d.RecurrenceRuleID = &d.RecurrenceRule.ID
		}
		return s.drugs.Create(ctx, d)
	})
}

func (s *Service) ListDrugExposures(ctx context.Context, personID int64) ([]*DrugExposure, error) {
	items, err := s.drugs.ListByPerson(ctx, personID)
	if err != nil {
		return nil, err
	}
	for _, d := range items {
		if d.RecurrenceRuleID == nil {
			continue
		}
		rule, err := s.rules.GetByID(ctx, *d.RecurrenceRuleID)
		if err != nil {
			return nil, err
		}
		d.RecurrenceRule = rule
	}
	return items, nil
}

// -- Visit --

// RecordVisit stores a visit of providerID with a linked person.
func (s *Service) RecordVisit(ctx context.Context, providerID int64, v *Visit) error {
	if v.PersonID <= 0 {
		return fmt.Errorf("%w: person_id is required", apperr.ErrValidation)
	}
	if v.StartDate.IsZero() {
		v.StartDate = s.now()
	}
	if v.EndDate != nil && v.EndDate.Before(v.StartDate) {
		return fmt.Errorf("%w: visit_end_date is before visit_start_date", apperr.ErrValidation)
	}
	linked, err := s.links.IsLinked(ctx, v.PersonID, providerID)
	if err != nil {
		return err
	}
	if !linked {
		return fmt.Errorf("%w: person %d is not linked to you", apperr.ErrForbidden, v.PersonID)
	}
	v.ProviderID = &providerID
	return s.visits.Create(ctx, v)
}

// LastVisit returns the start of the most recent past visit, or nil.
func (s *Service) LastVisit(ctx context.Context, personID, providerID int64) (*time.Time, error) {
	return s.visits.Latest(ctx, personID, providerID, s.now())
}

// NextVisit returns the provider's next scheduled visit, or nil.
func (s *Service) NextVisit(ctx context.Context, providerID int64) (*Visit, error) {
	return s.visits.Next(ctx, providerID, s.now())
}

func (s *Service) ListVisits(ctx context.Context, personID int64) ([]*Visit, error) {
	return s.visits.ListByPerson(ctx, personID)
}
