package clinical

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saude/saude/internal/platform/apperr"
	"github.com/saude/saude/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func connFor(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// -- RecurrenceRule --

type recurrenceRuleRepoPG struct{ pool *pgxpool.Pool }

func NewRecurrenceRuleRepoPG(pool *pgxpool.Pool) RecurrenceRuleRepository {
	return &recurrenceRuleRepoPG{pool: pool}
}

const recurrenceRuleCols = `recurrence_rule_id, frequency_concept_id, interval, weekday_binary, valid_start_date, valid_end_date`

func (r *recurrenceRuleRepoPG) Create(ctx context.Context, rr *RecurrenceRule) error {
	return connFor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO recurrence_rule (frequency_concept_id, interval, weekday_binary, valid_start_date, valid_end_date)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING recurrence_rule_id`,
		rr.FrequencyConceptID, rr.Interval, rr.WeekdayBinary, rr.ValidStartDate, rr.ValidEndDate).Scan(&rr.ID)
}

func (r *recurrenceRuleRepoPG) GetByID(ctx context.Context, id int64) (*RecurrenceRule, error) {
	var rr RecurrenceRule
	err := connFor(ctx, r.pool).QueryRow(ctx, `SELECT `+recurrenceRuleCols+` FROM recurrence_rule WHERE recurrence_rule_id = $1`, id).
		Scan(&rr.ID, &rr.FrequencyConceptID, &rr.Interval, &rr.WeekdayBinary, &rr.ValidStartDate, &rr.ValidEndDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: recurrence rule %d", apperr.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &rr, nil
}

// -- DrugExposure --

type drugExposureRepoPG struct{ pool *pgxpool.Pool }

func NewDrugExposureRepoPG(pool *pgxpool.Pool) DrugExposureRepository {
	return &drugExposureRepoPG{pool: pool}
}

const drugExposureCols = `drug_exposure_id, person_id, drug_concept_id, drug_exposure_start_date, drug_exposure_end_date,
	stop_reason, quantity, sig, recurrence_rule_id, created_at`

func (r *drugExposureRepoPG) Create(ctx context.Context, d *DrugExposure) error {
	return connFor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO drug_exposure (person_id, drug_concept_id, drug_exposure_start_date, drug_exposure_end_date,
			stop_reason, quantity, sig, recurrence_rule_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING drug_exposure_id, created_at`,
		d.PersonID, d.DrugConceptID, d.StartDate, d.EndDate,
		d.StopReason, d.Quantity, d.Sig, d.RecurrenceRuleID).Scan(&d.ID, &d.CreatedAt)
}

func (r *drugExposureRepoPG) ListByPerson(ctx context.Context, personID int64) ([]*DrugExposure, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx, `SELECT `+drugExposureCols+` FROM drug_exposure
		WHERE person_id = $1 ORDER BY drug_exposure_start_date DESC NULLS LAST, drug_exposure_id DESC`, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*DrugExposure
	for rows.Next() {
		var d DrugExposure
		if err := rows.Scan(&d.ID, &d.PersonID, &d.DrugConceptID, &d.StartDate, &d.EndDate,
			&d.StopReason, &d.Quantity, &d.Sig, &d.RecurrenceRuleID, &d.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &d)
	}
	return items, rows.Err()
}

// -- Measurement --

type measurementRepoPG struct{ pool *pgxpool.Pool }

func NewMeasurementRepoPG(pool *pgxpool.Pool) MeasurementRepository {
	return &measurementRepoPG{pool: pool}
}

const measurementCols = `measurement_id, person_id, measurement_concept_id, measurement_date, value_as_number,
	unit_concept_id, measurement_type_concept_id`

func (r *measurementRepoPG) Create(ctx context.Context, m *Measurement) error {
	return connFor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO measurement (person_id, measurement_concept_id, measurement_date, value_as_number,
			unit_concept_id, measurement_type_concept_id)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING measurement_id`,
		m.PersonID, m.ConceptID, m.Date, m.ValueAsNumber, m.UnitConceptID, m.TypeConceptID).Scan(&m.ID)
}

// ListByPerson lists every measurement of personID, newest first. A zero
// conceptID lists all concepts.
func (r *measurementRepoPG) ListByPerson(ctx context.Context, personID, conceptID int64) ([]*Measurement, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx, `SELECT `+measurementCols+` FROM measurement
		WHERE person_id = $1 AND ($2::bigint = 0 OR measurement_concept_id = $2)
		ORDER BY measurement_date DESC, measurement_id DESC`, personID, conceptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Measurement
	for rows.Next() {
		var m Measurement
		if err := rows.Scan(&m.ID, &m.PersonID, &m.ConceptID, &m.Date, &m.ValueAsNumber,
			&m.UnitConceptID, &m.TypeConceptID); err != nil {
			return nil, err
		}
		items = append(items, &m)
	}
	return items, rows.Err()
}

// -- Visit --

type visitRepoPG struct{ pool *pgxpool.Pool }

func NewVisitRepoPG(pool *pgxpool.Pool) VisitRepository {
	return &visitRepoPG{pool: pool}
}

const visitCols = `visit_occurrence_id, person_id, provider_id, visit_concept_id, visit_start_date, visit_end_date, care_site_id`

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	err := row.Scan(&v.ID, &v.PersonID, &v.ProviderID, &v.VisitConceptID, &v.StartDate, &v.EndDate, &v.CareSiteID)
	return &v, err
}

func (r *visitRepoPG) Create(ctx context.Context, v *Visit) error {
	return connFor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO visit_occurrence (person_id, provider_id, visit_concept_id, visit_start_date, visit_end_date, care_site_id)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING visit_occurrence_id`,
		v.PersonID, v.ProviderID, v.VisitConceptID, v.StartDate, v.EndDate, v.CareSiteID).Scan(&v.ID)
}

func (r *visitRepoPG) Latest(ctx context.Context, personID, providerID int64, now time.Time) (*time.Time, error) {
	var latest *time.Time
	err := connFor(ctx, r.pool).QueryRow(ctx, `
		SELECT MAX(visit_start_date) FROM visit_occurrence
		WHERE person_id = $1 AND provider_id = $2 AND visit_start_date <= $3`,
		personID, providerID, now).Scan(&latest)
	return latest, err
}

func (r *visitRepoPG) Next(ctx context.Context, providerID int64, now time.Time) (*Visit, error) {
	v, err := scanVisit(connFor(ctx, r.pool).QueryRow(ctx, `SELECT `+visitCols+` FROM visit_occurrence
		WHERE provider_id = $1 AND visit_start_date > $2
		ORDER BY visit_start_date LIMIT 1`, providerID, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

func (r *visitRepoPG) ListByPerson(ctx context.Context, personID int64) ([]*Visit, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx, `SELECT `+visitCols+` FROM visit_occurrence
		WHERE person_id = $1 ORDER BY visit_start_date DESC`, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, rows.Err()
}
