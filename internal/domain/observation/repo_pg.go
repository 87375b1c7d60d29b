package observation

import (
	"context"
	"errors"
	"fmt"
	"strings"
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

type observationRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &observationRepoPG{pool: pool}
}

func (r *observationRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const observationCols = `observation_id, person_id, provider_id, observation_concept_id, value_as_concept_id,
	value_as_string, observation_date, observation_type_concept_id, observation_source_value,
	shared_with_provider, version`

func (r *observationRepoPG) scanRow(row pgx.Row) (*Observation, error) {
	var o Observation
	err := row.Scan(&o.ID, &o.PersonID, &o.ProviderID, &o.ConceptID, &o.ValueAsConceptID,
		&o.ValueAsString, &o.Date, &o.TypeConceptID, &o.SourceValue,
		&o.SharedWithProvider, &o.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: observation", apperr.ErrNotFound)
	}
	return &o, err
}

func (r *observationRepoPG) Create(ctx context.Context, o *Observation) error {
	if o.Date.IsZero() {
		o.Date = time.Now().UTC()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO observation (person_id, provider_id, observation_concept_id, value_as_concept_id,
			value_as_string, observation_date, observation_type_concept_id, observation_source_value,
			shared_with_provider)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING observation_id, version`,
		o.PersonID, o.ProviderID, o.ConceptID, o.ValueAsConceptID,
		o.ValueAsString, o.Date, o.TypeConceptID, o.SourceValue,
		o.SharedWithProvider).Scan(&o.ID, &o.Version)
	return err
}

func (r *observationRepoPG) GetByID(ctx context.Context, id int64) (*Observation, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+observationCols+` FROM observation WHERE observation_id = $1`, id))
}

func (r *observationRepoPG) GetForUpdate(ctx context.Context, id int64) (*Observation, error) {
	if db.TxFromContext(ctx) == nil {
		return nil, errors.New("GetForUpdate requires a transaction")
	}
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+observationCols+` FROM observation WHERE observation_id = $1 FOR UPDATE`, id))
}

func buildWhere(f Filter) (string, []interface{}) {
	var where []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.PersonID != nil {
		add("person_id = $%d", *f.PersonID)
	}
	if f.ProviderID != nil {
		add("provider_id = $%d", *f.ProviderID)
	}
	if f.ConceptID != 0 {
		add("observation_concept_id = $%d", f.ConceptID)
	}
	if f.ValueConceptID != nil {
		add("value_as_concept_id = $%d", *f.ValueConceptID)
	}
	if f.SharedOnly {
		where = append(where, "shared_with_provider IS TRUE")
	}
	if f.Since != nil {
		add("observation_date >= $%d", *f.Since)
	}
	if f.Until != nil {
		add("observation_date <= $%d", *f.Until)
	}
	if len(where) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

func (r *observationRepoPG) List(ctx context.Context, f Filter) ([]*Observation, error) {
	clause, args := buildWhere(f)
	query := `SELECT ` + observationCols + ` FROM observation` + clause + ` ORDER BY observation_date DESC, observation_id DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Observation
	for rows.Next() {
		o, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

func (r *observationRepoPG) Count(ctx context.Context, f Filter) (int, error) {
	clause, args := buildWhere(f)
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM observation`+clause, args...).Scan(&n)
	return n, err
}

func (r *observationRepoPG) LatestDate(ctx context.Context, f Filter) (*time.Time, error) {
	clause, args := buildWhere(f)
	var t *time.Time
	err := r.conn(ctx).QueryRow(ctx, `SELECT MAX(observation_date) FROM observation`+clause, args...).Scan(&t)
	return t, err
}

func (r *observationRepoPG) UpdateValue(ctx context.Context, o *Observation) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE observation SET value_as_string = $2, value_as_concept_id = $3, observation_date = $4,
			shared_with_provider = $5, person_id = $6, version = version + 1
		WHERE observation_id = $1
		RETURNING version`,
		o.ID, o.ValueAsString, o.ValueAsConceptID, o.Date, o.SharedWithProvider, o.PersonID).Scan(&o.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: observation %d", apperr.ErrNotFound, o.ID)
	}
	return err
}

func (r *observationRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM observation WHERE observation_id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: observation %d", apperr.ErrNotFound, id)
	}
	return nil
}
