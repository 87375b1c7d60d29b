package linking

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

type codeRepoPG struct{ pool *pgxpool.Pool }

func NewCodeRepoPG(pool *pgxpool.Pool) CodeRepository {
	return &codeRepoPG{pool: pool}
}

func (r *codeRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const codeCols = `observation_id, provider_id, person_id, value_as_string, observation_date`

func scanCode(row pgx.Row) (*CodeRecord, error) {
	var c CodeRecord
	var providerID *int64
	err := row.Scan(&c.ObservationID, &providerID, &c.PersonID, &c.Code, &c.GeneratedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: link code", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if providerID != nil {
		c.ProviderID = *providerID
	}
	return &c, nil
}

// Upsert must run inside a transaction: the provider row lock serializes
// concurrent generations so each provider keeps a single code row.
func (r *codeRepoPG) Upsert(ctx context.Context, conceptID, typeConceptID, providerID int64, code string, at time.Time) (*CodeRecord, error) {
	q := r.conn(ctx)
	var locked int64
	err := q.QueryRow(ctx, `SELECT provider_id FROM provider WHERE provider_id = $1 FOR UPDATE`, providerID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: provider %d", apperr.ErrNotFound, providerID)
	}
	if err != nil {
		return nil, fmt.Errorf("lock provider: %w", err)
	}

	rec, err := scanCode(q.QueryRow(ctx, `
		UPDATE observation
		SET value_as_string = $3, observation_date = $4, person_id = NULL, version = version + 1
		WHERE observation_id = (
			SELECT observation_id FROM observation
			WHERE provider_id = $1 AND observation_concept_id = $2
			ORDER BY observation_date DESC, observation_id DESC LIMIT 1)
		RETURNING `+codeCols, providerID, conceptID, code, at))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("update link code: %w", err)
	}

	rec, err = scanCode(q.QueryRow(ctx, `
		INSERT INTO observation (provider_id, observation_concept_id, value_as_string,
			observation_date, observation_type_concept_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+codeCols, providerID, conceptID, code, at, typeConceptID))
	if err != nil {
		return nil, fmt.Errorf("insert link code: %w", err)
	}
	return rec, nil
}

// Reserve takes a transaction-scoped advisory lock keyed by the code. It is
// released on commit or rollback, so it only guards callers inside one.
func (r *codeRepoPG) Reserve(ctx context.Context, conceptID int64, code string) error {
	if _, err := r.conn(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($2, $1))`, conceptID, code); err != nil {
		return fmt.Errorf("reserve link code: %w", err)
	}
	return nil
}

func (r *codeRepoPG) FindLatest(ctx context.Context, conceptID int64, code string) (*CodeRecord, error) {
	return scanCode(r.conn(ctx).QueryRow(ctx, `SELECT `+codeCols+` FROM observation
		WHERE observation_concept_id = $1 AND value_as_string = $2
		ORDER BY observation_date DESC, observation_id DESC LIMIT 1`, conceptID, code))
}

// Claim re-checks person_id IS NULL on the locked row, so of two concurrent
// claims the one that waits on the lock updates nothing.
func (r *codeRepoPG) Claim(ctx context.Context, conceptID int64, code string, personID int64, notBefore time.Time) (int64, error) {
	var providerID *int64
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE observation o SET person_id = $3, version = o.version + 1
		WHERE o.observation_id = (
			SELECT observation_id FROM observation
			WHERE observation_concept_id = $1 AND value_as_string = $2
				AND person_id IS NULL AND observation_date >= $4
			ORDER BY observation_date DESC, observation_id DESC LIMIT 1)
			AND o.person_id IS NULL
		RETURNING o.provider_id`, conceptID, code, personID, notBefore).Scan(&providerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: link code", apperr.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("claim link code: %w", err)
	}
	if providerID == nil {
		return 0, fmt.Errorf("%w: link code without provider", apperr.ErrNotFound)
	}
	return *providerID, nil
}
