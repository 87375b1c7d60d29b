package factrel

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saude/saude/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type PGRepo struct{ pool *pgxpool.Pool }

// NewRepoPG returns a Repository that is also an EntityChecker.
func NewRepoPG(pool *pgxpool.Pool) *PGRepo {
	return &PGRepo{pool: pool}
}

func (r *PGRepo) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const edgeCols = `fact_relationship_id, domain_concept_1_id, fact_id_1, domain_concept_2_id, fact_id_2,
	relationship_concept_id, created_at`

func (r *PGRepo) scanRow(row pgx.Row) (*Edge, error) {
	var e Edge
	err := row.Scan(&e.ID, &e.DomainConcept1ID, &e.FactID1, &e.DomainConcept2ID, &e.FactID2,
		&e.RelationshipConceptID, &e.CreatedAt)
	return &e, err
}

func (r *PGRepo) Insert(ctx context.Context, e *Edge) (bool, error) {
	inserted, err := r.scanRow(r.conn(ctx).QueryRow(ctx, `
		INSERT INTO fact_relationship (domain_concept_1_id, fact_id_1, domain_concept_2_id, fact_id_2, relationship_concept_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (fact_id_1, fact_id_2, relationship_concept_id) DO NOTHING
		RETURNING `+edgeCols,
		e.DomainConcept1ID, e.FactID1, e.DomainConcept2ID, e.FactID2, e.RelationshipConceptID))
	if err == nil {
		*e = *inserted
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}
	existing, err := r.scanRow(r.conn(ctx).QueryRow(ctx, `
		SELECT `+edgeCols+` FROM fact_relationship
		WHERE fact_id_1 = $1 AND fact_id_2 = $2 AND relationship_concept_id = $3`,
		e.FactID1, e.FactID2, e.RelationshipConceptID))
	if err != nil {
		return false, err
	}
	*e = *existing
	return false, nil
}

func (r *PGRepo) collect(ctx context.Context, sql string, args ...interface{}) ([]int64, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PGRepo) Targets(ctx context.Context, domain1, id1, domain2, rel int64) ([]int64, error) {
	return r.collect(ctx, `
		SELECT fact_id_2 FROM fact_relationship
		WHERE domain_concept_1_id = $1 AND fact_id_1 = $2 AND domain_concept_2_id = $3 AND relationship_concept_id = $4
		ORDER BY fact_relationship_id`, domain1, id1, domain2, rel)
}

func (r *PGRepo) Sources(ctx context.Context, domain2, id2, domain1, rel int64) ([]int64, error) {
	return r.collect(ctx, `
		SELECT fact_id_1 FROM fact_relationship
		WHERE domain_concept_2_id = $1 AND fact_id_2 = $2 AND domain_concept_1_id = $3 AND relationship_concept_id = $4
		ORDER BY fact_relationship_id`, domain2, id2, domain1, rel)
}

func (r *PGRepo) Exists(ctx context.Context, id1, id2, rel int64) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM fact_relationship
			WHERE fact_id_1 = $1 AND fact_id_2 = $2 AND relationship_concept_id = $3)`,
		id1, id2, rel).Scan(&ok)
	return ok, err
}

func (r *PGRepo) Delete(ctx context.Context, id1, id2, rel int64) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		DELETE FROM fact_relationship
		WHERE fact_id_1 = $1 AND fact_id_2 = $2 AND relationship_concept_id = $3`,
		id1, id2, rel)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PGRepo) DeleteByEntity(ctx context.Context, domain, id int64) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		DELETE FROM fact_relationship
		WHERE (domain_concept_1_id = $1 AND fact_id_1 = $2)
		   OR (domain_concept_2_id = $1 AND fact_id_2 = $2)`,
		domain, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var entityTables = map[Kind]string{
	KindPerson:       `SELECT EXISTS (SELECT 1 FROM person WHERE person_id = $1)`,
	KindProvider:     `SELECT EXISTS (SELECT 1 FROM provider WHERE provider_id = $1)`,
	KindObservation:  `SELECT EXISTS (SELECT 1 FROM observation WHERE observation_id = $1)`,
	KindInterestArea: `SELECT EXISTS (SELECT 1 FROM observation WHERE observation_id = $1)`,
	KindTrigger:      `SELECT EXISTS (SELECT 1 FROM observation WHERE observation_id = $1)`,
}

func (r *PGRepo) EntityExists(ctx context.Context, ref EntityRef) (bool, error) {
	q, ok := entityTables[ref.Kind]
	if !ok {
		return false, fmt.Errorf("unknown entity kind %s", ref.Kind)
	}
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, q, ref.ID).Scan(&exists)
	return exists, err
}
