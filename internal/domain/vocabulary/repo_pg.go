package vocabulary

import (
	"context"
	"errors"
	"fmt"
	"strings"

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

type PGRepo struct{ pool *pgxpool.Pool }

// NewRepoPG returns a Repository that also implements Seeder.
func NewRepoPG(pool *pgxpool.Pool) *PGRepo {
	return &PGRepo{pool: pool}
}

func (r *PGRepo) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const conceptCols = `c.concept_id, c.concept_name, c.domain_id, c.vocabulary_id, c.concept_class_id,
	c.concept_code, c.valid_start_date, c.valid_end_date`

// synonymJoin picks the synonym in the language whose concept_code is $1.
const synonymJoin = `
	LEFT JOIN concept lang ON lang.concept_code = $1
	LEFT JOIN concept_synonym s ON s.concept_id = c.concept_id AND s.language_concept_id = lang.concept_id`

func (r *PGRepo) scanRow(row pgx.Row, withSynonym bool) (*Concept, error) {
	var c Concept
	dest := []interface{}{&c.ID, &c.Name, &c.DomainID, &c.VocabularyID, &c.ConceptClassID,
		&c.Code, &c.ValidStartDate, &c.ValidEndDate}
	if withSynonym {
		dest = append(dest, &c.TranslatedName)
	}
	err := row.Scan(dest...)
	return &c, err
}

func (r *PGRepo) FindByCodes(ctx context.Context, codes []string) ([]*Concept, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+conceptCols+` FROM concept c WHERE c.concept_code = ANY($1)`, codes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Concept
	for rows.Next() {
		c, err := r.scanRow(rows, false)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *PGRepo) GetConcept(ctx context.Context, id int64, languageCode string) (*Concept, error) {
	c, err := r.scanRow(r.conn(ctx).QueryRow(ctx,
		`SELECT `+conceptCols+`, s.concept_synonym_name FROM concept c`+synonymJoin+` WHERE c.concept_id = $2`,
		languageCode, id), true)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: concept %d", apperr.ErrNotFound, id)
	}
	return c, err
}

// conceptWhere builds the filter clause with placeholders numbered from next.
func conceptWhere(f ConceptFilter, next int) (string, []interface{}) {
	var where []string
	var args []interface{}
	if len(f.ClassIDs) > 0 {
		args = append(args, f.ClassIDs)
		where = append(where, fmt.Sprintf("c.concept_class_id = ANY($%d)", next+len(args)-1))
	}
	if len(f.Codes) > 0 {
		args = append(args, f.Codes)
		where = append(where, fmt.Sprintf("c.concept_code = ANY($%d)", next+len(args)-1))
	}
	if len(where) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

func (r *PGRepo) ListConcepts(ctx context.Context, f ConceptFilter, limit, offset int) ([]*Concept, int, error) {
	var total int
	countClause, countArgs := conceptWhere(f, 1)
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM concept c`+countClause, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	clause, filterArgs := conceptWhere(f, 2)
	args := append([]interface{}{f.LanguageCode}, filterArgs...)
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s, s.concept_synonym_name FROM concept c%s%s ORDER BY c.concept_id LIMIT $%d OFFSET $%d`,
		conceptCols, synonymJoin, clause, len(args)-1, len(args))
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Concept
	for rows.Next() {
		c, err := r.scanRow(rows, true)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

func (r *PGRepo) ListDomains(ctx context.Context) ([]*Domain, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT domain_id, domain_name, domain_concept_id FROM domain ORDER BY domain_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Domain
	for rows.Next() {
		var d Domain
		if err := rows.Scan(&d.ID, &d.Name, &d.ConceptID); err != nil {
			return nil, err
		}
		items = append(items, &d)
	}
	return items, rows.Err()
}

func (r *PGRepo) ListVocabularies(ctx context.Context) ([]*Vocabulary, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT vocabulary_id, vocabulary_name, vocabulary_concept_id FROM vocabulary ORDER BY vocabulary_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Vocabulary
	for rows.Next() {
		var v Vocabulary
		if err := rows.Scan(&v.ID, &v.Name, &v.ConceptID); err != nil {
			return nil, err
		}
		items = append(items, &v)
	}
	return items, rows.Err()
}

func (r *PGRepo) EnsureVocabulary(ctx context.Context, v *Vocabulary) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO vocabulary (vocabulary_id, vocabulary_name, vocabulary_concept_id)
		VALUES ($1, $2, $3) ON CONFLICT (vocabulary_id) DO NOTHING`,
		v.ID, v.Name, v.ConceptID)
	return tag.RowsAffected() > 0, err
}

func (r *PGRepo) EnsureDomain(ctx context.Context, d *Domain) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO domain (domain_id, domain_name, domain_concept_id)
		VALUES ($1, $2, $3) ON CONFLICT (domain_id) DO NOTHING`,
		d.ID, d.Name, d.ConceptID)
	return tag.RowsAffected() > 0, err
}

func (r *PGRepo) EnsureConceptClass(ctx context.Context, cc *ConceptClass) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO concept_class (concept_class_id, concept_class_name, concept_class_concept_id)
		VALUES ($1, $2, $3) ON CONFLICT (concept_class_id) DO NOTHING`,
		cc.ID, cc.Name, cc.ConceptID)
	return tag.RowsAffected() > 0, err
}

func (r *PGRepo) EnsureConcept(ctx context.Context, c *Concept) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO concept (concept_id, concept_name, domain_id, vocabulary_id, concept_class_id,
			concept_code, valid_start_date, valid_end_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8) ON CONFLICT (concept_id) DO NOTHING`,
		c.ID, c.Name, c.DomainID, c.VocabularyID, c.ConceptClassID,
		c.Code, c.ValidStartDate, c.ValidEndDate)
	return tag.RowsAffected() > 0, err
}

func (r *PGRepo) EnsureSynonym(ctx context.Context, s *ConceptSynonym) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO concept_synonym (concept_id, concept_synonym_name, language_concept_id)
		VALUES ($1, $2, $3) ON CONFLICT (concept_id, language_concept_id) DO NOTHING`,
		s.ConceptID, s.Name, s.LanguageConceptID)
	return tag.RowsAffected() > 0, err
}
