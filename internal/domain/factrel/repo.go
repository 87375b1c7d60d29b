package factrel

import "context"

type Repository interface {
	// Insert stores e unless the (fact_id_1, fact_id_2, relationship) triple
	// already exists, in which case e is filled from the existing row and
	// created is false.
	Insert(ctx context.Context, e *Edge) (created bool, err error)
	// Targets returns fact_id_2 of every edge anchored at side 1.
	Targets(ctx context.Context, domain1, id1, domain2, rel int64) ([]int64, error)
	// Sources returns fact_id_1 of every edge anchored at side 2.
	Sources(ctx context.Context, domain2, id2, domain1, rel int64) ([]int64, error)
	Exists(ctx context.Context, id1, id2, rel int64) (bool, error)
	Delete(ctx context.Context, id1, id2, rel int64) (int64, error)
	// DeleteByEntity removes every edge with the entity on either side.
	DeleteByEntity(ctx context.Context, domain, id int64) (int64, error)
}

// EntityChecker reports whether the entity behind a ref exists.
type EntityChecker interface {
	EntityExists(ctx context.Context, ref EntityRef) (bool, error)
}
