package db

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
)

type contextKey string

const DBTxKey contextKey = "db_tx"

var schemaPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ErrNoBeginner is returned by WithTx when it has nothing to open a
// transaction on.
var ErrNoBeginner = errors.New("no database connection available")

// Beginner is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TxFromContext returns the transaction stored by WithTx, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// WithTx begins a transaction and returns a context carrying it. Repositories
// pick the transaction up through TxFromContext. When ctx already carries a
// transaction a savepoint is opened on it instead.
func WithTx(ctx context.Context, b Beginner) (context.Context, pgx.Tx, error) {
	if outer := TxFromContext(ctx); outer != nil {
		b = outer
	}
	if b == nil {
		return ctx, nil, ErrNoBeginner
	}
	tx, err := b.Begin(ctx)
	if err != nil {
		return ctx, nil, fmt.Errorf("begin transaction: %w", err)
	}
	return context.WithValue(ctx, DBTxKey, tx), tx, nil
}

// TxRunner runs fn inside a single unit of work. Services depend on this
// rather than on the pool so they can be tested without a database.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PoolTxRunner is the pgx-backed TxRunner.
type PoolTxRunner struct {
	b Beginner
}

func NewTxRunner(b Beginner) *PoolTxRunner {
	return &PoolTxRunner{b: b}
}

func (r *PoolTxRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	txCtx, tx, err := WithTx(ctx, r.b)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(txCtx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// InlineTxRunner calls fn directly. It is used by tests and by code paths
// that only touch in-memory stores.
type InlineTxRunner struct{}

func (InlineTxRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
