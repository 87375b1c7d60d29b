package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saude/saude/internal/platform/apperr"
	"github.com/saude/saude/internal/platform/db"
)

type queryable interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type accountRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &accountRepoPG{pool: pool}
}

func (r *accountRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const accountCols = `id, email, username, first_name, last_name, password_hash,
	is_admin, is_active, last_login, created_at`

func (r *accountRepoPG) scanRow(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Email, &a.Username, &a.FirstName, &a.LastName, &a.PasswordHash,
		&a.IsAdmin, &a.IsActive, &a.LastLogin, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: account", apperr.ErrNotFound)
	}
	return &a, err
}

func (r *accountRepoPG) Create(ctx context.Context, a *Account) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.Email = strings.ToLower(a.Email)
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO account (id, email, username, first_name, last_name, password_hash, is_admin, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`,
		a.ID, a.Email, a.Username, a.FirstName, a.LastName, a.PasswordHash, a.IsAdmin, a.IsActive,
	).Scan(&a.CreatedAt)
	if db.IsUniqueViolation(err, "account_email_key") {
		return fmt.Errorf("%w: email already registered", apperr.ErrConflict)
	}
	return err
}

func (r *accountRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+accountCols+` FROM account WHERE id = $1`, id))
}

func (r *accountRepoPG) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx,
		`SELECT `+accountCols+` FROM account WHERE email = $1`, strings.ToLower(email)))
}

func (r *accountRepoPG) TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE account SET last_login = $2 WHERE id = $1`, id, at)
	return err
}

func (r *accountRepoPG) SetAdminPassword(ctx context.Context, id uuid.UUID, hash string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE account SET password_hash = $2, is_admin = TRUE WHERE id = $1`, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account", apperr.ErrNotFound)
	}
	return nil
}

func (r *accountRepoPG) Deactivate(ctx context.Context, id uuid.UUID, email, username string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE account SET email = $2, username = $3, first_name = '', last_name = '',
			password_hash = NULL, is_active = FALSE
		WHERE id = $1`, id, email, username)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account", apperr.ErrNotFound)
	}
	return nil
}
