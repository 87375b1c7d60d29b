package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Migration is one numbered SQL file.
type Migration struct {
	Version  int
	Name     string
	SQL      string
	Checksum string
}

// MigrationStatus reports a known migration against the _migrations table.
// Modified is set when an applied file no longer matches its recorded
// checksum.
type MigrationStatus struct {
	Version   int
	Name      string
	Applied   bool
	Modified  bool
	AppliedAt *time.Time
}

// ErrMigrationDrift is returned by Up when an applied migration file was
// edited after it ran.
var ErrMigrationDrift = errors.New("applied migration was modified")

// Migrator applies numbered SQL files against a PostgreSQL schema. The files
// are read from an fs.FS so the binary can ship them embedded.
type Migrator struct {
	pool *pgxpool.Pool
	fsys fs.FS
}

func NewMigrator(pool *pgxpool.Pool, fsys fs.FS) *Migrator {
	return &Migrator{
		pool: pool,
		fsys: fsys,
	}
}

func checkSchema(schema string) error {
	if !schemaPattern.MatchString(schema) {
		return fmt.Errorf("invalid schema name: %q", schema)
	}
	return nil
}

func checksum(sql string) string {
	sum := sha256.Sum256([]byte(sql))
	return hex.EncodeToString(sum[:])
}

// lockKey derives the advisory lock id for a schema, so replicas starting
// together apply migrations one at a time.
func lockKey(schema string) int64 {
	h := fnv.New64a()
	h.Write([]byte("saude.migrate." + schema))
	return int64(h.Sum64())
}

// EnsureMigrationsTable creates the schema and its _migrations tracking table
// when missing.
func (m *Migrator) EnsureMigrationsTable(ctx context.Context, schema string) error {
	if err := checkSchema(schema); err != nil {
		return err
	}
	if m.pool == nil {
		return ErrNoBeginner
	}
	query := fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %[1]s;
CREATE TABLE IF NOT EXISTS %[1]s._migrations (
    version INTEGER PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    checksum VARCHAR(64) NOT NULL DEFAULT '',
    applied_at TIMESTAMPTZ DEFAULT NOW()
)`, schema)

	if _, err := m.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create _migrations table in %s: %w", schema, err)
	}
	return nil
}

// LoadMigrations reads the .sql files at the root of the migration FS and
// sorts them by the numeric filename prefix ("001_vocabulary.sql" -> 1).
// Files without a numeric prefix are skipped. Two files sharing a version
// are an error.
func (m *Migrator) LoadMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(m.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	seen := make(map[int]string)
	var migrations []Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %d", other, name, version)
		}
		seen[version] = name

		content, err := fs.ReadFile(m.fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read migration file %s: %w", name, err)
		}
		migrations = append(migrations, Migration{
			Version:  version,
			Name:     name,
			SQL:      string(content),
			Checksum: checksum(string(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

type appliedRow struct {
	checksum  string
	appliedAt time.Time
}

func (m *Migrator) applied(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, schema string) (map[int]appliedRow, error) {
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT version, checksum, applied_at FROM %s._migrations`, schema))
	if err != nil {
		return nil, fmt.Errorf("query applied versions in %s: %w", schema, err)
	}
	defer rows.Close()

	out := make(map[int]appliedRow)
	for rows.Next() {
		var v int
		var r appliedRow
		if err := rows.Scan(&v, &r.checksum, &r.appliedAt); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		out[v] = r
	}
	return out, rows.Err()
}

// drifted reports whether an applied migration no longer matches its file.
// Rows recorded before checksums existed carry an empty checksum and are
// trusted.
func drifted(mig Migration, row appliedRow) bool {
	return row.checksum != "" && row.checksum != mig.Checksum
}

// Up applies every pending migration. Each one runs in its own transaction.
func (m *Migrator) Up(ctx context.Context, schema string) (int, error) {
	return m.UpTo(ctx, schema, 0)
}

// UpTo applies pending migrations up to and including targetVersion; 0 means
// all of them. It holds a session advisory lock for the schema while running
// and returns how many migrations were applied.
func (m *Migrator) UpTo(ctx context.Context, schema string, targetVersion int) (int, error) {
	if err := m.EnsureMigrationsTable(ctx, schema); err != nil {
		return 0, err
	}
	migrations, err := m.LoadMigrations()
	if err != nil {
		return 0, err
	}

	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	key := lockKey(schema)
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", key); err != nil {
		return 0, fmt.Errorf("lock migrations for %s: %w", schema, err)
	}
	defer conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", key)

	applied, err := m.applied(ctx, conn, schema)
	if err != nil {
		return 0, err
	}
	for _, mig := range migrations {
		if row, ok := applied[mig.Version]; ok && drifted(mig, row) {
			return 0, fmt.Errorf("%w: %s", ErrMigrationDrift, mig.Name)
		}
	}

	count := 0
	for _, mig := range migrations {
		if targetVersion > 0 && mig.Version > targetVersion {
			break
		}
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		if err := applyMigration(ctx, conn, schema, mig); err != nil {
			return count, fmt.Errorf("apply migration %d (%s): %w", mig.Version, mig.Name, err)
		}
		count++
	}
	return count, nil
}

// applyMigration runs one migration in a transaction and records it.
func applyMigration(ctx context.Context, b Beginner, schema string, mig Migration) error {
	tx, err := b.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL search_path TO %s, public", schema)); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}
	if _, err := tx.Exec(ctx, mig.SQL); err != nil {
		return fmt.Errorf("execute SQL: %w", err)
	}
	if _, err := tx.Exec(ctx,
		fmt.Sprintf("INSERT INTO %s._migrations (version, name, checksum) VALUES ($1, $2, $3)", schema),
		mig.Version, mig.Name, mig.Checksum,
	); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit(ctx)
}

// Status lists every known migration with its applied state.
func (m *Migrator) Status(ctx context.Context, schema string) ([]MigrationStatus, error) {
	if err := m.EnsureMigrationsTable(ctx, schema); err != nil {
		return nil, err
	}
	migrations, err := m.LoadMigrations()
	if err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx, m.pool, schema)
	if err != nil {
		return nil, err
	}
	return statusOf(migrations, applied), nil
}

func statusOf(migrations []Migration, applied map[int]appliedRow) []MigrationStatus {
	statuses := make([]MigrationStatus, 0, len(migrations))
	for _, mig := range migrations {
		s := MigrationStatus{Version: mig.Version, Name: mig.Name}
		if row, ok := applied[mig.Version]; ok {
			at := row.appliedAt
			s.Applied = true
			s.AppliedAt = &at
			s.Modified = drifted(mig, row)
		}
		statuses = append(statuses, s)
	}
	return statuses
}
