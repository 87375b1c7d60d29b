package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfig holds the connection settings read from config.
type PoolConfig struct {
	URL      string
	MaxConns int32
	MinConns int32
	// Schema is placed first on the search_path of every pooled connection.
	Schema string
}

func NewPool(ctx context.Context, pc PoolConfig) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(pc.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	cfg.MaxConns = pc.MaxConns
	cfg.MinConns = pc.MinConns
	if pc.Schema != "" && pc.Schema != "public" {
		if !schemaPattern.MatchString(pc.Schema) {
			return nil, fmt.Errorf("invalid schema name: %s", pc.Schema)
		}
		cfg.ConnConfig.RuntimeParams["search_path"] = pc.Schema + ", public"
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
