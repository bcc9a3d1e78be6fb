package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/collabhq/workspace-sync/internal/config"
)

// Postgres reads canonical workspace state from a workspace_states table
// (workspace_id text primary key, state jsonb).
type Postgres struct {
	pool *pgxpool.Pool
}

// Connect creates a connection pool and verifies it.
func Connect(ctx context.Context, cfg config.DBConfig) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(BuildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// GetState fetches the canonical state for a workspace.
func (p *Postgres) GetState(ctx context.Context, workspaceID string) (map[string]any, error) {
	var st map[string]any
	err := p.pool.QueryRow(ctx,
		`SELECT state FROM workspace_states WHERE workspace_id = $1`,
		workspaceID,
	).Scan(&st)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query workspace state: %w", err)
	}
	return st, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}
