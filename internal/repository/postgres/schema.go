package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the node table and its child-order index if they are missing.
// Statements run one at a time so the pool can stay in cache_describe mode.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, tables *TableNames) error {
	statements := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id UUID PRIMARY KEY,
				parent_id UUID REFERENCES %s(id),
				seq BIGSERIAL NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)
		`, tables.Nodes, tables.Nodes),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_parent_seq_idx ON %s (parent_id, seq)`, tables.Nodes, tables.Nodes),
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema for %s: %w", tables.Nodes, err)
		}
	}
	return nil
}

// DropSchema removes the node table
func DropSchema(ctx context.Context, pool *pgxpool.Pool, tables *TableNames) error {
	if _, err := pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s CASCADE`, tables.Nodes)); err != nil {
		return fmt.Errorf("drop %s: %w", tables.Nodes, err)
	}
	return nil
}
