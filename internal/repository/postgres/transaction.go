package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"nodetree/internal/domain/repositories"
)

// TransactionManager runs each ExecTx in a pgx transaction that first takes a
// transaction-scoped advisory lock keyed on the tree's table, so writers in
// every process sharing the database are serialized. ReadTx uses a read-only
// REPEATABLE READ transaction: every query in it sees one snapshot and no
// lock is taken.
type TransactionManager struct {
	pool    *pgxpool.Pool
	lockKey string
	logger  *slog.Logger
}

// NewTransactionManager creates a transaction manager for the tree stored in tables.Nodes
func NewTransactionManager(config *RepositoryConfig) *TransactionManager {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TransactionManager{
		pool:    config.Pool,
		lockKey: config.Tables.Nodes,
		logger:  logger,
	}
}

var errWriteInReadTx = errors.New("ExecTx called inside ReadTx")

var _ repositories.TransactionManager = (*TransactionManager)(nil)

// ExecTx executes fn within a locked transaction
func (tm *TransactionManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	if treeTx(ctx) != nil {
		if inReadOnlyTx(ctx) {
			return errWriteInReadTx
		}
		return fn(ctx)
	}

	tx, err := tm.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	// Safe even after commit
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			tm.logger.Warn("rollback failed", "error", err)
		}
	}()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", tm.lockKey); err != nil {
		return fmt.Errorf("acquire tree lock: %w", err)
	}

	if err := fn(withTreeTx(ctx, tx, false)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// ReadTx executes fn within a read-only snapshot transaction
func (tm *TransactionManager) ReadTx(ctx context.Context, fn repositories.TxFn) error {
	if treeTx(ctx) != nil {
		return fn(ctx)
	}

	tx, err := tm.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return fmt.Errorf("begin read transaction: %w", err)
	}
	// Nothing to undo; ends the snapshot
	defer func() { _ = tx.Rollback(ctx) }()

	return fn(withTreeTx(ctx, tx, true))
}
