package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so node queries run
// unchanged inside or outside a tree transaction.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row
}

type treeTxKey struct{}

type openTx struct {
	tx       pgx.Tx
	readOnly bool
}

func withTreeTx(ctx context.Context, tx pgx.Tx, readOnly bool) context.Context {
	return context.WithValue(ctx, treeTxKey{}, openTx{tx: tx, readOnly: readOnly})
}

// treeTx returns the transaction opened by ExecTx or ReadTx, or nil outside one
func treeTx(ctx context.Context) pgx.Tx {
	open, _ := ctx.Value(treeTxKey{}).(openTx)
	return open.tx
}

func inReadOnlyTx(ctx context.Context) bool {
	open, _ := ctx.Value(treeTxKey{}).(openTx)
	return open.tx != nil && open.readOnly
}
