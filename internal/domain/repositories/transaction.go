package repositories

import "context"

// TxFn is a function that runs inside a tree write section
type TxFn func(ctx context.Context) error

// TransactionManager runs check-then-write sequences as one unit.
// Implementations serialize writers of the same tree: a second ExecTx
// blocks until the first returns.
type TransactionManager interface {
	// ExecTx executes fn; repositories called with the ctx passed to fn
	// participate in the same unit.
	ExecTx(ctx context.Context, fn TxFn) error

	// ReadTx executes fn against one consistent view of the tree. Reads made
	// with the ctx passed to fn never observe a half-applied ExecTx. Inside
	// an ExecTx it runs inline.
	ReadTx(ctx context.Context, fn TxFn) error
}
