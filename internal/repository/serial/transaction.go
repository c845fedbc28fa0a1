// Package serial provides a TransactionManager for backends that live in a
// single process (memory, badger).
package serial

import (
	"context"
	"errors"
	"sync"

	"nodetree/internal/domain/repositories"
)

type txKey struct{}

// section records which kind of lock the ctx already holds
type section struct {
	tm    *TransactionManager
	write bool
}

// ErrWriteInReadTx is returned by ExecTx when called from inside ReadTx;
// a shared lock cannot be upgraded.
var ErrWriteInReadTx = errors.New("ExecTx called inside ReadTx")

// TransactionManager runs each ExecTx under the write side of one RWMutex
// and each ReadTx under the read side. Nested calls made with the ctx
// handed to fn run inline instead of deadlocking.
type TransactionManager struct {
	mu sync.RWMutex
}

// NewTransactionManager creates a new in-process transaction manager
func NewTransactionManager() *TransactionManager {
	return &TransactionManager{}
}

var _ repositories.TransactionManager = (*TransactionManager)(nil)

func (tm *TransactionManager) held(ctx context.Context) (section, bool) {
	s, ok := ctx.Value(txKey{}).(section)
	if !ok || s.tm != tm {
		return section{}, false
	}
	return s, true
}

// ExecTx executes fn while holding the tree write lock
func (tm *TransactionManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	if s, ok := tm.held(ctx); ok {
		if !s.write {
			return ErrWriteInReadTx
		}
		return fn(ctx)
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(context.WithValue(ctx, txKey{}, section{tm: tm, write: true}))
}

// ReadTx executes fn while holding the tree read lock
func (tm *TransactionManager) ReadTx(ctx context.Context, fn repositories.TxFn) error {
	if _, ok := tm.held(ctx); ok {
		return fn(ctx)
	}

	tm.mu.RLock()
	defer tm.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(context.WithValue(ctx, txKey{}, section{tm: tm}))
}
