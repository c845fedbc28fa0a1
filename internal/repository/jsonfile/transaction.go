package jsonfile

import (
	"context"
	"errors"

	"nodetree/internal/domain/repositories"
)

// ErrWriteInReadTx is returned when a write is attempted inside ReadTx
var ErrWriteInReadTx = errors.New("write inside a read-only transaction")

type sessionKey struct{}

// session is the document shared by every repository call in one transaction
type session struct {
	repo  *NodeRepository
	data  *storeData
	write bool
	dirty bool
}

func (r *NodeRepository) session(ctx context.Context) *session {
	s, ok := ctx.Value(sessionKey{}).(*session)
	if !ok || s.repo != r {
		return nil
	}
	return s
}

// TransactionManager holds the store's file lock for a whole ExecTx (exclusive)
// or ReadTx (shared). Processes sharing the file are serialized with it, not
// just goroutines.
type TransactionManager struct {
	repo *NodeRepository
}

// NewTransactionManager creates a transaction manager for repo
func NewTransactionManager(repo *NodeRepository) *TransactionManager {
	return &TransactionManager{repo: repo}
}

var _ repositories.TransactionManager = (*TransactionManager)(nil)

// ExecTx runs fn under the exclusive lock. The document is saved once, after
// fn succeeds and only if fn changed it.
func (tm *TransactionManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	if s := tm.repo.session(ctx); s != nil {
		if !s.write {
			return ErrWriteInReadTx
		}
		return fn(ctx)
	}
	return tm.run(ctx, true, fn)
}

// ReadTx runs fn under the shared lock against one loaded document
func (tm *TransactionManager) ReadTx(ctx context.Context, fn repositories.TxFn) error {
	if tm.repo.session(ctx) != nil {
		return fn(ctx)
	}
	return tm.run(ctx, false, fn)
}

func (tm *TransactionManager) run(ctx context.Context, write bool, fn repositories.TxFn) error {
	r := tm.repo
	return r.withLock(ctx, write, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := r.load()
		if err != nil {
			return err
		}

		s := &session{repo: r, data: data, write: write}
		if err := fn(context.WithValue(ctx, sessionKey{}, s)); err != nil {
			return err
		}
		if !s.dirty {
			return nil
		}
		return r.save(data)
	})
}
