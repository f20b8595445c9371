package tx

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// Runner provides a transactional boundary across stores. Stores participate by
// resolving their executor with From(ctx).
type Runner interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

// SQLRunner runs fn inside a database/sql transaction. Nested calls reuse the
// outer transaction.
type SQLRunner struct {
	db *sql.DB
}

// NewSQLRunner constructs a Runner backed by db.
func NewSQLRunner(db *sql.DB) *SQLRunner {
	return &SQLRunner{db: db}
}

func (r *SQLRunner) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if _, ok := From(ctx); ok {
		return fn(ctx)
	}
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(WithTx(ctx, sqlTx)); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// LockRunner serializes fn under a process-wide mutex. It is the in-memory
// counterpart of SQLRunner; memory stores do not roll back.
type LockRunner struct {
	mu sync.Mutex
}

// NewLockRunner constructs an in-memory Runner.
func NewLockRunner() *LockRunner {
	return &LockRunner{}
}

type lockHeldKey struct{}

func (r *LockRunner) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if held, _ := ctx.Value(lockHeldKey{}).(bool); held {
		return fn(ctx)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(context.WithValue(ctx, lockHeldKey{}, true))
}
