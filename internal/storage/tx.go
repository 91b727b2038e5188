package storage

import (
	"context"

	"github.com/abduss/filemeta/internal/errs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type scopeKey struct{}

// Scope tracks one open unit of work. Tx is nil for stores without SQL transactions.
type Scope struct {
	Tx    pgx.Tx
	hooks []func()
}

// WithScope attaches scope to ctx.
func WithScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFrom returns the unit of work carried by ctx, if any.
func ScopeFrom(ctx context.Context) (*Scope, bool) {
	scope, ok := ctx.Value(scopeKey{}).(*Scope)
	return scope, ok && scope != nil
}

// RunHooks executes the after-commit hooks in registration order.
func (s *Scope) RunHooks() {
	hooks := s.hooks
	s.hooks = nil
	for _, hook := range hooks {
		hook()
	}
}

// AfterCommit defers fn until the outermost unit of work in ctx commits.
// Without an open unit of work fn runs immediately.
func AfterCommit(ctx context.Context, fn func()) {
	if scope, ok := ScopeFrom(ctx); ok {
		scope.hooks = append(scope.hooks, fn)
		return
	}
	fn()
}

// Querier is the subset of pgx shared by pools and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Conn returns the transaction bound to ctx, falling back to the pool.
func Conn(ctx context.Context, pool *pgxpool.Pool) Querier {
	if scope, ok := ScopeFrom(ctx); ok && scope.Tx != nil {
		return scope.Tx
	}
	return pool
}

// TxManager runs units of work inside PostgreSQL transactions.
type TxManager struct {
	pool *pgxpool.Pool
}

// NewTxManager builds a transaction manager over pool.
func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool}
}

// WithinTx runs fn in a transaction. Nested calls join the outer transaction.
// Errors returned by fn are passed through untouched after rollback.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ScopeFrom(ctx); ok {
		return fn(ctx)
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return errs.Storage("begin transaction", err)
	}

	scope := &Scope{Tx: tx}
	if err := fn(WithScope(ctx, scope)); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errs.Storage("commit transaction", err)
	}

	scope.RunHooks()
	return nil
}
