// Package tx threads SQL transactions through context so multi-store
// mutations (audit append + access-count increment) commit as one unit when
// both stores share a database.
package tx

import (
	"context"
	"database/sql"
	"fmt"
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

// Runner executes fn atomically: either every store call inside commits, or
// none do.
type Runner interface {
	Run(ctx context.Context, fn func(context.Context) error) error
}

// Passthrough runs fn directly. Correct for in-memory stores whose individual
// operations are already atomic and serialized by per-key locks.
type Passthrough struct{}

func (Passthrough) Run(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// SQLRunner wraps fn in a database transaction injected via WithTx.
type SQLRunner struct {
	db *sql.DB
}

func NewSQLRunner(db *sql.DB) *SQLRunner {
	return &SQLRunner{db: db}
}

func (r *SQLRunner) Run(ctx context.Context, fn func(context.Context) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(WithTx(ctx, sqlTx)); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
