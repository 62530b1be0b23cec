// Package postgres implements the service repository interfaces against
// PostgreSQL via database/sql and lib/pq. Every repository embeds a
// querier that is either the shared *sql.DB or, inside InTx, a *sql.Tx,
// so the same query methods serve both paths.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// inTx runs fn inside one transaction, committing on nil and rolling
// back on error.
func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Printf("[postgres] rollback failed: %v", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// isTx reports whether q is already transaction-bound, so nested InTx
// calls join the outer transaction instead of opening a new one.
func isTx(q querier) bool {
	_, ok := q.(*sql.Tx)
	return ok
}
