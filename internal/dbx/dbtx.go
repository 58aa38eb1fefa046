// Package dbx holds the database handle abstraction the form and instance
// repositories are written against, plus transaction helpers for their
// read-modify-write updates.
package dbx

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn in a transaction that is committed when fn returns nil and
// rolled back otherwise. A panic in fn rolls back and is re-raised.
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    _, err := tx.ExecContext(ctx, "update instances set status=? where id=?", status, id)
//	    return err
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}

// RunInTx runs fn in a new transaction when db is a *sql.DB. Any other DBTX
// (typically a caller-owned *sql.Tx) is passed through unchanged so the
// caller keeps control of commit and rollback.
func RunInTx(ctx context.Context, db DBTX, fn func(ctx context.Context, tx DBTX) error) error {
	if sqlDB, ok := db.(*sql.DB); ok {
		return WithTx(ctx, sqlDB, nil, fn)
	}
	return fn(ctx, db)
}
