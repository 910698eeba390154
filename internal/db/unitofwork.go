package db

import (
	"context"
	"database/sql"
	"fmt"
)

// UnitOfWork manages transactional boundaries. The callback receives a DBTX
// backed by a *sql.Tx; callers create tx-scoped repositories from it.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error
}

// SQLUnitOfWork implements UnitOfWork using database/sql transactions.
type SQLUnitOfWork struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLUnitOfWork creates a UnitOfWork backed by the given *sql.DB. The tx
// handed to callbacks already speaks the dialect's placeholder style.
func NewSQLUnitOfWork(db *sql.DB, dialect Dialect) *SQLUnitOfWork {
	return &SQLUnitOfWork{db: db, dialect: dialect}
}

// WithinTx begins a transaction, calls fn, and commits on success.
// If fn returns an error or panics, the transaction is rolled back.
func (u *SQLUnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error {
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, Bind(u.dialect, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
