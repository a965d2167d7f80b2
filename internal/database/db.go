package database

import (
	"context"
	"errors"

	"github.com/CallumWaite/gatehouse/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapPostgresError translates driver errors into the models sentinels.
func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return models.ErrConflict
		case "23503", "23502": // foreign_key_violation, not_null_violation
			return models.ErrBadRequest
		}
	}

	return err
}

// txBeginner is the pool surface WithTransaction needs.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// WithTransaction runs fn inside a transaction, rolling back on error or
// panic. Counter read-modify-write sequences rely on this plus row locks
// for their per-key atomicity.
func (db *DB) WithTransaction(ctx context.Context, fn func(pgx.Tx) error) error {
	return runInTransaction(ctx, db.Pool, fn)
}

// runInTransaction commits via the named return so a failed COMMIT reaches
// the caller: a counter advance whose commit is lost must read as a store
// fault, never as an admitted request.
func runInTransaction(ctx context.Context, pool txBeginner, fn func(pgx.Tx) error) (err error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	return fn(tx)
}
