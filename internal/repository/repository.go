// Package repository provides PostgreSQL data access for the entitlement
// engine via pgx. All multi-row invariants (usage upsert-increment, promo
// compare-and-increment, redemption ledgers) are enforced here with atomic
// SQL rather than read-then-write from callers.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eletrogest/eletrogest/internal/domain"
)

// Repository is the concrete data access layer backed by a pgx pool.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a Repository on top of an established connection pool.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// withTx runs fn inside a transaction, rolling back on error.
func (r *Repository) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Transient(err, "repository.begin", "failed to start transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Transient(err, "repository.commit", "failed to commit transaction")
	}
	return nil
}

// uniqueViolation is the PostgreSQL error code for violating a unique constraint.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
