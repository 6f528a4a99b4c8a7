// Package db provides PostgreSQL access for the resource store. Every
// bucket, collection, group and record is a JSON document in one objects
// table, addressed by its parent URI, resource name and id. Writes go through
// Store, which runs them in a transaction and emits change events around the
// commit.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
// Repositories accept it so the same code runs inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Tx is the subset of pgx.Tx used by Store.
type Tx interface {
	DBTX
	Commit(ctx context.Context) error
	// Rollback is a no-op after Commit.
	Rollback(ctx context.Context) error
}

// TxBeginner starts transactions.
type TxBeginner interface {
	BeginTx(ctx context.Context) (Tx, error)
}

// Beginner is the pool side of TxBeginner, satisfied by *pgxpool.Pool.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PoolBeginner adapts a connection pool to TxBeginner.
type PoolBeginner struct {
	Pool Beginner
}

// BeginTx starts a transaction on the pool.
func (p PoolBeginner) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := p.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}
