package orders

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the statement surface shared by pgx.Tx and *pgxpool.Pool.
// Ledger and repository calls receive the caller's transaction as a Querier.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Transactor runs fn inside one transaction: commit on nil, rollback otherwise.
type Transactor interface {
	InTx(ctx context.Context, fn func(q Querier) error) error
}
