package postgres

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store adalah handle DB yang di-inject ke service. Lifecycle pool dipegang main.
type Store struct{ Pool *pgxpool.Pool }

func (s *Store) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return s.Pool.Exec(ctx, sql, args...)
}

func (s *Store) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return s.Pool.Query(ctx, sql, args...)
}

func (s *Store) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return s.Pool.QueryRow(ctx, sql, args...)
}

func (s *Store) Ping(ctx context.Context) error { return s.Pool.Ping(ctx) }

// InTx: satu unit of work. Commit kalau fn sukses, rollback di semua jalur lain (error maupun panic).
func (s *Store) InTx(ctx context.Context, fn func(q orders.Querier) error) (err error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return orders.Infra("begin tx", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return orders.Infra("commit tx", err)
	}
	return nil
}

var _ orders.Transactor = (*Store)(nil)
var _ orders.Querier = (*Store)(nil)

// Seed menambah produk; dipakai test integrasi dan bootstrap dev.
func (s *Store) Seed(ctx context.Context, name, price string, stock int) (int64, error) {
	var id int64
	err := s.Pool.QueryRow(ctx, `INSERT INTO products(name, price, stock) VALUES ($1, $2::numeric, $3) RETURNING id`,
		name, price, stock).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("seed product %s: %w", name, err)
	}
	return id, nil
}
