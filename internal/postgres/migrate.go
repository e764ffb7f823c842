package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id    BIGSERIAL PRIMARY KEY,
		name  TEXT NOT NULL,
		price NUMERIC(12,2) NOT NULL CHECK (price >= 0),
		stock INTEGER NOT NULL CHECK (stock >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id           BIGSERIAL PRIMARY KEY,
		user_id      BIGINT NOT NULL,
		status       VARCHAR(16) NOT NULL CHECK (status IN ('CREATED','PAID','CANCELLED')),
		total_amount NUMERIC(12,2) NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders(user_id)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		order_id   BIGINT NOT NULL REFERENCES orders(id),
		product_id BIGINT NOT NULL REFERENCES products(id),
		quantity   INTEGER NOT NULL CHECK (quantity > 0),
		price      NUMERIC(12,2) NOT NULL,
		PRIMARY KEY (order_id, product_id)
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		order_id BIGINT PRIMARY KEY REFERENCES orders(id),
		amount   NUMERIC(12,2) NOT NULL,
		status   VARCHAR(16) NOT NULL
	)`,
}

func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, m := range migrations {
		if _, err := pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("run migration: %w", err)
		}
	}
	return nil
}
