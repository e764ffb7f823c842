package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Repo: persistence murni untuk orders, order_items, payments. Tidak ada business rule di sini.
type Repo struct{}

func (Repo) InsertOrder(ctx context.Context, q Querier, userID int64, status Status, total decimal.Decimal) (Order, error) {
	o := Order{UserID: userID, Status: status, TotalAmount: total}
	err := q.QueryRow(ctx, `
		INSERT INTO orders(user_id, status, total_amount)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`, userID, string(status), total,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return Order{}, Infra("insert order", err)
	}
	return o, nil
}

func (Repo) GetOrder(ctx context.Context, q Querier, orderID int64) (Order, error) {
	return scanOrder(q.QueryRow(ctx, `
		SELECT id, user_id, status, total_amount, created_at
		FROM orders WHERE id=$1`, orderID))
}

// LockOrder mengambil row order dengan FOR UPDATE; create & cancel order yang sama jadi serial.
func (Repo) LockOrder(ctx context.Context, q Querier, orderID int64) (Order, error) {
	return scanOrder(q.QueryRow(ctx, `
		SELECT id, user_id, status, total_amount, created_at
		FROM orders WHERE id=$1 FOR UPDATE`, orderID))
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o      Order
		status string
	)
	if err := row.Scan(&o.ID, &o.UserID, &status, &o.TotalAmount, &o.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, Infra("read order", err)
	}
	o.Status = Status(status)
	if !o.Status.Valid() {
		return Order{}, Infra("read order", fmt.Errorf("unknown status %q", status))
	}
	return o, nil
}

func (Repo) UpdateStatus(ctx context.Context, q Querier, orderID int64, status Status) error {
	ct, err := q.Exec(ctx, `UPDATE orders SET status=$2 WHERE id=$1`, orderID, string(status))
	if err != nil {
		return Infra("update order status", err)
	}
	if ct.RowsAffected() != 1 {
		return ErrOrderNotFound
	}
	return nil
}

func (Repo) InsertLine(ctx context.Context, q Querier, l OrderLine) error {
	if _, err := q.Exec(ctx, `
		INSERT INTO order_items(order_id, product_id, quantity, price)
		VALUES ($1, $2, $3, $4)`,
		l.OrderID, l.ProductID, l.Quantity, l.Price,
	); err != nil {
		return Infra("insert order item", err)
	}
	return nil
}

// ListLines urut product_id supaya restore stok mengikuti lock order yang sama dengan create.
func (Repo) ListLines(ctx context.Context, q Querier, orderID int64) ([]OrderLine, error) {
	rows, err := q.Query(ctx, `
		SELECT order_id, product_id, quantity, price
		FROM order_items WHERE order_id=$1
		ORDER BY product_id`, orderID)
	if err != nil {
		return nil, Infra("list order items", err)
	}
	defer rows.Close()

	out := []OrderLine{}
	for rows.Next() {
		var l OrderLine
		if err := rows.Scan(&l.OrderID, &l.ProductID, &l.Quantity, &l.Price); err != nil {
			return nil, Infra("scan order item", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, Infra("list order items", err)
	}
	return out, nil
}

func (Repo) InsertPayment(ctx context.Context, q Querier, p Payment) error {
	if _, err := q.Exec(ctx, `
		INSERT INTO payments(order_id, amount, status)
		VALUES ($1, $2, $3)`,
		p.OrderID, p.Amount, string(p.Status),
	); err != nil {
		return Infra("insert payment", err)
	}
	return nil
}
