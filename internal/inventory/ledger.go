package inventory

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Ledger mengelola stok produk di bawah row lock pessimistic.
// Semua method butuh transaksi aktif dari caller; Ledger tidak pernah commit sendiri.
//
// Lock order: caller yang menyentuh beberapa produk wajib memanggil LockAndPrice
// urut product id ascending, supaya dua order multi-item tidak saling menunggu.
type Ledger struct{}

// LockAndPrice: SELECT ... FOR UPDATE, cek stok, kembalikan harga saat ini. Stok belum diubah.
func (Ledger) LockAndPrice(ctx context.Context, q orders.Querier, productID int64, qty int) (decimal.Decimal, error) {
	var (
		price decimal.Decimal
		stock int
	)
	err := q.QueryRow(ctx, `SELECT price, stock FROM products WHERE id=$1 FOR UPDATE`, productID).Scan(&price, &stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, orders.ProductNotFound(productID)
	}
	if err != nil {
		return decimal.Zero, orders.Infra("lock product", err)
	}
	if stock < qty {
		return decimal.Zero, orders.InsufficientStock(productID)
	}
	return price, nil
}

// Decrement mengurangi stok. Guard `stock >= $2` menjaga invariant stock >= 0
// walaupun caller lupa LockAndPrice.
func (Ledger) Decrement(ctx context.Context, q orders.Querier, productID int64, qty int) error {
	ct, err := q.Exec(ctx, `UPDATE products SET stock = stock - $2 WHERE id=$1 AND stock >= $2`, productID, qty)
	if err != nil {
		return orders.Infra("decrement stock", err)
	}
	if ct.RowsAffected() != 1 {
		return orders.InsufficientStock(productID)
	}
	return nil
}

// Restore mengembalikan stok (jalur cancel).
func (Ledger) Restore(ctx context.Context, q orders.Querier, productID int64, qty int) error {
	ct, err := q.Exec(ctx, `UPDATE products SET stock = stock + $2 WHERE id=$1`, productID, qty)
	if err != nil {
		return orders.Infra("restore stock", err)
	}
	if ct.RowsAffected() != 1 {
		return orders.ProductNotFound(productID)
	}
	return nil
}
