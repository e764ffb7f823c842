package inventory

import (
	"context"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

// Catalog: read-only listing produk.
type Catalog struct{}

func (Catalog) ListProducts(ctx context.Context, q orders.Querier) ([]orders.Product, error) {
	rows, err := q.Query(ctx, `SELECT id, name, price, stock FROM products ORDER BY id`)
	if err != nil {
		return nil, orders.Infra("list products", err)
	}
	defer rows.Close()

	out := []orders.Product{}
	for rows.Next() {
		var p orders.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock); err != nil {
			return nil, orders.Infra("scan product", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, orders.Infra("list products", err)
	}
	return out, nil
}
