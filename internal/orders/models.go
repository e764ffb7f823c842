package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID    int64           `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

type Order struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	Status      Status          `json:"status"` // lihat status.go
	TotalAmount decimal.Decimal `json:"total_amount"`
	CreatedAt   time.Time       `json:"created_at"`
}

// OrderLine menyimpan snapshot harga saat order dibuat; tidak pernah di-update.
type OrderLine struct {
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Subtotal = price * quantity.
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type PaymentStatus string

const PaymentSuccess PaymentStatus = "SUCCESS"

type Payment struct {
	OrderID int64           `json:"order_id"`
	Amount  decimal.Decimal `json:"amount"`
	Status  PaymentStatus   `json:"status"`
}

// ItemInput: satu baris permintaan (product_id, quantity).
type ItemInput struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}
