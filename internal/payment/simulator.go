// Package payment isolates the capture step so a real gateway can replace it
// without changing the order transaction.
package payment

import (
	"context"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/shopspring/decimal"
)

type Charger interface {
	Charge(ctx context.Context, orderID int64, amount decimal.Decimal) (orders.Payment, error)
}

// Simulator always succeeds and has no side effects.
type Simulator struct{}

func (Simulator) Charge(_ context.Context, orderID int64, amount decimal.Decimal) (orders.Payment, error) {
	return orders.Payment{OrderID: orderID, Amount: amount, Status: orders.PaymentSuccess}, nil
}
