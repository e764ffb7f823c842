package orders

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventOrderPaid      = "OrderPaid"
	EventOrderCancelled = "OrderCancelled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "order-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope membungkus payload menjadi envelope v1.
func NewEnvelope(eventType, producer, traceID string, orderID int64, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: strconv.FormatInt(orderID, 10),
		Payload:       b,
	}, nil
}

// ---- Payload tipe per event ----

type ItemQty struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type ItemPrice struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type OrderPaidPayload struct {
	OrderID     int64           `json:"order_id"`
	UserID      int64           `json:"user_id"`
	Items       []ItemPrice     `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type OrderCancelledPayload struct {
	OrderID  int64     `json:"order_id"`
	Restored []ItemQty `json:"restored"`
}

// OrderEventPayload is the subset every lifecycle payload carries.
type OrderEventPayload struct {
	OrderID int64 `json:"order_id"`
}
