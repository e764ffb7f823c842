// Package fulfillment owns the order transaction: creation against shared
// inventory, payment capture, and idempotent cancellation.
package fulfillment

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"

	kafkax "github.com/ariefcatur/go-order-fulfillment/internal/kafka"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/ariefcatur/go-order-fulfillment/internal/payment"
	"github.com/shopspring/decimal"

	kafkago "github.com/segmentio/kafka-go"
)

const (
	MsgOrderCreated     = "Order created successfully"
	MsgOrderCancelled   = "Order cancelled successfully"
	MsgAlreadyCancelled = "Order already cancelled"
)

// Ledger is the inventory surface used inside a transaction.
type Ledger interface {
	LockAndPrice(ctx context.Context, q orders.Querier, productID int64, qty int) (decimal.Decimal, error)
	Decrement(ctx context.Context, q orders.Querier, productID int64, qty int) error
	Restore(ctx context.Context, q orders.Querier, productID int64, qty int) error
}

type Repository interface {
	InsertOrder(ctx context.Context, q orders.Querier, userID int64, status orders.Status, total decimal.Decimal) (orders.Order, error)
	GetOrder(ctx context.Context, q orders.Querier, orderID int64) (orders.Order, error)
	LockOrder(ctx context.Context, q orders.Querier, orderID int64) (orders.Order, error)
	UpdateStatus(ctx context.Context, q orders.Querier, orderID int64, status orders.Status) error
	InsertLine(ctx context.Context, q orders.Querier, l orders.OrderLine) error
	ListLines(ctx context.Context, q orders.Querier, orderID int64) ([]orders.OrderLine, error)
	InsertPayment(ctx context.Context, q orders.Querier, p orders.Payment) error
}

// DB gives pool-level reads plus scoped transactions.
type DB interface {
	orders.Querier
	orders.Transactor
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type ProductCatalog interface {
	ListProducts(ctx context.Context) ([]orders.Product, error)
	Invalidate(ctx context.Context)
}

type ViewCache interface {
	Get(ctx context.Context, orderID int64) (OrderView, bool)
	Set(ctx context.Context, v OrderView)
	Drop(ctx context.Context, orderID int64)
}

type Deps struct {
	DB       DB
	Ledger   Ledger
	Repo     Repository
	Payments payment.Charger
	Products ProductCatalog
	Events   Publisher // optional
	Views    ViewCache // optional
	Service  string    // nama producer di envelope
	Log      *slog.Logger
}

type Service struct {
	db       DB
	ledger   Ledger
	repo     Repository
	payments payment.Charger
	products ProductCatalog
	events   Publisher
	views    ViewCache
	name     string
	log      *slog.Logger
}

func NewService(d Deps) *Service {
	s := &Service{
		db:       d.DB,
		ledger:   d.Ledger,
		repo:     d.Repo,
		payments: d.Payments,
		products: d.Products,
		events:   d.Events,
		views:    d.Views,
		name:     d.Service,
		log:      d.Log,
	}
	if s.payments == nil {
		s.payments = payment.Simulator{}
	}
	if s.views == nil {
		s.views = noViews{}
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

type CreateOrderInput struct {
	UserID int64
	Items  []orders.ItemInput
}

type CreateOrderResult struct {
	OrderID     int64
	TotalAmount decimal.Decimal
	Message     string
}

type CancelResult struct {
	OrderID          int64
	AlreadyCancelled bool
	Message          string
}

type OrderView struct {
	Order orders.Order       `json:"order"`
	Items []orders.OrderLine `json:"items"`
}

// MaxQuantity is the largest quantity a single order line may carry; it is
// the range of the INTEGER quantity column.
const MaxQuantity = math.MaxInt32

// normalizeItems validates the request, merges duplicate products and sorts by
// product id. The sorted order is the lock order.
func normalizeItems(in CreateOrderInput) ([]orders.ItemInput, error) {
	if in.UserID <= 0 || len(in.Items) == 0 {
		return nil, orders.Validation("Invalid request: user_id and items are required")
	}
	// int64 + batas per item: jumlah gabungan tidak bisa overflow
	qty := make(map[int64]int64, len(in.Items))
	for _, it := range in.Items {
		if it.ProductID <= 0 || it.Quantity <= 0 || it.Quantity > MaxQuantity {
			return nil, orders.Validation("Invalid product_id or quantity")
		}
		qty[it.ProductID] += int64(it.Quantity)
		if qty[it.ProductID] > MaxQuantity {
			return nil, orders.Validation("Invalid quantity for product %d", it.ProductID)
		}
	}
	out := make([]orders.ItemInput, 0, len(qty))
	for id, q := range qty {
		out = append(out, orders.ItemInput{ProductID: id, Quantity: int(q)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

// CreateOrder reserves stock for every line, records the order and its payment,
// and marks it PAID, all in one transaction. Any failure leaves nothing behind.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (CreateOrderResult, error) {
	items, err := normalizeItems(in)
	if err != nil {
		return CreateOrderResult{}, err
	}

	var (
		order orders.Order
		lines []orders.OrderLine
	)
	err = s.db.InTx(ctx, func(q orders.Querier) error {
		// 1) lock semua produk urut id, harga diambil sekali di sini
		lines = make([]orders.OrderLine, len(items))
		total := decimal.Zero
		for i, it := range items {
			price, err := s.ledger.LockAndPrice(ctx, q, it.ProductID, it.Quantity)
			if err != nil {
				return err
			}
			lines[i] = orders.OrderLine{ProductID: it.ProductID, Quantity: it.Quantity, Price: price}
			total = total.Add(lines[i].Subtotal())
		}

		// 2) order CREATED
		o, err := s.repo.InsertOrder(ctx, q, in.UserID, orders.StatusCreated, total)
		if err != nil {
			return err
		}

		// 3) lines + potong stok, pakai harga dari step 1
		for i := range lines {
			lines[i].OrderID = o.ID
			if err := s.repo.InsertLine(ctx, q, lines[i]); err != nil {
				return err
			}
			if err := s.ledger.Decrement(ctx, q, lines[i].ProductID, lines[i].Quantity); err != nil {
				return err
			}
		}

		// 4) payment
		p, err := s.payments.Charge(ctx, o.ID, total)
		if err != nil {
			return err
		}
		if p.Status != orders.PaymentSuccess {
			return orders.ErrPaymentDeclined
		}
		if err := s.repo.InsertPayment(ctx, q, p); err != nil {
			return err
		}

		// 5) CREATED -> PAID
		if !orders.CanTransition(o.Status, orders.StatusPaid) {
			return orders.IllegalTransition(o.Status, orders.StatusPaid)
		}
		if err := s.repo.UpdateStatus(ctx, q, o.ID, orders.StatusPaid); err != nil {
			return err
		}
		o.Status = orders.StatusPaid
		order = o
		return nil
	})
	if err != nil {
		s.logFailure("create order failed", err, "user_id", in.UserID)
		return CreateOrderResult{}, err
	}

	s.log.Info("order created", "order_id", order.ID, "user_id", order.UserID, "total", order.TotalAmount.StringFixed(2))
	s.invalidateProducts(ctx)
	s.publish(ctx, orders.EventOrderPaid, order.ID, orders.OrderPaidPayload{
		OrderID:     order.ID,
		UserID:      order.UserID,
		Items:       toItemPrices(lines),
		TotalAmount: order.TotalAmount,
	})

	return CreateOrderResult{OrderID: order.ID, TotalAmount: order.TotalAmount, Message: MsgOrderCreated}, nil
}

// errAlreadyCancelled aborts the transaction without side effects; CancelOrder
// turns it into a success.
var errAlreadyCancelled = errors.New("already cancelled")

// CancelOrder restores stock for a CREATED order and marks it CANCELLED.
// Cancelling a CANCELLED order is a no-op success; a PAID order is a conflict.
func (s *Service) CancelOrder(ctx context.Context, orderID int64) (CancelResult, error) {
	if orderID <= 0 {
		return CancelResult{}, orders.Validation("invalid order id")
	}

	var restored []orders.OrderLine
	err := s.db.InTx(ctx, func(q orders.Querier) error {
		o, err := s.repo.LockOrder(ctx, q, orderID)
		if err != nil {
			return err
		}

		switch o.Status {
		case orders.StatusCancelled:
			return errAlreadyCancelled
		case orders.StatusPaid:
			return orders.ErrOrderPaid
		}
		if !orders.CanTransition(o.Status, orders.StatusCancelled) {
			return orders.IllegalTransition(o.Status, orders.StatusCancelled)
		}

		// ListLines sudah urut product_id, jadi lock order sama dengan create
		lines, err := s.repo.ListLines(ctx, q, orderID)
		if err != nil {
			return err
		}
		for _, l := range lines {
			if err := s.ledger.Restore(ctx, q, l.ProductID, l.Quantity); err != nil {
				return err
			}
		}
		if err := s.repo.UpdateStatus(ctx, q, orderID, orders.StatusCancelled); err != nil {
			return err
		}
		restored = lines
		return nil
	})
	if errors.Is(err, errAlreadyCancelled) {
		return CancelResult{OrderID: orderID, AlreadyCancelled: true, Message: MsgAlreadyCancelled}, nil
	}
	if err != nil {
		s.logFailure("cancel order failed", err, "order_id", orderID)
		return CancelResult{}, err
	}

	s.log.Info("order cancelled", "order_id", orderID, "lines", len(restored))
	s.views.Drop(ctx, orderID)
	s.invalidateProducts(ctx)
	s.publish(ctx, orders.EventOrderCancelled, orderID, orders.OrderCancelledPayload{
		OrderID:  orderID,
		Restored: toItemQty(restored),
	})

	return CancelResult{OrderID: orderID, Message: MsgOrderCancelled}, nil
}

// GetOrder returns the order with its lines, read-through the view cache.
func (s *Service) GetOrder(ctx context.Context, orderID int64) (OrderView, error) {
	if orderID <= 0 {
		return OrderView{}, orders.ErrOrderNotFound
	}
	if v, ok := s.views.Get(ctx, orderID); ok {
		return v, nil
	}

	o, err := s.repo.GetOrder(ctx, s.db, orderID)
	if err != nil {
		return OrderView{}, err
	}
	lines, err := s.repo.ListLines(ctx, s.db, orderID)
	if err != nil {
		return OrderView{}, err
	}
	v := OrderView{Order: o, Items: lines}
	// Hanya view terminal yang di-cache. View CREATED bisa ditulis setelah Drop
	// milik cancel yang berjalan bersamaan dan bertahan selama TTL.
	if o.Status.Terminal() {
		s.views.Set(ctx, v)
	}
	return v, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]orders.Product, error) {
	return s.products.ListProducts(ctx)
}

func (s *Service) invalidateProducts(ctx context.Context) {
	if s.products != nil {
		s.products.Invalidate(ctx)
	}
}

// publish bersifat best-effort setelah commit; gagal publish tidak mengubah hasil request.
func (s *Service) publish(ctx context.Context, eventType string, orderID int64, payload any) {
	if s.events == nil {
		return
	}
	env, err := orders.NewEnvelope(eventType, s.name, orders.TraceID(ctx), orderID, payload)
	if err != nil {
		s.log.Error("build event failed", "event", eventType, "order_id", orderID, "err", err)
		return
	}
	s.events.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(env), kafkax.EventHeaders(eventType)...)
}

func (s *Service) logFailure(msg string, err error, args ...any) {
	args = append(args, "kind", orders.KindOf(err), "code", orders.CodeOf(err), "err", err)
	if orders.KindOf(err) == orders.KindInfrastructure {
		s.log.Error(msg, args...)
		return
	}
	s.log.Info(msg, args...)
}

func toItemPrices(lines []orders.OrderLine) []orders.ItemPrice {
	out := make([]orders.ItemPrice, 0, len(lines))
	for _, l := range lines {
		out = append(out, orders.ItemPrice{ProductID: l.ProductID, Quantity: l.Quantity, Price: l.Price})
	}
	return out
}

func toItemQty(lines []orders.OrderLine) []orders.ItemQty {
	out := make([]orders.ItemQty, 0, len(lines))
	for _, l := range lines {
		out = append(out, orders.ItemQty{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return out
}

type noViews struct{}

func (noViews) Get(context.Context, int64) (OrderView, bool) { return OrderView{}, false }
func (noViews) Set(context.Context, OrderView)               {}
func (noViews) Drop(context.Context, int64)                  {}
