package httpx

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-order-fulfillment/internal/fulfillment"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/go-chi/chi/v5"
)

// OrderService is what the HTTP layer needs from fulfillment.Service.
type OrderService interface {
	CreateOrder(ctx context.Context, in fulfillment.CreateOrderInput) (fulfillment.CreateOrderResult, error)
	CancelOrder(ctx context.Context, orderID int64) (fulfillment.CancelResult, error)
	GetOrder(ctx context.Context, orderID int64) (fulfillment.OrderView, error)
	ListProducts(ctx context.Context) ([]orders.Product, error)
}

type OrdersHandler struct {
	Orders OrderService
	Log    *slog.Logger
}

type CreateOrderReq struct {
	UserID int64              `json:"user_id"`
	Items  []orders.ItemInput `json:"items"`
}

type CreateOrderResp struct {
	Message     string `json:"message"`
	OrderID     int64  `json:"order_id"`
	TotalAmount string `json:"total_amount"`
}

type MessageResp struct {
	Message string `json:"message"`
	OrderID int64  `json:"order_id,omitempty"`
}

type OrderDTO struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Status      string    `json:"status"`
	TotalAmount string    `json:"total_amount"`
	CreatedAt   time.Time `json:"created_at"`
}

type OrderItemDTO struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
}

type OrderViewResp struct {
	Order OrderDTO       `json:"order"`
	Items []OrderItemDTO `json:"items"`
}

type ProductDTO struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Price string `json:"price"`
	Stock int    `json:"stock"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/orders", h.createOrder)
		r.Get("/orders/{id}", h.getOrder)
		r.Put("/orders/{id}/cancel", h.cancelOrder)
		r.Get("/products", h.listProducts)
	})
}

func (h *OrdersHandler) log() *slog.Logger {
	if h.Log == nil {
		return slog.Default()
	}
	return h.Log
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, orders.Validation("Invalid request: malformed JSON body"), false)
		return
	}

	res, err := h.Orders.CreateOrder(r.Context(), fulfillment.CreateOrderInput{UserID: req.UserID, Items: req.Items})
	if err != nil {
		writeError(w, err, false)
		return
	}
	writeJSON(w, http.StatusCreated, CreateOrderResp{
		Message:     res.Message,
		OrderID:     res.OrderID,
		TotalAmount: res.TotalAmount.StringFixed(2),
	})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(r)
	if !ok {
		writeError(w, orders.ErrOrderNotFound, true)
		return
	}
	v, err := h.Orders.GetOrder(r.Context(), id)
	if err != nil {
		if orders.KindOf(err) == orders.KindInfrastructure {
			h.log().Error("get order failed", "order_id", id, "err", err)
		}
		writeError(w, err, true)
		return
	}
	writeJSON(w, http.StatusOK, toViewResp(v))
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(r)
	if !ok {
		writeError(w, orders.Validation("invalid order id"), false)
		return
	}
	res, err := h.Orders.CancelOrder(r.Context(), id)
	if err != nil {
		writeError(w, err, false)
		return
	}
	writeJSON(w, http.StatusOK, MessageResp{Message: res.Message, OrderID: res.OrderID})
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Orders.ListProducts(ctx)
	if err != nil {
		h.log().Error("list products failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: "internal error", Code: orders.CodeOf(err)})
		return
	}
	out := make([]ProductDTO, 0, len(ps))
	for _, p := range ps {
		out = append(out, ProductDTO{ID: p.ID, Name: p.Name, Price: p.Price.StringFixed(2), Stock: p.Stock})
	}
	writeJSON(w, http.StatusOK, out)
}

func orderID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func toViewResp(v fulfillment.OrderView) OrderViewResp {
	items := make([]OrderItemDTO, 0, len(v.Items))
	for _, l := range v.Items {
		items = append(items, OrderItemDTO{ProductID: l.ProductID, Quantity: l.Quantity, Price: l.Price.StringFixed(2)})
	}
	return OrderViewResp{
		Order: OrderDTO{
			ID:          v.Order.ID,
			UserID:      v.Order.UserID,
			Status:      string(v.Order.Status),
			TotalAmount: v.Order.TotalAmount.StringFixed(2),
			CreatedAt:   v.Order.CreatedAt,
		},
		Items: items,
	}
}
