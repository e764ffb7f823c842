// Package projector consumes order lifecycle events and keeps the Redis read
// side (order status, order views, product list) in step with Postgres.
package projector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkax "github.com/ariefcatur/go-order-fulfillment/internal/kafka"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/ariefcatur/go-order-fulfillment/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

// DedupScope is the service segment of dedup keys written by the projector.
const DedupScope = "projector"

// StatusRecord is the value stored under order_status:{id}. Dibaca oleh
// konsumen di luar service ini, jadi nama field JSON adalah kontrak.
type StatusRecord struct {
	Status    orders.Status `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
	EventID   string        `json:"event_id"`
}

type Service struct {
	rdb redis.Cmdable
	log *slog.Logger
}

func NewService(rdb redis.Cmdable, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{rdb: rdb, log: log}
}

// HandleOrderEvent dipasang sebagai handler consumer. Return nil = offset boleh di-commit.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	// 1) decode envelope
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// pesan rusak tidak akan pernah sukses, jangan blok partisi
		s.log.Warn("skip undecodable event", "offset", m.Offset, "err", err)
		return nil
	}

	var status orders.Status
	switch env.EventType {
	case orders.EventOrderPaid:
		status = orders.StatusPaid
	case orders.EventOrderCancelled:
		status = orders.StatusCancelled
	default:
		return nil // ignore
	}

	p, err := kafkax.UnwrapPayload[orders.OrderEventPayload](env.Payload)
	if err != nil {
		s.log.Warn("skip event with bad payload", "event_id", env.EventID, "err", err)
		return nil
	}

	// 2) dedup via Redis (pakai event_id)
	dkey := fmt.Sprintf(redisx.KeyDedup, DedupScope, env.EventID)
	first, err := redisx.Claim(ctx, s.rdb, dkey, redisx.TTLDedup)
	if err != nil {
		return fmt.Errorf("claim %s: %w", env.EventID, err)
	}
	if !first {
		s.log.Debug("duplicate event", "event_id", env.EventID)
		return nil
	}

	// 3) proyeksi; kalau gagal, lepas klaim supaya redelivery diproses ulang
	if err := s.project(ctx, p.OrderID, status, env); err != nil {
		if delErr := s.rdb.Del(ctx, dkey).Err(); delErr != nil {
			s.log.Warn("release dedup claim", "key", dkey, "err", delErr)
		}
		return err
	}

	s.log.Info("order projected", "order_id", p.OrderID, "status", status, "event_id", env.EventID)
	return nil
}

func (s *Service) project(ctx context.Context, orderID int64, status orders.Status, env orders.Envelope) error {
	rec, err := json.Marshal(StatusRecord{Status: status, UpdatedAt: env.OccurredAt, EventID: env.EventID})
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID), string(rec), redisx.TTLOrderStatus).Err(); err != nil {
		return fmt.Errorf("set order status: %w", err)
	}

	keys := []string{redisx.KeyProductList}
	if status == orders.StatusCancelled {
		keys = append(keys, fmt.Sprintf(redisx.KeyOrderView, orderID))
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate caches: %w", err)
	}
	return nil
}
