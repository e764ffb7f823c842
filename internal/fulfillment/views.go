package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-order-fulfillment/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// RedisViews caches OrderView JSON under order_view:{id}.
type RedisViews struct {
	rdb redis.Cmdable
	ttl time.Duration
	log *slog.Logger
}

func NewRedisViews(rdb redis.Cmdable, ttl time.Duration, log *slog.Logger) *RedisViews {
	if log == nil {
		log = slog.Default()
	}
	return &RedisViews{rdb: rdb, ttl: ttl, log: log}
}

func viewKey(orderID int64) string { return fmt.Sprintf(redisx.KeyOrderView, orderID) }

func (c *RedisViews) Get(ctx context.Context, orderID int64) (OrderView, bool) {
	s, err := c.rdb.Get(ctx, viewKey(orderID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("order view cache get failed", "order_id", orderID, "err", err)
		}
		return OrderView{}, false
	}
	var v OrderView
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return OrderView{}, false
	}
	return v, true
}

func (c *RedisViews) Set(ctx context.Context, v OrderView) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, viewKey(v.Order.ID), string(b), c.ttl).Err(); err != nil {
		c.log.Warn("order view cache set failed", "order_id", v.Order.ID, "err", err)
	}
}

func (c *RedisViews) Drop(ctx context.Context, orderID int64) {
	if err := c.rdb.Del(ctx, viewKey(orderID)).Err(); err != nil {
		c.log.Warn("order view cache drop failed", "order_id", orderID, "err", err)
	}
}
