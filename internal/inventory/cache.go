package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/ariefcatur/go-order-fulfillment/internal/redisx"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// flightTimeout membatasi satu load bersama; tidak ikut ctx caller pertama.
const flightTimeout = 5 * time.Second

// ProductLoader reads the authoritative product list.
type ProductLoader func(ctx context.Context) ([]orders.Product, error)

// CachedCatalog is a cache-aside view of the product list in Redis.
// Redis is optional: any cache error falls through to the loader.
type CachedCatalog struct {
	rdb   redis.Cmdable
	load  ProductLoader
	ttl   time.Duration
	log   *slog.Logger
	group singleflight.Group
}

func NewCachedCatalog(rdb redis.Cmdable, load ProductLoader, ttl time.Duration, log *slog.Logger) *CachedCatalog {
	if log == nil {
		log = slog.Default()
	}
	return &CachedCatalog{rdb: rdb, load: load, ttl: ttl, log: log}
}

func (c *CachedCatalog) ListProducts(ctx context.Context) ([]orders.Product, error) {
	if ps, ok := c.cached(ctx); ok {
		return ps, nil
	}

	// singleflight: banyak miss bersamaan cukup satu query ke DB.
	// Hasilnya dibagi ke semua caller, jadi cancel dari satu caller tidak boleh
	// menggagalkan yang lain.
	v, err, _ := c.group.Do(redisx.KeyProductList, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flightTimeout)
		defer cancel()

		if ps, ok := c.cached(fctx); ok {
			return ps, nil
		}
		ps, err := c.load(fctx)
		if err != nil {
			return nil, err
		}
		if b, err := json.Marshal(ps); err == nil {
			if err := c.rdb.Set(fctx, redisx.KeyProductList, string(b), c.ttl).Err(); err != nil {
				c.log.Warn("product cache set failed", "err", err)
			}
		}
		return ps, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]orders.Product), nil
}

func (c *CachedCatalog) cached(ctx context.Context) ([]orders.Product, bool) {
	s, err := c.rdb.Get(ctx, redisx.KeyProductList).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("product cache get failed", "err", err)
		}
		return nil, false
	}
	var ps []orders.Product
	if err := json.Unmarshal([]byte(s), &ps); err != nil {
		return nil, false
	}
	return ps, true
}

// Invalidate dipanggil setelah stok berubah (commit create / cancel).
func (c *CachedCatalog) Invalidate(ctx context.Context) {
	if err := c.rdb.Del(ctx, redisx.KeyProductList).Err(); err != nil {
		c.log.Warn("product cache invalidate failed", "err", err)
	}
}
