package redisx

import "time"

const (
	// Cache listing produk: products:all -> JSON []Product
	KeyProductList = "products:all"

	// Cache view order lengkap: order_view:{order_id} -> {"order": ..., "items": [...]}
	KeyOrderView = "order_view:%d"

	// Status terakhir dari projector: order_status:{order_id} -> {"status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%d"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLOrderStatus = 24 * time.Hour
	TTLDedup       = 48 * time.Hour
)
