package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleView() OrderView {
	return OrderView{
		Order: orders.Order{ID: 5, UserID: 1, Status: orders.StatusPaid, TotalAmount: dec("30.00"),
			CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		Items: []orders.OrderLine{{OrderID: 5, ProductID: 1, Quantity: 3, Price: dec("10.00")}},
	}
}

func TestRedisViews_SetThenGet(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := NewRedisViews(rdb, 5*time.Minute, nil)
	v := sampleView()
	b, err := json.Marshal(v)
	require.NoError(t, err)

	mock.ExpectSet("order_view:5", string(b), 5*time.Minute).SetVal("OK")
	mock.ExpectGet("order_view:5").SetVal(string(b))

	c.Set(context.Background(), v)
	got, ok := c.Get(context.Background(), 5)
	require.True(t, ok)
	assert.Equal(t, orders.StatusPaid, got.Order.Status)
	assert.True(t, got.Order.TotalAmount.Equal(dec("30")))
	require.Len(t, got.Items, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisViews_MissAndErrors(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := NewRedisViews(rdb, time.Minute, nil)

	mock.ExpectGet("order_view:1").RedisNil()
	mock.ExpectGet("order_view:2").SetErr(errors.New("timeout"))
	mock.ExpectGet("order_view:3").SetVal("{broken")
	mock.ExpectDel("order_view:4").SetErr(errors.New("timeout"))

	for id := int64(1); id <= 3; id++ {
		_, ok := c.Get(context.Background(), id)
		assert.False(t, ok, "id %d", id)
	}
	c.Drop(context.Background(), 4) // error is logged, not returned
	assert.NoError(t, mock.ExpectationsWereMet())
}
