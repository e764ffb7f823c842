package orders

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := InsufficientStock(7)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.NotErrorIs(t, err, ErrOrderPaid)
	assert.Equal(t, "Insufficient stock for product 7", err.Error())

	wrapped := fmt.Errorf("create order: %w", ProductNotFound(3))
	assert.ErrorIs(t, wrapped, ErrProductNotFound)
	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.Equal(t, CodeProductNotFound, CodeOf(wrapped))
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{nil, ""},
		{Validation("bad %s", "input"), KindValidation},
		{ErrOrderNotFound, KindNotFound},
		{ErrOrderPaid, KindConflict},
		{IllegalTransition(StatusPaid, StatusCancelled), KindConflict},
		{errors.New("unexpected"), KindInfrastructure},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, KindOf(tc.err), "%v", tc.err)
	}
}

func TestInfraClassifiesPostgresErrors(t *testing.T) {
	for _, code := range []string{"40001", "40P01", "55P03"} {
		err := Infra("lock product", &pgconn.PgError{Code: code})
		assert.Equal(t, KindInfrastructure, KindOf(err), code)
		assert.Equal(t, CodeTxAborted, CodeOf(err), code)
		assert.True(t, IsRetryable(err), code)
	}

	err := Infra("insert order", &pgconn.PgError{Code: "23505"})
	assert.Equal(t, CodeStorageUnavailable, CodeOf(err))
	assert.False(t, IsRetryable(err))

	var pgErr *pgconn.PgError
	assert.ErrorAs(t, err, &pgErr, "cause stays reachable")
}

func TestInfraPassesThroughDomainErrors(t *testing.T) {
	assert.Nil(t, Infra("noop", nil))
	assert.Same(t, ErrOrderNotFound, Infra("get order", ErrOrderNotFound))
}

func TestCodeOfContextErrors(t *testing.T) {
	assert.Equal(t, CodeTxAborted, CodeOf(context.DeadlineExceeded))
	assert.Equal(t, CodeStorageUnavailable, CodeOf(errors.New("x")))
	assert.False(t, IsRetryable(context.Canceled))
}
