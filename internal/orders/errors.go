package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind is the closed set of failure classes callers branch on.
type Kind string

const (
	KindValidation     Kind = "VALIDATION"
	KindNotFound       Kind = "NOT_FOUND"
	KindConflict       Kind = "CONFLICT"
	KindInfrastructure Kind = "INFRASTRUCTURE"
)

// Stable error codes returned to clients next to the message.
const (
	CodeInvalidRequest     = "invalid_request"
	CodeProductNotFound    = "product_not_found"
	CodeOrderNotFound      = "order_not_found"
	CodeInsufficientStock  = "insufficient_stock"
	CodeOrderPaid          = "order_paid"
	CodeIllegalTransition  = "illegal_transition"
	CodePaymentDeclined    = "payment_declined"
	CodeStorageUnavailable = "storage_unavailable"
	CodeTxAborted          = "tx_aborted"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Retryable reports whether the whole request can be safely resent.
// Only aborted transactions (deadlock, serialization, lock timeout) qualify.
func (e *Error) Retryable() bool {
	return e.Code == CodeTxAborted
}

var (
	ErrInsufficientStock = &Error{Kind: KindConflict, Code: CodeInsufficientStock, Message: "insufficient stock"}
	ErrOrderPaid         = &Error{Kind: KindConflict, Code: CodeOrderPaid, Message: "Paid orders cannot be cancelled"}
	ErrOrderNotFound     = &Error{Kind: KindNotFound, Code: CodeOrderNotFound, Message: "Order not found"}
	ErrProductNotFound   = &Error{Kind: KindNotFound, Code: CodeProductNotFound, Message: "product not found"}
	ErrPaymentDeclined   = &Error{Kind: KindConflict, Code: CodePaymentDeclined, Message: "payment declined"}
)

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: CodeInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

func ProductNotFound(productID int64) *Error {
	return &Error{Kind: KindNotFound, Code: CodeProductNotFound, Message: fmt.Sprintf("Product %d not found", productID)}
}

func InsufficientStock(productID int64) *Error {
	return &Error{Kind: KindConflict, Code: CodeInsufficientStock, Message: fmt.Sprintf("Insufficient stock for product %d", productID)}
}

func IllegalTransition(from, to Status) *Error {
	return &Error{Kind: KindConflict, Code: CodeIllegalTransition, Message: fmt.Sprintf("cannot move order from %s to %s", from, to)}
}

// Postgres SQLSTATEs yang berarti transaksi dibatalkan server dan aman diulang.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// Infra wraps a storage failure. Errors already carrying a Kind pass through.
func Infra(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return &Error{Kind: KindInfrastructure, Code: CodeTxAborted, Message: op + ": transaction aborted, retry", Err: err}
		}
	}
	return &Error{Kind: KindInfrastructure, Code: CodeStorageUnavailable, Message: op, Err: err}
}

// KindOf classifies err; anything unrecognized is infrastructure.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfrastructure
}

// CodeOf returns the stable code for err.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CodeTxAborted
	}
	return CodeStorageUnavailable
}

// IsRetryable reports whether err is a retryable infrastructure failure.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}
