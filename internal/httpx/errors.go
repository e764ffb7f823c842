package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

type errorResp struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps an error to an HTTP status. Mutations report every
// client-side failure as 400; reads report a missing resource as 404.
func statusFor(err error, read bool) int {
	switch orders.KindOf(err) {
	case orders.KindValidation, orders.KindConflict:
		return http.StatusBadRequest
	case orders.KindNotFound:
		if read {
			return http.StatusNotFound
		}
		return http.StatusBadRequest
	}
	if orders.IsRetryable(err) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error, read bool) {
	msg := err.Error()
	if orders.KindOf(err) == orders.KindInfrastructure {
		// detail storage tidak bocor ke client
		msg = "internal error"
		if orders.IsRetryable(err) {
			msg = "temporarily unavailable, retry the request"
		}
	}
	writeJSON(w, statusFor(err, read), errorResp{Error: msg, Code: orders.CodeOf(err)})
}
