package orders

import "context"

type traceKey struct{}

// WithTraceID menempelkan request id supaya ikut tercatat di event envelope.
func WithTraceID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, traceKey{}, id)
}

func TraceID(ctx context.Context) string {
	s, _ := ctx.Value(traceKey{}).(string)
	return s
}
