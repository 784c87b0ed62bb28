package log

import (
	"context"
)

type ctxKey struct{}

// WithContext returns a child of ctx carrying l.
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the request-scoped Logger in ctx. Code running outside
// the middleware chain (background sweeps, tests) gets a Nop logger so callers
// never need a nil check.
func FromContext(ctx context.Context) Logger {
	if ctx == nil {
		return Nop()
	}
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok && l != nil {
		return l
	}
	return Nop()
}
