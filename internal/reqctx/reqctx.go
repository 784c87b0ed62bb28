// Package reqctx carries the per-request context value created at ingress:
// the correlation id, the monotonic start time and the resolved client address.
//
// The value is stored in the request's context.Context, so it is scoped to
// that request only and disappears with it. Nothing here is goroutine-local
// or global, which is what keeps ids from leaking between concurrent requests.
package reqctx

import (
	"context"
	"time"
)

type ctxKey struct{}

// Info is immutable once attached; callers get a copy.
type Info struct {
	CorrelationID string
	Start         time.Time
	ClientIP      string
}

// Elapsed returns the time since Start using the monotonic clock reading
// captured by time.Now at ingress.
func (i Info) Elapsed() time.Duration {
	if i.Start.IsZero() {
		return 0
	}
	return time.Since(i.Start)
}

// With attaches info to ctx. An existing value is not overwritten.
func With(ctx context.Context, info Info) context.Context {
	if _, ok := From(ctx); ok {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, info)
}

// From returns the Info stored in ctx.
func From(ctx context.Context) (Info, bool) {
	if ctx == nil {
		return Info{}, false
	}
	info, ok := ctx.Value(ctxKey{}).(Info)
	return info, ok
}

// CorrelationID returns the correlation id in ctx, or "" if none.
func CorrelationID(ctx context.Context) string {
	info, _ := From(ctx)
	return info.CorrelationID
}
