package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultTraceHeader = "X-Trace-Id"
	DefaultSpanHeader  = "X-Span-Id"
)

// TraceResponseHeaders echoes the active trace and span ids so a client
// report can be matched to a trace as well as a correlation id. Must run
// inside otelhttp.
func TraceResponseHeaders(traceHeader, spanHeader string) Middleware {
	if traceHeader == "" {
		traceHeader = DefaultTraceHeader
	}
	if spanHeader == "" {
		spanHeader = DefaultSpanHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
				w.Header().Set(traceHeader, sc.TraceID().String())
				w.Header().Set(spanHeader, sc.SpanID().String())
			}
			next.ServeHTTP(w, r)
		})
	}
}
