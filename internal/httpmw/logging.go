package httpmw

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/linnemanlabs-api/internal/health"
	"github.com/keithlinneman/linnemanlabs-api/internal/log"
	"github.com/keithlinneman/linnemanlabs-api/internal/reqctx"
	"github.com/keithlinneman/linnemanlabs-api/internal/sanitize"
)

// responseWriter records status and size for the access log and opens a
// response.write span on the first write.
type responseWriter struct {
	http.ResponseWriter
	status int
	bytes  int64

	ctx      context.Context
	reqStart time.Time

	writeSpan    trace.Span
	spanStarted  bool
	writeBlocked time.Duration
	writeErr     error
}

func (rw *responseWriter) startWriteSpan() {
	if rw.spanStarted {
		return
	}
	rw.spanStarted = true

	parent := trace.SpanFromContext(rw.ctx)
	if !parent.IsRecording() {
		return
	}
	ttfb := time.Since(rw.reqStart)
	rw.ctx, rw.writeSpan = otel.Tracer("linnemanlabs-api/httpmw").Start(rw.ctx, "response.write",
		trace.WithAttributes(attribute.Float64("http.server.ttfb_seconds", ttfb.Seconds())),
	)
}

func (rw *responseWriter) endWriteSpan() {
	if rw.writeSpan == nil {
		return
	}
	rw.writeSpan.SetAttributes(
		attribute.Int("http.response.status_code", rw.statusCode()),
		attribute.Int64("http.response.body.size", rw.bytes),
		attribute.Float64("http.server.write.block_seconds", rw.writeBlocked.Seconds()),
	)
	if rw.writeErr != nil {
		rw.writeSpan.RecordError(rw.writeErr)
		rw.writeSpan.SetStatus(codes.Error, rw.writeErr.Error())
	}
	rw.writeSpan.End()
}

func (rw *responseWriter) statusCode() int {
	if rw.status == 0 {
		return http.StatusOK
	}
	return rw.status
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.startWriteSpan()
	if rw.status == 0 {
		rw.status = code
	}
	t := time.Now()
	rw.ResponseWriter.WriteHeader(code)
	rw.writeBlocked += time.Since(t)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.startWriteSpan()
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	t := time.Now()
	n, err := rw.ResponseWriter.Write(b)
	rw.writeBlocked += time.Since(t)
	rw.bytes += int64(n)
	if err != nil && rw.writeErr == nil {
		rw.writeErr = err
	}
	return n, err
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying ResponseWriter does not implement http.Hijacker")
	}
	return h.Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// WithLogger binds a request logger into the context. correlation_id is
// added by the log handler itself, so it is not repeated here.
func WithLogger(base log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			clientAddr := ClientIPFromContext(ctx)
			scheme := schemeFromRequest(r)

			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.SetAttributes(
					attribute.String("correlation_id", reqctx.CorrelationID(ctx)),
					attribute.String("client.address", clientAddr),
					attribute.String("url.scheme", scheme),
				)
			}

			L := base.With(
				"client.address", clientAddr,
				"http.request.method", r.Method,
				"url.path", sanitize.Text(r.URL.Path),
				"url.scheme", scheme,
			)
			next.ServeHTTP(w, r.WithContext(log.WithContext(ctx, L)))
		})
	}
}

// AccessLog emits "request started" and "request completed" for every
// request, rejections included. Completions with a 5xx status log at warn.
// A panic escaping the handler is reported as a 500 before it continues
// unwinding. Health probes are not logged.
func AccessLog() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isProbePath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			// chi fills a route context it finds, which makes the matched
			// pattern readable here after the handler returns
			if chi.RouteContext(r.Context()) == nil {
				r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, chi.NewRouteContext()))
			}
			ctx := r.Context()
			L := log.FromContext(ctx)

			info, ok := reqctx.From(ctx)
			if !ok {
				info = reqctx.Info{Start: time.Now()}
			}

			startKV := []any{"url.full", sanitize.Text(r.URL.RequestURI())}
			if r.ContentLength > 0 {
				startKV = append(startKV, "http.request.body.size", r.ContentLength)
			}
			L.Info(ctx, "request started", startKV...)

			rw := &responseWriter{ResponseWriter: w, ctx: ctx, reqStart: info.Start}
			completed := func(status int, extra ...any) {
				kv := append([]any{
					"http.response.status_code", status,
					"duration_ms", info.Elapsed().Milliseconds(),
					"http.response.body.size", rw.bytes,
					"http.route", routePattern(r),
				}, extra...)
				if status >= http.StatusInternalServerError {
					L.Warn(ctx, "request completed", kv...)
					return
				}
				L.Info(ctx, "request completed", kv...)
			}

			finished := false
			defer func() {
				if finished {
					return
				}
				p := recover()
				completed(http.StatusInternalServerError, "panic", true)
				if p != nil {
					panic(p)
				}
			}()

			next.ServeHTTP(rw, r)
			finished = true
			rw.endWriteSpan()
			completed(rw.statusCode())
		})
	}
}

func isProbePath(p string) bool { return p == health.ReadyPath || p == health.HealthyPath }

// routePattern prefers the chi pattern so logs and spans stay low cardinality.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return sanitize.Text(r.URL.Path)
}

var knownSchemes = map[string]bool{"http": true, "https": true}

// schemeFromRequest only reports http or https. X-Forwarded-Proto has
// already been stripped by ClientIP unless it came through a trusted proxy.
func schemeFromRequest(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-Proto"); xf != "" {
		first, _, _ := strings.Cut(xf, ",")
		if s := strings.ToLower(strings.TrimSpace(first)); knownSchemes[s] {
			return s
		}
	}
	if r.URL != nil {
		if s := strings.ToLower(r.URL.Scheme); knownSchemes[s] {
			return s
		}
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// Scope tags the request logger and span with the handler name.
func Scope(handler string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = log.WithContext(ctx, log.FromContext(ctx).With("handler", handler))
			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.SetAttributes(attribute.String("app.handler", handler))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
