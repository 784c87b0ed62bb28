package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// unmatchedRoute labels requests that no chi route claimed. Raw paths are
// never used as labels.
const unmatchedRoute = "unmatched"

// recorder captures what the handler sent. A handler that never writes
// is reported as 200, which is what net/http sends.
type recorder struct {
	http.ResponseWriter
	code  int
	bytes int
}

func (w *recorder) WriteHeader(code int) {
	if w.code == 0 {
		w.code = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *recorder) Write(p []byte) (int, error) {
	if w.code == 0 {
		w.code = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

func (w *recorder) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *recorder) status() int {
	if w.code == 0 {
		return http.StatusOK
	}
	return w.code
}

// Middleware records in-flight requests, request totals by status, 5xx
// errors, latency and response size. Labels are method and chi route
// pattern.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The router fills a route context it finds instead of making its
		// own, so the pattern is readable here once next returns.
		if chi.RouteContext(r.Context()) == nil {
			r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, chi.NewRouteContext()))
		}

		m.inflight.Inc()
		defer m.inflight.Dec()

		start := time.Now()
		rec := &recorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		m.observe(r, rec, time.Since(start))
	})
}

func (m *ServerMetrics) observe(r *http.Request, rec *recorder, took time.Duration) {
	route := routeLabel(r)
	code := rec.status()

	m.reqTotal.WithLabelValues(r.Method, route, strconv.Itoa(code)).Inc()
	if code >= http.StatusInternalServerError {
		m.errorsTotal.WithLabelValues(r.Method, route).Inc()
	}

	dur := m.reqDur.WithLabelValues(r.Method, route)
	if ex := traceExemplar(r.Context()); ex != nil {
		if eo, ok := dur.(prometheus.ExemplarObserver); ok {
			eo.ObserveWithExemplar(took.Seconds(), ex)
		} else {
			dur.Observe(took.Seconds())
		}
	} else {
		dur.Observe(took.Seconds())
	}

	m.respBytes.WithLabelValues(r.Method, route).Observe(float64(rec.bytes))
}

func routeLabel(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return unmatchedRoute
}

// traceExemplar links a latency sample to its trace when the request was
// sampled.
func traceExemplar(ctx context.Context) prometheus.Labels {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() || !sc.IsSampled() {
		return nil
	}
	return prometheus.Labels{"trace_id": sc.TraceID().String()}
}
