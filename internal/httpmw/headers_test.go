package httpmw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

var noop = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SecurityHeaders(noop).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Referrer-Policy":         "no-referrer",
		"Cache-Control":           "no-store",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
	}
	for k, v := range want {
		if got := w.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
	if w.Header().Get("Strict-Transport-Security") == "" {
		t.Error("HSTS missing")
	}
}

func TestTraceResponseHeaders(t *testing.T) {
	tp, _ := newTracer(t)
	ctx, span := tp.Tracer("test").Start(context.Background(), "req")
	defer span.End()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	TraceResponseHeaders("", "")(noop).ServeHTTP(w, r)

	sc := span.SpanContext()
	if w.Header().Get(DefaultTraceHeader) != sc.TraceID().String() {
		t.Fatalf("trace header = %q", w.Header().Get(DefaultTraceHeader))
	}
	if w.Header().Get(DefaultSpanHeader) != sc.SpanID().String() {
		t.Fatalf("span header = %q", w.Header().Get(DefaultSpanHeader))
	}
}

func TestTraceResponseHeaders_CustomNamesNoSpan(t *testing.T) {
	w := httptest.NewRecorder()
	TraceResponseHeaders("X-T", "X-S")(noop).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Header().Get("X-T") != "" || w.Header().Get("X-S") != "" {
		t.Fatal("no headers expected without a span")
	}
}
