package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keithlinneman/linnemanlabs-api/internal/health"
	"github.com/keithlinneman/linnemanlabs-api/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-api/internal/log"
)

// withRoutes returns options mounting the given route table.
func withRoutes(mount func(chi.Router)) *Options {
	return &Options{Logger: log.Nop(), APIRoutes: mount}
}

func send(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	return send(h, httptest.NewRequest(http.MethodGet, path, http.NoBody))
}

func panicRoute(r chi.Router) {
	r.Get("/panic", func(http.ResponseWriter, *http.Request) { panic("handler exploded") })
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestNewHandler_SecurityHeadersOnEveryResponse(t *testing.T) {
	h := NewHandler(withRoutes(func(r chi.Router) {
		r.Post("/data", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusCreated) })
	}))

	for _, rec := range []*httptest.ResponseRecorder{
		get(h, "/missing"),
		send(h, httptest.NewRequest(http.MethodPost, "/data", http.NoBody)),
		send(h, httptest.NewRequest(http.MethodPut, "/data", http.NoBody)),
	} {
		for _, hdr := range []string{
			"Strict-Transport-Security",
			"Content-Security-Policy",
			"X-Content-Type-Options",
			"X-Frame-Options",
			"Referrer-Policy",
			"Cross-Origin-Resource-Policy",
		} {
			assert.NotEmpty(t, rec.Header().Get(hdr), "%s on %d", hdr, rec.Code)
		}
	}
}

func TestNewHandler_CorrelationID(t *testing.T) {
	h := NewHandler(nil)

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		id := get(h, "/").Header().Get(httpmw.CorrelationHeader)
		require.Len(t, id, 36)
		require.False(t, seen[id], "duplicate correlation id %q", id)
		seen[id] = true
	}

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set(httpmw.CorrelationHeader, "upstream-abc-123")
	assert.Equal(t, "upstream-abc-123", send(h, req).Header().Get(httpmw.CorrelationHeader))
}

func TestNewHandler_UnknownRoutesAreJSON(t *testing.T) {
	h := NewHandler(withRoutes(func(r chi.Router) {
		r.Get("/users", func(http.ResponseWriter, *http.Request) {})
	}))

	rec := get(h, "/nonexistent")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "/nonexistent", body["path"])

	rec = send(h, httptest.NewRequest(http.MethodDelete, "/users", http.NoBody))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Body.String(), "Method Not Allowed")
}

func TestNewHandler_Probes(t *testing.T) {
	tests := []struct {
		name      string
		liveness  health.Probe
		readiness health.Probe
		path      string
		want      int
	}{
		{"healthy", health.Fixed(true, ""), nil, health.HealthyPath, http.StatusOK},
		{"unhealthy", health.Fixed(false, "broken"), nil, health.HealthyPath, http.StatusServiceUnavailable},
		{"not ready", nil, health.Fixed(false, "user store unavailable"), health.ReadyPath, http.StatusServiceUnavailable},
		{"no probes configured", nil, nil, health.ReadyPath, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&Options{Health: tt.liveness, Readiness: tt.readiness})
			assert.Equal(t, tt.want, get(h, tt.path).Code)
		})
	}
}

func TestNewHandler_RecoverMW(t *testing.T) {
	panics := 0
	var metricsSaw int
	opts := withRoutes(panicRoute)
	opts.UseRecoverMW = true
	opts.OnPanic = func() { panics++ }
	opts.MetricsMW = func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			inner := httptest.NewRecorder()
			next.ServeHTTP(inner, r)
			metricsSaw = inner.Code
			w.WriteHeader(inner.Code)
		})
	}

	rec := get(NewHandler(opts), "/panic")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, http.StatusInternalServerError, metricsSaw, "metrics sits outside recover")
	assert.Equal(t, 1, panics)
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
	assert.NotEmpty(t, rec.Header().Get(httpmw.CorrelationHeader))
}

func TestNewHandler_RecoverMWDisabled(t *testing.T) {
	h := NewHandler(withRoutes(panicRoute))
	assert.Panics(t, func() { get(h, "/panic") })
}

func TestNewHandler_ClientIPBehindProxy(t *testing.T) {
	var got string
	opts := withRoutes(func(r chi.Router) {
		r.Get("/ip", func(_ http.ResponseWriter, r *http.Request) {
			got = httpmw.ClientIPFromContext(r.Context())
		})
	})
	opts.TrustedHops = 1

	req := httptest.NewRequest(http.MethodGet, "/ip", http.NoBody)
	req.RemoteAddr = "10.0.0.1:12345"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	send(NewHandler(opts), req)

	assert.Equal(t, "203.0.113.9", got)
}

func TestNewHandler_CompressesJSON(t *testing.T) {
	h := NewHandler(withRoutes(func(r chi.Router) {
		r.Get("/users", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `[`+strings.Repeat(`{"id":1,"name":"Alice"},`, 100)+`{"id":2}]`)
		})
	}))

	req := httptest.NewRequest(http.MethodGet, "/users", http.NoBody)
	req.Header.Set("Accept-Encoding", "gzip")
	assert.Equal(t, "gzip", send(h, req).Header().Get("Content-Encoding"))

	assert.Empty(t, get(h, "/users").Header().Get("Content-Encoding"))
}

func TestNewServer_Timeouts(t *testing.T) {
	srv := NewServer(":8080", http.NotFoundHandler())

	assert.Equal(t, ":8080", srv.Addr)
	assert.Equal(t, DefaultReadHeaderTimeout, srv.ReadHeaderTimeout)
	assert.Equal(t, 30*time.Second, srv.ReadTimeout)
	assert.Equal(t, 30*time.Second, srv.WriteTimeout)
	assert.Equal(t, 60*time.Second, srv.IdleTimeout)
	assert.Equal(t, 1<<20, srv.MaxHeaderBytes)
}

func TestStart_ServesAndShutsDown(t *testing.T) {
	opts := withRoutes(func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "alive") })
	})
	opts.Port = freePort(t)

	ctx := context.Background()
	stop, err := Start(ctx, opts)
	require.NoError(t, err)

	url := fmt.Sprintf("http://127.0.0.1:%d/", opts.Port)
	resp, err := http.Get(url)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "alive", string(body))
	assert.NotEmpty(t, resp.Header.Get(httpmw.CorrelationHeader))

	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, stop(sctx))
	assert.NoError(t, stop(sctx), "stop is idempotent")

	client := http.Client{Timeout: time.Second}
	_, err = client.Get(url)
	assert.Error(t, err)
}

func TestStart_PortConflict(t *testing.T) {
	opts := &Options{Port: freePort(t)}
	ctx := context.Background()

	stop, err := Start(ctx, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = stop(ctx) })

	_, err = Start(ctx, opts)
	require.Error(t, err)
	var opErr *net.OpError
	assert.True(t, errors.As(err, &opErr), "listen error is wrapped, got %v", err)
}
