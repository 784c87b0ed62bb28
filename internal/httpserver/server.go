package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/linnemanlabs-api/internal/apierr"
	"github.com/keithlinneman/linnemanlabs-api/internal/health"
	"github.com/keithlinneman/linnemanlabs-api/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-api/internal/log"
	"github.com/keithlinneman/linnemanlabs-api/internal/xerrors"
)

const DefaultPort = 8080

// NewHandler builds an HTTP handler with routes + middleware
// main() owns *http.Server so it can do graceful shutdown
func NewHandler(opts *Options) http.Handler {
	if opts == nil {
		opts = &Options{}
	}
	L := opts.Logger
	if L == nil {
		L = log.Nop()
	}

	r := chi.NewRouter()

	r.Use(middleware.Compress(5, "application/json"))

	// Annotate the server span with http.route once chi has matched
	r.Use(httpmw.AnnotateHTTPRoute)

	if opts.Health != nil || opts.Readiness != nil {
		health.Routes{Liveness: opts.Health, Readiness: opts.Readiness}.RegisterRoutes(r)
	}

	if opts.APIRoutes != nil {
		opts.APIRoutes(r)
	}

	// unknown paths and methods get the same JSON error shape as handler failures
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apierr.Write(w, r, apierr.NewNotFound("Not Found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		apierr.Write(w, r, apierr.NewMethodNotAllowed())
	})

	otelMW := func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(
			next,
			"http.server",
			otelhttp.WithFilter(func(r *http.Request) bool {
				// probes are polled constantly and carry no signal
				return r.URL.Path != health.HealthyPath && r.URL.Path != health.ReadyPath
			}),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				// AnnotateHTTPRoute will rename the span later to the final route pattern
				return r.Method + " " + r.URL.Path
			}),
			otelhttp.WithPublicEndpointFn(func(r *http.Request) bool { return true }),
		)
	}

	var recoverMW httpmw.Middleware
	if opts.UseRecoverMW {
		recoverMW = httpmw.Recover(L, opts.OnPanic)
	}

	// outermost first
	h := httpmw.Chain(r,
		// Security headers outermost to ensure they are served on every response
		httpmw.SecurityHeaders,
		// Client IP resolution (must be before correlation, logging and the limiter)
		httpmw.ClientIPWithOptions(httpmw.ClientIPOptions{TrustedHops: opts.TrustedHops}),
		// Correlation id and request start, set before anything can respond
		httpmw.Correlation(L),
		httpmw.WithLogger(L),
		httpmw.AccessLog(),
		opts.MetricsMW,
		// inside access log and metrics so a recovered panic is still seen as a 500
		recoverMW,
		otelMW,
		// add trace-id headers to any requests with a recording trace
		httpmw.TraceResponseHeaders(httpmw.DefaultTraceHeader, httpmw.DefaultSpanHeader),
	)

	return h
}

// Server timeout defaults. Reads allow for a full-size upload on a slow link.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 30 * time.Second
	DefaultWriteTimeout      = 30 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20 // 1 MB
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start public HTTP server
// Returns stop(ctx) for graceful shutdown; in-flight requests get until ctx expires.
func Start(ctx context.Context, opts *Options) (func(context.Context) error, error) {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}
	addr := fmt.Sprintf(":%d", port)

	srv := NewServer(addr, NewHandler(opts))

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp4", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "could not listen for http on addr=%v", addr)
	}

	go func() {
		opts.Logger.Info(ctx, "http server listening", "addr", addr)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			opts.Logger.Error(ctx, err, "http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			opts.Logger.Info(sctx, "http server shutting down")
			retErr = srv.Shutdown(sctx)
		})
		return retErr
	}
	return stop, nil
}
