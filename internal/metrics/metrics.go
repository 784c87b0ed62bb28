package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/linnemanlabs-api/internal/version"
)

type ServerMetrics struct {
	reg                    *prometheus.Registry
	handler                http.Handler
	inflight               prometheus.Gauge
	reqTotal               *prometheus.CounterVec
	reqDur                 *prometheus.HistogramVec
	respBytes              *prometheus.HistogramVec
	httpPanicTotal         prometheus.Counter
	buildInfo              *prometheus.GaugeVec
	ratelimitDeniedTotal   *prometheus.CounterVec
	ratelimitCapacityTotal prometheus.Counter
	ratelimitBuckets       prometheus.GaugeFunc

	errorsTotal *prometheus.CounterVec

	profilingActive prometheus.Gauge

	// domain metrics
	validationFailures *prometheus.CounterVec
	usersCreatedTotal  prometheus.Counter
	uploadsTotal       *prometheus.CounterVec
	uploadBytes        prometheus.Histogram
}

// New builds a private registry with the Go and process collectors, the
// HTTP server metrics and the API's own counters. Labels are limited to
// method, route pattern and status so series counts stay bounded.
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	m := &ServerMetrics{reg: reg}

	// http server
	m.inflight = f.NewGauge(prometheus.GaugeOpts{
		Name: "http_inflight_requests",
		Help: "Current number of in-flight HTTP requests",
	})
	m.reqTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests by method, route, and status",
	}, []string{"method", "route", "status"})
	m.reqDur = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Request latency by method and route",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"method", "route"})
	m.respBytes = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_response_size_bytes",
		Help:    "Response size by method and route",
		Buckets: prometheus.ExponentialBuckets(256, 4, 8),
	}, []string{"method", "route"})
	m.errorsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "http_errors_total",
		Help: "Total 5xx responses by method and route",
	}, []string{"method", "route"})
	m.httpPanicTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "http_panic_total",
		Help: "Total panics recovered by the HTTP servers",
	})

	// rate limiting
	m.ratelimitDeniedTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_rate_limited_total",
		Help: "Requests rejected by the rate limiter, by route",
	}, []string{"route"})
	m.ratelimitCapacityTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "http_requests_rate_limited_capacity_total",
		Help: "Times the rate limiter hit its bucket cap",
	})

	// process state
	m.buildInfo = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1)",
	}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"})
	m.profilingActive = f.NewGauge(prometheus.GaugeOpts{
		Name: "profiling_active",
		Help: "1 while continuous profiling is running",
	})

	// api
	m.validationFailures = f.NewCounterVec(prometheus.CounterOpts{
		Name: "api_validation_failures_total",
		Help: "Requests rejected before reaching storage, by route and error kind",
	}, []string{"route", "kind"})
	m.usersCreatedTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "api_users_created_total",
		Help: "Total user records created via POST /data",
	})
	m.uploadsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "api_uploads_total",
		Help: "Total stored uploads by storage backend",
	}, []string{"store"})
	m.uploadBytes = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "api_upload_size_bytes",
		Help:    "Size of stored uploads",
		Buckets: []float64{1024, 16384, 65536, 262144, 1048576, 2097152, 4194304, 5242880},
	})

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
	return m
}

func (m *ServerMetrics) IncHttpPanic() {
	m.httpPanicTotal.Inc()
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

// IncRateLimitDenied matches the limiter's OnDenied hook. The client ip is
// deliberately not a label.
func (m *ServerMetrics) IncRateLimitDenied(_ string, route string) {
	m.ratelimitDeniedTotal.WithLabelValues(route).Inc()
}

func (m *ServerMetrics) IncRateLimitCapacity() {
	m.ratelimitCapacityTotal.Inc()
}

// TrackRateLimitBuckets exposes the live bucket count. Call at most once.
func (m *ServerMetrics) TrackRateLimitBuckets(count func() int) {
	if m.ratelimitBuckets != nil {
		return
	}
	m.ratelimitBuckets = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "http_rate_limit_buckets",
		Help: "Current number of tracked (client, route) rate limit buckets",
	}, func() float64 { return float64(count()) })
	m.reg.MustRegister(m.ratelimitBuckets)
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}

func (m *ServerMetrics) IncValidationFailure(route, kind string) {
	m.validationFailures.WithLabelValues(route, kind).Inc()
}

func (m *ServerMetrics) IncUsersCreated() {
	m.usersCreatedTotal.Inc()
}

func (m *ServerMetrics) ObserveUpload(store string, size int64) {
	m.uploadsTotal.WithLabelValues(store).Inc()
	m.uploadBytes.Observe(float64(size))
}
