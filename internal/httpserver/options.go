package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-api/internal/health"
	"github.com/keithlinneman/linnemanlabs-api/internal/log"
)

type Options struct {
	Logger log.Logger
	Port   int

	// TrustedHops is the number of reverse proxies whose X-Forwarded-For entry is trusted.
	TrustedHops int

	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler

	// APIRoutes mounts the application routes on the router.
	APIRoutes func(chi.Router)

	// Probes are also served on the public listener for load balancers.
	Health    health.Probe
	Readiness health.Probe
}
