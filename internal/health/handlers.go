package health

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Probe paths on the public listener. The admin listener also serves
// /healthz and /readyz.
const (
	HealthyPath = "/-/healthy"
	ReadyPath   = "/-/ready"
)

// HealthzHandler answers 200 "ok" while p passes and 503 with the probe's
// reason otherwise. A nil probe always passes.
func HealthzHandler(p Probe) http.HandlerFunc { return probeHandler(p, "ok\n") }

// ReadyzHandler is HealthzHandler with a "ready" body.
func ReadyzHandler(p Probe) http.HandlerFunc { return probeHandler(p, "ready\n") }

func probeHandler(p Probe, okBody string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		if p != nil {
			if err := p.Check(r.Context()); err != nil {
				http.Error(w, err.Error()+"\n", http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			_, _ = w.Write([]byte(okBody))
		}
	}
}

// Routes registers the probe endpoints on a chi router.
type Routes struct {
	Liveness  Probe
	Readiness Probe
}

func (rt Routes) RegisterRoutes(r chi.Router) {
	live, ready := HealthzHandler(rt.Liveness), ReadyzHandler(rt.Readiness)
	r.Get(HealthyPath, live)
	r.Head(HealthyPath, live)
	r.Get(ReadyPath, ready)
	r.Head(ReadyPath, ready)
}
