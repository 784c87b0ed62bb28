package opshttp

import (
	"net/http"

	"github.com/keithlinneman/linnemanlabs-api/internal/health"
)

type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe

	// AllowPublic disables the private-network guard. Only for listeners bound to loopback.
	AllowPublic  bool
	UseRecoverMW bool
	OnPanic      func() // called after a recovered panic, e.g. to bump a counter
}
