// Package prof runs the continuous profiler.
package prof

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/grafana/pyroscope-go"

	"github.com/keithlinneman/linnemanlabs-api/internal/log"
	"github.com/keithlinneman/linnemanlabs-api/internal/xerrors"
)

type Options struct {
	Enabled              bool
	AppName              string
	ServerAddress        string
	AuthToken            string
	TenantID             string
	Tags                 map[string]string
	ProfileMutexFraction int
	BlockProfileRate     int

	// OnActive reports whether profiling is running, e.g. to a gauge.
	OnActive func(bool)
}

var profileTypes = []pyroscope.ProfileType{
	pyroscope.ProfileCPU,
	pyroscope.ProfileAllocObjects,
	pyroscope.ProfileAllocSpace,
	pyroscope.ProfileInuseObjects,
	pyroscope.ProfileInuseSpace,
	pyroscope.ProfileGoroutines,
	pyroscope.ProfileMutexCount,
	pyroscope.ProfileMutexDuration,
	pyroscope.ProfileBlockCount,
	pyroscope.ProfileBlockDuration,
}

// Start begins pushing profiles. The returned stop func is always non-nil and
// safe to call more than once, including after an error.
func Start(ctx context.Context, opts Options) (func(), error) {
	L := log.FromContext(ctx)
	report := func(active bool) {
		if opts.OnActive != nil {
			opts.OnActive(active)
		}
	}

	if !opts.Enabled {
		L.Info(ctx, "pyroscope disabled")
		report(false)
		return func() {}, nil
	}

	if opts.ServerAddress == "" {
		err := xerrors.Newf("invalid server address (%q)", opts.ServerAddress)
		L.Error(ctx, err, "pyroscope options")
		report(false)
		return func() {}, err
	}

	if opts.ProfileMutexFraction > 0 {
		runtime.SetMutexProfileFraction(opts.ProfileMutexFraction)
	}
	if opts.BlockProfileRate > 0 {
		runtime.SetBlockProfileRate(opts.BlockProfileRate)
	}

	profiler, err := pyroscope.Start(config(ctx, L, opts))
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed",
			"server_address", opts.ServerAddress,
			"app_name", opts.AppName,
		)
		report(false)
		return func() {}, err
	}

	L.Info(ctx, "pyroscope started",
		"server_address", opts.ServerAddress,
		"app_name", opts.AppName,
	)
	report(true)

	var once sync.Once
	return func() {
		once.Do(func() {
			profiler.Stop()
			report(false)
			L.Info(context.Background(), "pyroscope stopped", "app_name", opts.AppName)
		})
	}, nil
}

func config(ctx context.Context, L log.Logger, opts Options) pyroscope.Config {
	cfg := pyroscope.Config{
		ApplicationName: opts.AppName,
		ServerAddress:   opts.ServerAddress,
		TenantID:        opts.TenantID,
		Tags:            opts.Tags,
		Logger:          pyroLogger{ctx: ctx, L: L},
		ProfileTypes:    profileTypes,
	}
	if opts.AuthToken != "" {
		cfg.HTTPHeaders = map[string]string{"Authorization": "Bearer " + opts.AuthToken}
	}
	return cfg
}

// pyroLogger routes the profiler's own logging into ours. Debug output is
// dropped, it reports every upload.
type pyroLogger struct {
	ctx context.Context
	L   log.Logger
}

func (p pyroLogger) Infof(format string, args ...any) {
	p.L.Info(p.ctx, fmt.Sprintf(format, args...), "component", "pyroscope")
}

func (p pyroLogger) Debugf(string, ...any) {}

func (p pyroLogger) Errorf(format string, args ...any) {
	p.L.Warn(p.ctx, fmt.Sprintf(format, args...), "component", "pyroscope")
}
