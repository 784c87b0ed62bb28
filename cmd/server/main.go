package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keithlinneman/linnemanlabs-api/internal/api"
	"github.com/keithlinneman/linnemanlabs-api/internal/awsx"
	"github.com/keithlinneman/linnemanlabs-api/internal/cfg"
	"github.com/keithlinneman/linnemanlabs-api/internal/health"
	"github.com/keithlinneman/linnemanlabs-api/internal/httpserver"
	"github.com/keithlinneman/linnemanlabs-api/internal/log"
	"github.com/keithlinneman/linnemanlabs-api/internal/metrics"
	"github.com/keithlinneman/linnemanlabs-api/internal/opshttp"
	"github.com/keithlinneman/linnemanlabs-api/internal/otelx"
	"github.com/keithlinneman/linnemanlabs-api/internal/prof"
	v "github.com/keithlinneman/linnemanlabs-api/internal/version"
)

const component = "server"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool
	var envFile string

	// Parse config from flags and env
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.StringVar(&envFile, "env-file", ".env", "dotenv file to read before the environment (missing file is ignored)")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	// .env fills the environment without overriding it, then env fills unset flags
	loaded, err := cfg.LoadDotEnv(envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "env file error:", err)
		os.Exit(1)
	}
	cfg.FillFromEnv(flag.CommandLine, "", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Setup logging
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid stacktrace level %s: %v\n", conf.StacktraceLevel, err)
		os.Exit(1)
	}
	lg, err := log.New(log.Options{
		App:               conf.AppName,
		Env:               conf.AppEnv,
		Version:           conf.AppVersion,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JsonFormat:        conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	// no-op for slog, kept so a buffered backend gets flushed
	defer lg.Sync()
	L := lg.With("component", component)
	ctx = log.WithContext(ctx, L)

	if len(loaded) > 0 {
		L.Info(ctx, "environment loaded from file", "file", envFile, "keys", loaded)
	}

	if err := run(ctx, L, conf, vi); err != nil {
		L.Error(ctx, err, "server exited with error")
		os.Exit(1)
	}
	L.Info(context.Background(), "shutdown complete")
}

func run(ctx context.Context, L log.Logger, conf cfg.App, vi v.Info) error {
	L.Info(ctx, "initializing application", append(vi.LogValues(),
		"app_version", conf.AppVersion,
		"app_env", conf.AppEnv,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"store", conf.Store,
		"upload_dir", conf.UploadDir,
		"upload_s3_bucket", conf.UploadS3Bucket,
		"trusted_hops", conf.TrustedHops,
		"max_body_bytes", conf.MaxBodyBytes,
		"max_upload_bytes", conf.MaxUploadBytes,
		"ratelimit_config", conf.RateLimitConfig,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"trace_sample", conf.TraceSample,
	)...)

	m := metrics.New()
	m.SetBuildInfoFromVersion(conf.AppName, component, vi)

	// Setup pyroscope profiling
	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       conf.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"component": component,
			"env":       conf.AppEnv,
			"version":   conf.AppVersion,
			"commit":    vi.ShortCommit(),
		},
		OnActive: m.SetProfilingActive,
	})
	if err != nil {
		// profiling is optional, keep serving without it
		L.Warn(ctx, "pyroscope unavailable", "err", err)
	}
	defer stopProf()

	// Insecure is true because spans go to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   conf.AppName,
		Component: component,
		Version:   conf.AppVersion,
		Env:       conf.AppEnv,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed, tracing disabled")
		shutdownOTEL = func(context.Context) error { return nil }
	}

	aws := awsx.NewClients()

	users, closeUsers, err := openUserStore(ctx, L, conf, aws)
	if err != nil {
		return err
	}
	defer closeUsers()

	files, err := openFileStore(ctx, conf, aws)
	if err != nil {
		return err
	}
	L.Info(ctx, "storage ready", "user_store", conf.Store, "file_store", files.Kind())

	limiter, err := newLimiter(ctx, L, conf, m)
	if err != nil {
		return err
	}

	a, err := api.New(api.Options{
		AppName:        conf.AppName,
		AppVersion:     conf.AppVersion,
		AppEnv:         conf.AppEnv,
		Users:          users,
		Files:          files,
		Limiter:        limiter,
		Hooks:          m,
		MaxBodyBytes:   conf.MaxBodyBytes,
		MaxUploadBytes: conf.MaxUploadBytes,
	})
	if err != nil {
		return err
	}

	// readiness fails during drain and while the user store is unreachable
	var gate health.ShutdownGate
	readiness := health.All(
		gate.Probe(),
		health.Ping("user store", 2*time.Second, users.Ping),
	)
	liveness := health.Fixed(true, "")

	httpStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		TrustedHops:  conf.TrustedHops,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		APIRoutes:    a.RegisterRoutes,
		Health:       liveness,
		Readiness:    readiness,
	})
	if err != nil {
		return err
	}
	defer func() { _ = httpStop(context.Background()) }()

	// admin listener rejects public peers itself, in case the network
	// policy in front of it is ever misconfigured
	opsStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       liveness,
		Readiness:    readiness,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		return err
	}
	defer func() { _ = opsStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		L.Debug(ctx, "systemd notify skipped", "reason", err.Error())
	}

	// wait for ctrl+c / sigterm
	<-ctx.Done()
	L.Info(context.Background(), "shutdown signal received")

	// fail readiness first so the load balancer stops routing here
	gate.Set("draining")
	drain(L, conf.DrainDelay)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := httpStop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
	}
	if err := opsStop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("ops server shutdown: %w", err))
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		// losing the last spans is not a failed shutdown
		L.Warn(context.Background(), "otel shutdown", "err", err)
	}
	return errors.Join(errs...)
}

// drain waits for d so in-flight requests finish and health checks notice.
// A second signal skips the wait.
func drain(L log.Logger, d time.Duration) {
	if d <= 0 {
		return
	}
	L.Info(context.Background(), "draining before shutdown", "drain_delay", d.String())
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(forceCh)

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
}

func notifySystemd() error {
	// systemd sets NOTIFY_SOCKET when the unit is Type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		conn.Close()
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
