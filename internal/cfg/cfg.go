package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/keithlinneman/linnemanlabs-api/internal/log"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type App struct {
	AppName           string
	AppEnv            string
	AppVersion        string
	LogJSON           bool
	LogLevel          string
	HTTPPort          int
	AdminPort         int
	EnablePprof       bool
	EnablePyroscope   bool
	EnableTracing     bool
	PyroServer        string
	PyroTenantID      string
	OTLPEndpoint      string
	TraceSample       float64
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	TrustedHops    int
	MaxBodyBytes   int64
	MaxUploadBytes int64

	Store               string
	DatabaseURL         string
	DatabaseURLSSMParam string

	UploadDir      string
	UploadS3Bucket string
	UploadS3Prefix string

	RateLimitConfig  string
	RateLimitSweep   time.Duration
	RateLimitMaxKeys int

	DrainDelay      time.Duration
	ShutdownTimeout time.Duration
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.StringVar(&c.AppName, "app-name", "Default API", "application name shown by / and /info")
	fs.StringVar(&c.AppEnv, "app-env", "development", "deployment environment name")
	fs.StringVar(&c.AppVersion, "app-version", "0.1.0", "application version reported by /info")
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")

	fs.IntVar(&c.TrustedHops, "trusted-hops", 0, "number of trusted reverse proxies in front of the server (0..10)")
	fs.Int64Var(&c.MaxBodyBytes, "max-body-bytes", 1<<20, "max request body size for JSON routes")
	fs.Int64Var(&c.MaxUploadBytes, "max-upload-bytes", 5<<20, "max uploaded file size")

	fs.StringVar(&c.Store, "store", StoreMemory, "user store backend (memory|postgres)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "postgres connection url (store=postgres)")
	fs.StringVar(&c.DatabaseURLSSMParam, "database-url-ssm-param", "", "ssm parameter holding the postgres connection url")

	fs.StringVar(&c.UploadDir, "upload-dir", "uploads", "local directory for uploaded files")
	fs.StringVar(&c.UploadS3Bucket, "upload-s3-bucket", "", "s3 bucket for uploaded files (overrides upload-dir)")
	fs.StringVar(&c.UploadS3Prefix, "upload-s3-prefix", "", "s3 key prefix for uploaded files")

	fs.StringVar(&c.RateLimitConfig, "ratelimit-config", "", "yaml file with per-route rate limit overrides")
	fs.DurationVar(&c.RateLimitSweep, "ratelimit-sweep", time.Minute, "interval between expired rate limit bucket sweeps (0 disables)")
	fs.IntVar(&c.RateLimitMaxKeys, "ratelimit-max-keys", 100000, "max tracked (client, route) rate limit buckets")

	fs.DurationVar(&c.DrainDelay, "drain-delay", 5*time.Second, "time between failing readiness and closing listeners")
	fs.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", 10*time.Second, "max time to finish in-flight requests on shutdown")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := EnvKey(prefix, f.Name)
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// EnvKey maps flag "foo-bar" to PREFIX_FOO_BAR.
func EnvKey(prefix, flagName string) string {
	return prefix + strings.ReplaceAll(strings.ToUpper(flagName), "-", "_")
}

// Validate checks every field and reports all problems at once, joined.
func Validate(c App) error {
	var errs []error
	for _, check := range []func(App) []error{
		checkListeners,
		checkObservability,
		checkRequestLimits,
		checkStorage,
		checkLifecycle,
	} {
		errs = append(errs, check(c)...)
	}
	return errors.Join(errs...)
}

func validPort(p int) bool { return p >= 1 && p <= 65535 }

func checkListeners(c App) (errs []error) {
	if strings.TrimSpace(c.AppName) == "" {
		errs = append(errs, errors.New("APP_NAME must not be empty"))
	}
	if !validPort(c.HTTPPort) {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if !validPort(c.AdminPort) {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}
	if c.TrustedHops < 0 || c.TrustedHops > 10 {
		errs = append(errs, fmt.Errorf("invalid TRUSTED_HOPS %d (must be 0..10)", c.TrustedHops))
	}
	return errs
}

func checkObservability(c App) (errs []error) {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}
	if c.IncludeErrorLinks && (c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64) {
		errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
	}

	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}
	// the gRPC exporter takes host:port without a scheme
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, errors.New("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, errors.New("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, errors.New("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}
	return errs
}

func checkRequestLimits(c App) (errs []error) {
	if c.MaxBodyBytes < 1 {
		errs = append(errs, fmt.Errorf("invalid MAX_BODY_BYTES %d (must be > 0)", c.MaxBodyBytes))
	}
	if c.MaxUploadBytes < 1 {
		errs = append(errs, fmt.Errorf("invalid MAX_UPLOAD_BYTES %d (must be > 0)", c.MaxUploadBytes))
	}
	if c.RateLimitSweep < 0 {
		errs = append(errs, fmt.Errorf("invalid RATELIMIT_SWEEP %s (must be >= 0)", c.RateLimitSweep))
	}
	if c.RateLimitMaxKeys < 1 {
		errs = append(errs, fmt.Errorf("invalid RATELIMIT_MAX_KEYS %d (must be > 0)", c.RateLimitMaxKeys))
	}
	return errs
}

func checkStorage(c App) (errs []error) {
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" && c.DatabaseURLSSMParam == "" {
			errs = append(errs, errors.New("DATABASE_URL or DATABASE_URL_SSM_PARAM required when STORE=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid STORE %q (must be memory|postgres)", c.Store))
	}
	if c.UploadDir == "" && c.UploadS3Bucket == "" {
		errs = append(errs, errors.New("UPLOAD_DIR or UPLOAD_S3_BUCKET is required"))
	}
	return errs
}

func checkLifecycle(c App) (errs []error) {
	if c.DrainDelay < 0 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_DELAY %s (must be >= 0)", c.DrainDelay))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_TIMEOUT %s (must be > 0)", c.ShutdownTimeout))
	}
	return errs
}
