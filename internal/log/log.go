package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Logger is the structured logger passed through the service. Key/value
// pairs alternate; a non-string key drops its pair.
type Logger interface {
	With(kv ...any) Logger

	Debug(ctx context.Context, msg string, kv ...any)
	Info(ctx context.Context, msg string, kv ...any)
	Warn(ctx context.Context, msg string, kv ...any)
	Error(ctx context.Context, err error, msg string, kv ...any)

	Sync() error
}

// Options configures New. App, Env and Version are attached to every record.
type Options struct {
	App     string
	Env     string
	Version string

	Level           slog.Level
	StacktraceLevel slog.Level // zero means slog.LevelError
	JsonFormat      bool

	IncludeErrorLinks bool
	MaxErrorLinks     int // zero means 8

	Writer io.Writer // nil means stdout
}

func New(opts Options) (Logger, error) { return newSlog(opts) }

var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// ParseLevel maps a LOG_LEVEL value to a slog level, ignoring case and
// surrounding space.
func ParseLevel(s string) (slog.Level, error) {
	if lvl, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return lvl, nil
	}
	return 0, fmt.Errorf("unknown log level %q (valid levels are debug|info|warn|error)", s)
}
