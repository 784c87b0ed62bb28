package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"
)

const defaultMaxErrorLinks = 8

// slogLogger binds its attributes into the handler chain on With, so the
// JSON/text handler pre-formats them once instead of on every record.
type slogLogger struct {
	h        slog.Handler
	errLinks bool
	// maxErrorLinks caps the error_links attr when errLinks is set.
	maxErrorLinks int
}

func baseHandler(w io.Writer, opts Options) slog.Handler {
	if w == nil {
		w = os.Stdout
	}
	ho := &slog.HandlerOptions{Level: opts.Level, AddSource: true}
	if opts.JsonFormat {
		return slog.NewJSONHandler(w, ho)
	}
	return slog.NewTextHandler(w, ho)
}

func newSlog(opts Options) (Logger, error) {
	stackAt := opts.StacktraceLevel
	if stackAt == 0 {
		stackAt = slog.LevelError
	}
	links := opts.MaxErrorLinks
	if links <= 0 {
		links = defaultMaxErrorLinks
	}

	var h slog.Handler = stackHandler{
		next:  contextHandler{next: baseHandler(opts.Writer, opts)},
		level: stackAt,
	}

	service := []slog.Attr{slog.String("app", opts.App)}
	if opts.Env != "" {
		service = append(service, slog.String("env", opts.Env))
	}
	if opts.Version != "" {
		service = append(service, slog.String("version", opts.Version))
	}

	return &slogLogger{
		h:             h.WithAttrs(service),
		errLinks:      opts.IncludeErrorLinks,
		maxErrorLinks: links,
	}, nil
}

// pairs converts alternating key/value arguments to attrs. Non-string keys
// and a trailing key without a value are dropped.
func pairs(kv []any) []slog.Attr {
	out := make([]slog.Attr, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, slog.Any(k, kv[i+1]))
	}
	return out
}

func (s *slogLogger) With(kv ...any) Logger {
	attrs := pairs(kv)
	if len(attrs) == 0 {
		return s
	}
	child := *s
	child.h = s.h.WithAttrs(attrs)
	return &child
}

func (s *slogLogger) Debug(ctx context.Context, msg string, kv ...any) {
	s.emit(ctx, slog.LevelDebug, msg, kv)
}

func (s *slogLogger) Info(ctx context.Context, msg string, kv ...any) {
	s.emit(ctx, slog.LevelInfo, msg, kv)
}

func (s *slogLogger) Warn(ctx context.Context, msg string, kv ...any) {
	s.emit(ctx, slog.LevelWarn, msg, kv)
}

func (s *slogLogger) Error(ctx context.Context, err error, msg string, kv ...any) {
	if err != nil {
		kv = append(kv, s.errorFields(err)...)
	}
	s.emit(ctx, slog.LevelError, msg, kv)
}

func (s *slogLogger) errorFields(err error) []any {
	surface, root := classifyTypes(err)
	out := []any{"err", err, "error_type", surface, "cause_type", root}
	if chain := errorChain(err); len(chain) > 0 {
		out = append(out, "error_chain", chain)
	}
	if s.errLinks {
		out = append(out, "error_links", chainLinks(err, s.maxErrorLinks))
	}
	return out
}

func (s *slogLogger) Sync() error { return nil }

// emit must be called directly from a Logger method; the source position
// reported is the caller of that method.
func (s *slogLogger) emit(ctx context.Context, lvl slog.Level, msg string, kv []any) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !s.h.Enabled(ctx, lvl) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])

	r := slog.NewRecord(time.Now(), lvl, msg, pcs[0])
	r.AddAttrs(pairs(kv)...)
	_ = s.h.Handle(ctx, r)
}
