package httpmw

import (
	"context"
	"sync"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/keithlinneman/linnemanlabs-api/internal/log"
)

type entry struct {
	level string
	msg   string
	err   error
	kv    []any
	with  []any
}

// spyLogger records every call. With returns a child that shares the
// record but remembers its own fields.
type spyLogger struct {
	mu      *sync.Mutex
	entries *[]entry
	with    []any
}

func newSpyLogger() *spyLogger {
	return &spyLogger{mu: &sync.Mutex{}, entries: &[]entry{}}
}

func (s *spyLogger) add(e entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.with = s.with
	*s.entries = append(*s.entries, e)
}

func (s *spyLogger) With(kv ...any) log.Logger {
	with := append(append([]any{}, s.with...), kv...)
	return &spyLogger{mu: s.mu, entries: s.entries, with: with}
}
func (s *spyLogger) Debug(_ context.Context, msg string, kv ...any) {
	s.add(entry{level: "debug", msg: msg, kv: kv})
}
func (s *spyLogger) Info(_ context.Context, msg string, kv ...any) {
	s.add(entry{level: "info", msg: msg, kv: kv})
}
func (s *spyLogger) Warn(_ context.Context, msg string, kv ...any) {
	s.add(entry{level: "warn", msg: msg, kv: kv})
}
func (s *spyLogger) Error(_ context.Context, err error, msg string, kv ...any) {
	s.add(entry{level: "error", msg: msg, err: err, kv: kv})
}
func (s *spyLogger) Sync() error { return nil }

func (s *spyLogger) all() []entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entry(nil), *s.entries...)
}

func (s *spyLogger) find(msg string) (entry, bool) {
	for _, e := range s.all() {
		if e.msg == msg {
			return e, true
		}
	}
	return entry{}, false
}

// kvGet looks key up in kv pairs.
func kvGet(kv []any, key string) (any, bool) {
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok && k == key {
			return kv[i+1], true
		}
	}
	return nil, false
}

func newTracer(t *testing.T) (*sdktrace.TracerProvider, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, sr
}
