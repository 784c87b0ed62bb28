package httpmw

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/keithlinneman/linnemanlabs-api/internal/apierr"
	"github.com/keithlinneman/linnemanlabs-api/internal/log"
	"github.com/keithlinneman/linnemanlabs-api/internal/xerrors"
)

// Recover turns a handler panic into a 500 JSON response and an error log
// with the stack. If the handler had already started its response, the
// panic is only logged. onPanic, if set, runs once per recovered panic.
// http.ErrAbortHandler is re-raised so net/http can abort the connection.
func Recover(L log.Logger, onPanic func()) Middleware {
	if L == nil {
		L = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tw := &startedWriter{ResponseWriter: w}
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if err, ok := p.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(p)
				}

				var err error
				if pe, ok := p.(error); ok {
					err = xerrors.Wrap(pe, "panic")
				} else {
					err = xerrors.Newf("panic: %v", p)
				}

				ctx := r.Context()
				L.With("http.request.method", r.Method, "url.path", routePattern(r)).
					Error(ctx, err, "httpserver panic recovered",
						"panic_value", fmt.Sprintf("%v", p), "response_started", tw.started)
				if onPanic != nil {
					onPanic()
				}
				if !tw.started {
					apierr.Respond(w, r, apierr.NewUnexpected(err))
				}
			}()
			next.ServeHTTP(tw, r)
		})
	}
}

// startedWriter records whether the status line may already have been sent.
type startedWriter struct {
	http.ResponseWriter
	started bool
}

func (w *startedWriter) WriteHeader(code int) {
	// 1xx responses are informational; the final status is still to come.
	if code >= 200 {
		w.started = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *startedWriter) Write(b []byte) (int, error) {
	w.started = true
	return w.ResponseWriter.Write(b)
}

func (w *startedWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		w.started = true
		f.Flush()
	}
}

func (w *startedWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
