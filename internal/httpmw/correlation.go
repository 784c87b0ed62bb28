package httpmw

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/keithlinneman/linnemanlabs-api/internal/log"
	"github.com/keithlinneman/linnemanlabs-api/internal/reqctx"
)

const (
	CorrelationHeader = "X-Correlation-ID"

	// FallbackCorrelationID is used when no id can be generated.
	FallbackCorrelationID = "unknown-correlation-id"

	maxCorrelationIDLen = 128
)

// newCorrelationID is swapped in tests to exercise the fallback.
var newCorrelationID = func() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Correlation establishes the request context: it accepts a well-formed
// inbound X-Correlation-ID or generates one, records the start time and
// client address, and sets the response header before anything downstream
// can write, so every response carries the id.
//
// It runs before the request logger is bound, so a failed generation is
// reported through L.
func Correlation(L log.Logger) Middleware {
	if L == nil {
		L = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()

			id := r.Header.Get(CorrelationHeader)
			if !validCorrelationID(id) {
				var err error
				if id, err = newCorrelationID(); err != nil || id == "" {
					id = FallbackCorrelationID
					L.Warn(ctx, "correlation id generation failed, using fallback",
						"err", err, "client.address", ClientIPFromContext(ctx))
				}
			}

			w.Header().Set(CorrelationHeader, id)
			ctx = reqctx.With(ctx, reqctx.Info{
				CorrelationID: id,
				Start:         start,
				ClientIP:      ClientIPFromContext(ctx),
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validCorrelationID accepts up to 128 bytes of printable ASCII, spaces
// included, and echoes it unchanged. Longer ids and any control or non-ASCII
// byte get a fresh id. Log lines carry the sanitized form.
func validCorrelationID(id string) bool {
	if id == "" || len(id) > maxCorrelationIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if c := id[i]; c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}
