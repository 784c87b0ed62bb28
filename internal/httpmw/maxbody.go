package httpmw

import "net/http"

// MaxBody caps the bytes a handler can read from the body. Reading past the
// cap fails with *http.MaxBytesError, which apierr answers as 413.
func MaxBody(limit int64) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
