package httpmw

import "net/http"

// Middleware is the shape every function in this package returns.
type Middleware = func(http.Handler) http.Handler

// Chain wraps h so that mws[0] sees the request first. nil entries are
// skipped, which lets callers switch middleware off with a conditional.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mw := mws[i]; mw != nil {
			h = mw(h)
		}
	}
	return h
}
