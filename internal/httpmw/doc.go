// Package httpmw provides the HTTP middleware of the public API listener.
//
// httpserver.NewHandler composes the global chain, outermost first:
// security headers, client IP, correlation context, request logger,
// access log, metrics, panic recovery, tracing and the chi router.
// Route groups then add rate limiting (package ratelimit), body
// validation and a body size cap.
//
// Anything a client controls (query strings, header values, upload names)
// is passed through sanitize.Text before it reaches a log line.
package httpmw
