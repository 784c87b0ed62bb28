package httpmw

import (
	"mime"
	"net/http"
	"strings"

	"github.com/keithlinneman/linnemanlabs-api/internal/apierr"
)

// BodyOptions configures ValidateBody for one route group.
type BodyOptions struct {
	// AllowedTypes lists the accepted media types, compared case-insensitively
	// without parameters.
	AllowedTypes []string
	// MaxBytes bounds the declared Content-Length. 0 disables the check.
	MaxBytes int64
}

// ValidateBody rejects requests before any body is read: 415 when a
// Content-Type is present and not allowed, 413 when Content-Length exceeds
// MaxBytes. A missing Content-Type or Content-Length passes through; pair it
// with MaxBody to bound bodies of unknown length.
func ValidateBody(opts BodyOptions) Middleware {
	allowed := make(map[string]bool, len(opts.AllowedTypes))
	for _, t := range opts.AllowedTypes {
		allowed[strings.ToLower(strings.TrimSpace(t))] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if mt := MediaType(r.Header.Get("Content-Type")); mt != "" && !allowed[mt] {
				apierr.Write(w, r, apierr.NewUnsupportedMediaType())
				return
			}
			if opts.MaxBytes > 0 && r.ContentLength > opts.MaxBytes {
				apierr.Write(w, r, apierr.NewPayloadTooLarge())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// MediaType returns the lower-cased media type of a Content-Type value, or
// "" for an empty header. Unparseable values fall back to the text before ';'.
func MediaType(contentType string) string {
	if strings.TrimSpace(contentType) == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt
	}
	before, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(before))
}
