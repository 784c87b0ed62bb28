// Package sanitize neutralises client-supplied strings before they are
// persisted, echoed back or written to logs.
package sanitize

import (
	"strings"

	"github.com/google/uuid"

	"github.com/keithlinneman/linnemanlabs-api/internal/pathutil"
)

const (
	// fallbackFilename replaces names that sanitise to nothing.
	fallbackFilename = "file"
	maxFilenameBytes = 128
)

var controlReplacer = strings.NewReplacer("\r", " ", "\n", " ", "\t", " ")

// Text trims s, flattens CR/LF/TAB to spaces and HTML-escapes &, < and >.
// Quotes are left alone. Text(Text(s)) == Text(s) for every s: an ampersand
// that already starts &amp;, &lt; or &gt; is not escaped again.
func Text(s string) string {
	s = strings.TrimSpace(s)
	s = controlReplacer.Replace(s)
	s = strings.TrimSpace(s)

	if !strings.ContainsAny(s, "&<>") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 16)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '&':
			if isEntity(s[i:]) {
				b.WriteByte('&')
			} else {
				b.WriteString("&amp;")
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isEntity(s string) bool {
	return strings.HasPrefix(s, "&amp;") || strings.HasPrefix(s, "&lt;") || strings.HasPrefix(s, "&gt;")
}

// Filename returns a storage-safe name for a client-supplied upload name:
// a random 8 hex digit token, an underscore, and the cleaned base name.
// The result never contains a path separator or a dot segment.
func Filename(name string) string {
	return token() + "_" + CleanFilename(name)
}

// CleanFilename reduces name to its base, keeps [A-Za-z0-9._-] and maps
// everything else to '_'. Leading dots are dropped so the result is never
// hidden or a dot segment.
func CleanFilename(name string) string {
	base := pathutil.Base(name)
	if base == "" || pathutil.HasDotSegments(base) {
		return fallbackFilename
	}

	var b strings.Builder
	b.Grow(len(base))
	for _, r := range base {
		if isFilenameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}

	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return fallbackFilename
	}
	return truncate(out, maxFilenameBytes)
}

// truncate shortens name to max bytes, keeping the extension when it fits.
func truncate(name string, max int) string {
	if len(name) <= max {
		return name
	}
	ext := ""
	if i := strings.LastIndexByte(name, '.'); i > 0 && len(name)-i <= 16 {
		ext = name[i:]
	}
	return name[:max-len(ext)] + ext
}

func isFilenameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.', r == '_', r == '-':
		return true
	}
	return false
}

func token() string {
	id := uuid.New()
	const hexdigits = "0123456789abcdef"
	var out [8]byte
	for i := 0; i < 4; i++ {
		out[i*2] = hexdigits[id[i]>>4]
		out[i*2+1] = hexdigits[id[i]&0x0f]
	}
	return string(out[:])
}
