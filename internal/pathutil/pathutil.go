// Package pathutil holds the path checks shared by the filename sanitizer and
// the upload stores.
package pathutil

import "strings"

// HasDotSegments reports whether any segment of p is "." or "..". Both
// slash styles count as separators since uploads arrive from any client OS.
func HasDotSegments(p string) bool {
	for _, seg := range strings.FieldsFunc(p, isSep) {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return p == "." || p == ".."
}

// Base returns the last segment of p, treating both / and \ as separators.
// Trailing separators are ignored; an all-separator path yields "".
func Base(p string) string {
	p = strings.TrimRightFunc(p, isSep)
	if i := strings.LastIndexFunc(p, isSep); i >= 0 {
		return p[i+1:]
	}
	return p
}

// IsSafeName reports whether name can be joined onto a storage root without
// escaping it: non-empty, no separators, no NUL, not a dot segment.
func IsSafeName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsFunc(name, func(r rune) bool { return isSep(r) || r == 0 })
}

func isSep(r rune) bool { return r == '/' || r == '\\' }
