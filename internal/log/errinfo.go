package log

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// errorChain lists the distinct messages down the Unwrap chain, plus the
// branches of an errors.Join at the top.
func errorChain(err error) []string {
	out := make([]string, 0, 8)
	var prev string
	for e := err; e != nil; e = errors.Unwrap(e) {
		msg := e.Error()
		if msg != prev {
			out = append(out, msg)
			prev = msg
		}
	}

	type multi interface{ Unwrap() []error }
	if m, ok := any(err).(multi); ok {
		for _, e := range m.Unwrap() {
			if s := e.Error(); s != prev {
				out = append(out, s)
				prev = s
			}
		}
	}
	return out
}

func chainLinks(err error, max int) []map[string]any {
	links := make([]map[string]any, 0, 8)
	depth := 0
	for e := err; e != nil && (max <= 0 || depth < max); e = errors.Unwrap(e) {
		link := map[string]any{"msg": e.Error()}
		havePos := false

		// prefer the single call-site PC from Wrap, fall back to the first external frame of a captured stack
		if hp, ok := any(e).(hasPC); ok {
			if fn, file, line, ok := frameFromPC(hp.PC()); ok {
				link["func"], link["file"], link["line"] = fn, file, line
				havePos = true
			}
		} else if hs, ok := any(e).(hasStack); ok {
			if fn, file, line, ok := firstExtFrame(hs.StackPCs()); ok {
				link["func"], link["file"], link["line"] = fn, file, line
				havePos = true
			}
		}
		if depth == 0 || havePos {
			links = append(links, link)
		}
		depth++
	}
	return links
}

func frameFromPC(pc uintptr) (fn, file string, line int, ok bool) {
	if pc == 0 {
		return "", "", 0, false
	}
	fr, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	return fr.Function, fr.File, fr.Line, true
}

func firstExtFrame(pcs []uintptr) (fn, file string, line int, ok bool) {
	if len(pcs) == 0 {
		return "", "", 0, false
	}
	frames := runtime.CallersFrames(pcs)
	for {
		fr, more := frames.Next()
		internal := strings.HasPrefix(fr.Function, "runtime.") ||
			isLogFrame(fr.Function) ||
			strings.Contains(fr.Function, "/internal/xerrors.")
		if !internal {
			return fr.Function, fr.File, fr.Line, true
		}
		if !more {
			break
		}
	}
	return "", "", 0, false
}

// isWrapper reports error types that only add context: fmt.Errorf's %w
// wrapper and the xerrors types.
func isWrapper(t reflect.Type) bool {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return strings.Contains(t.PkgPath(), "/internal/xerrors") ||
		(t.PkgPath() == "fmt" && t.Name() == "wrapError")
}

// classifyTypes returns the outermost type that is not a wrapper and the
// type of the root cause.
func classifyTypes(err error) (surface, root string) {
	if err == nil {
		return "", ""
	}
	var last error
	for e := err; e != nil; e = errors.Unwrap(e) {
		last = e
		if surface == "" {
			if t := reflect.TypeOf(e); t != nil && !isWrapper(t) {
				surface = t.String()
			}
		}
	}
	if surface == "" {
		surface = fmt.Sprintf("%T", err)
	}
	return surface, fmt.Sprintf("%T", last)
}
