// Package xerrors wraps errors with the call-site information the logger
// renders: Wrap records the single PC of its caller, New and WithStack record
// a full stack. Both remain transparent to errors.Is and errors.As.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

const maxStackDepth = 64

type stackHolder interface{ StackPCs() []uintptr }

type stacked struct {
	err error
	pcs []uintptr
}

func (s *stacked) Error() string       { return s.err.Error() }
func (s *stacked) Unwrap() error       { return s.err }
func (s *stacked) StackPCs() []uintptr { return s.pcs }

type wrapped struct {
	cause error
	msg   string
	pc    uintptr
}

func (w *wrapped) Error() string { return w.msg + ": " + w.cause.Error() }
func (w *wrapped) Unwrap() error { return w.cause }
func (w *wrapped) PC() uintptr   { return w.pc }

// stack captures PCs starting at the caller of the exported constructor.
func stack(skip int) []uintptr {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(skip+2, pcs)
	return pcs[:n]
}

func pcOf(skip int) uintptr {
	var pcs [1]uintptr
	if runtime.Callers(skip+2, pcs[:]) == 0 {
		return 0
	}
	return pcs[0]
}

func New(msg string) error {
	return &stacked{err: errors.New(msg), pcs: stack(1)}
}

func Newf(format string, args ...any) error {
	return &stacked{err: fmt.Errorf(format, args...), pcs: stack(1)}
}

// WithStack attaches the current stack to err. nil stays nil.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return &stacked{err: err, pcs: stack(1)}
}

// EnsureTrace attaches a stack unless something in err's chain already has one.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	var sh stackHolder
	if errors.As(err, &sh) && len(sh.StackPCs()) > 0 {
		return err
	}
	return &stacked{err: err, pcs: stack(1)}
}

func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &wrapped{cause: err, msg: msg, pc: pcOf(1)}
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &wrapped{cause: err, msg: fmt.Sprintf(format, args...), pc: pcOf(1)}
}

// Re-exported so callers need a single errors import.
func Is(err, target error) bool { return errors.Is(err, target) }
func As(err error, target any) bool { return errors.As(err, target) }
func Join(errs ...error) error      { return errors.Join(errs...) }
