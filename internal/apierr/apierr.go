// Package apierr is the error taxonomy of the public API and the single place
// errors become HTTP responses.
//
// Handlers return errors; Handle converts whatever comes back. Known failures
// are *Error values with a Kind. Anything else is treated as Unexpected: the
// client gets a generic 500 body and the full error goes to the log only.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/keithlinneman/linnemanlabs-api/internal/log"
	"github.com/keithlinneman/linnemanlabs-api/internal/sanitize"
)

type Kind int

const (
	Unexpected Kind = iota
	Validation
	NotFound
	BadRequest
	PayloadTooLarge
	UnsupportedMediaType
	RateLimited
	MethodNotAllowed
)

var kindNames = [...]string{
	Unexpected:           "unexpected",
	Validation:           "validation",
	NotFound:             "not_found",
	BadRequest:           "bad_request",
	PayloadTooLarge:      "payload_too_large",
	UnsupportedMediaType: "unsupported_media_type",
	RateLimited:          "rate_limited",
	MethodNotAllowed:     "method_not_allowed",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

// Status is the HTTP status code for k.
func (k Kind) Status() int {
	switch k {
	case Validation:
		return http.StatusUnprocessableEntity
	case NotFound:
		return http.StatusNotFound
	case BadRequest:
		return http.StatusBadRequest
	case PayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case UnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	case RateLimited:
		return http.StatusTooManyRequests
	case MethodNotAllowed:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// FieldError describes one failed constraint on a request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is a client-facing failure. Message is safe to return verbatim.
type Error struct {
	Kind       Kind
	Message    string
	Details    []FieldError
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func NewValidation(details ...FieldError) *Error {
	return &Error{Kind: Validation, Message: "Validation error", Details: details}
}

func NewNotFound(msg string) *Error { return &Error{Kind: NotFound, Message: msg} }

func NewBadRequest(msg string) *Error { return &Error{Kind: BadRequest, Message: msg} }

func NewPayloadTooLarge() *Error {
	return &Error{Kind: PayloadTooLarge, Message: "Payload Too Large"}
}

func NewUnsupportedMediaType() *Error {
	return &Error{Kind: UnsupportedMediaType, Message: "Unsupported Media Type"}
}

func NewMethodNotAllowed() *Error {
	return &Error{Kind: MethodNotAllowed, Message: "Method Not Allowed"}
}

func NewRateLimited(retryAfter time.Duration) *Error {
	return &Error{Kind: RateLimited, Message: "Too Many Requests", RetryAfter: retryAfter}
}

// From classifies err. Request body overruns from http.MaxBytesReader become
// PayloadTooLarge wherever they surface; everything unknown is Unexpected.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		pt := NewPayloadTooLarge()
		pt.Err = err
		return pt
	}
	return NewUnexpected(err)
}

// NewUnexpected wraps err as a 500 with the generic client message.
func NewUnexpected(err error) *Error {
	return &Error{Kind: Unexpected, Message: "Internal server error", Err: err}
}

// KindOf returns the Kind err would be answered with. nil is Unexpected.
func KindOf(err error) Kind { return From(err).Kind }

type body struct {
	Error   string       `json:"error"`
	Path    string       `json:"path"`
	Details []FieldError `json:"details,omitempty"`
}

// Write answers the request with err's JSON form and logs it with the
// request logger: 5xx at error level with the full chain, the rest at warn.
func Write(w http.ResponseWriter, r *http.Request, err error) {
	e := From(err)
	status := e.Kind.Status()
	ctx := r.Context()
	l := log.FromContext(ctx)

	if status >= 500 {
		l.Error(ctx, err, "request failed", "status", status)
	} else {
		l.Warn(ctx, "request rejected",
			"status", status,
			"kind", e.Kind.String(),
			"reason", sanitize.Text(e.Message),
		)
	}

	Respond(w, r, e)
}

// Respond writes e's JSON form without logging. Callers that have already
// logged the failure in more detail (panic recovery) use it directly.
func Respond(w http.ResponseWriter, r *http.Request, e *Error) {
	if e.Kind == RateLimited {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(e.RetryAfter)))
	}
	WriteJSON(w, e.Kind.Status(), body{Error: e.Message, Path: r.URL.Path, Details: e.Details})
}

// WriteJSON writes v as the response body with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// retryAfterSeconds rounds up so clients never retry inside the window.
func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	return int(math.Ceil(d.Seconds()))
}

// HandlerFunc is an http handler that reports failure by returning an error.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Handle adapts fn to http.HandlerFunc. A non-nil error is written with Write;
// fn must not have written a response in that case.
func Handle(fn HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			Write(w, r, err)
		}
	}
}
