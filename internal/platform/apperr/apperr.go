// Package apperr classifies failures so that callers can tell a bad request
// from a resource conflict or a flaky network without parsing messages.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Kind is the category of an Error.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindTransient    Kind = "transient"
	KindNotFound     Kind = "not_found"
	KindInvalidState Kind = "invalid_state"
	KindInFlight     Kind = "in_flight"
	KindInternal     Kind = "internal"
)

// Sentinels for errors.Is matching against a kind.
var (
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("resource conflict")
	ErrTransient    = errors.New("transient failure")
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state transition")
	ErrInFlight     = errors.New("operation already in progress")
	ErrInternal     = errors.New("internal error")
)

var sentinels = map[Kind]error{
	KindValidation:   ErrValidation,
	KindConflict:     ErrConflict,
	KindTransient:    ErrTransient,
	KindNotFound:     ErrNotFound,
	KindInvalidState: ErrInvalidState,
	KindInFlight:     ErrInFlight,
	KindInternal:     ErrInternal,
}

// Error carries a Kind, the operation that failed and a human-readable
// message suitable for operators.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

func newErr(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Validation reports a missing or malformed input caught before any network call.
func Validation(op, format string, args ...interface{}) *Error {
	return newErr(KindValidation, op, format, args...)
}

// Conflict reports that the server rejected a change because the resource is
// already in a conflicting state. Conflicts must not be retried automatically.
func Conflict(op, format string, args ...interface{}) *Error {
	return newErr(KindConflict, op, format, args...)
}

// NotFound reports a missing resource.
func NotFound(op, format string, args ...interface{}) *Error {
	return newErr(KindNotFound, op, format, args...)
}

// InvalidState reports a workflow step requested from the wrong state.
func InvalidState(op, format string, args ...interface{}) *Error {
	return newErr(KindInvalidState, op, format, args...)
}

// InFlight reports that another mutating call holds the same key.
func InFlight(op, key string) *Error {
	return newErr(KindInFlight, op, "another operation on %s is still pending", key)
}

// Transient wraps a network or timeout failure that is safe to retry.
func Transient(op string, err error) *Error {
	return &Error{Kind: KindTransient, Op: op, Message: err.Error(), Err: err}
}

// Internal wraps an unexpected failure.
func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Op: op, Message: err.Error(), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsRetryable reports whether the failure is safe to retry without operator input.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}

// HTTPStatus maps an error to the status code returned by the HTTP API.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict, KindInvalidState:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindInFlight:
		return http.StatusTooManyRequests
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HTTPError converts err into the echo error returned by handlers. The body
// carries the kind so clients can branch on it.
func HTTPError(err error) *echo.HTTPError {
	return echo.NewHTTPError(HTTPStatus(err), map[string]string{
		"kind":    string(KindOf(err)),
		"message": err.Error(),
	})
}
