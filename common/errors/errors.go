// Package errors defines the error taxonomy shared by the order engine:
// validation, not-found, conflict and internal errors. Callers classify with
// errors.Is against the exported sentinels; the HTTP layer maps kinds to
// status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind discriminates error classes for retry and HTTP mapping decisions.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
)

// Sentinels for errors.Is checks.
var (
	ErrValidation = &Error{kind: KindValidation, msg: "validation error"}
	ErrNotFound   = &Error{kind: KindNotFound, msg: "not found"}
	ErrConflict   = &Error{kind: KindConflict, msg: "conflict"}
	ErrInternal   = &Error{kind: KindInternal, msg: "internal error"}
)

// Error is the concrete error type used across the engine.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// Is matches any error of the same kind, so errors.Is(err, ErrConflict)
// works regardless of the wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.kind == e.kind
}

func (e *Error) Kind() Kind { return e.kind }

// Validationf builds a client-facing validation error.
func Validationf(format string, args ...interface{}) *Error {
	return &Error{kind: KindValidation, msg: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a not-found error for an absent entity.
func NotFoundf(format string, args ...interface{}) *Error {
	return &Error{kind: KindNotFound, msg: fmt.Sprintf(format, args...)}
}

// Conflictf builds a conflict error for transactional write contention.
func Conflictf(format string, args ...interface{}) *Error {
	return &Error{kind: KindConflict, msg: fmt.Sprintf(format, args...)}
}

// Internalf builds an internal error (store unavailable and the like).
func Internalf(format string, args ...interface{}) *Error {
	return &Error{kind: KindInternal, msg: fmt.Sprintf(format, args...)}
}

// WrapValidation wraps err as a validation error with context.
func WrapValidation(err error, msg string) *Error {
	return &Error{kind: KindValidation, msg: msg, err: err}
}

// WrapConflict wraps err as a conflict error with context.
func WrapConflict(err error, msg string) *Error {
	return &Error{kind: KindConflict, msg: msg, err: err}
}

// WrapInternal wraps err as an internal error with context.
func WrapInternal(err error, msg string) *Error {
	return &Error{kind: KindInternal, msg: msg, err: err}
}

// HTTPStatus maps an error to the status code the API layer should return.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
