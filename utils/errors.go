package utils

import (
	"errors"
	"net/http"
)

// ErrorKind classifies application errors for the API boundary.
type ErrorKind string

const (
	KindUnauthorized      ErrorKind = "unauthorized"
	KindForbidden         ErrorKind = "forbidden"
	KindNotFound          ErrorKind = "not_found"
	KindInvalidAmount     ErrorKind = "invalid_amount"
	KindValidation        ErrorKind = "validation"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindConflict          ErrorKind = "conflict"
	KindInternal          ErrorKind = "internal"
)

// AppError is returned by services. Message is safe to show to the caller;
// Err carries the underlying cause for logs only.
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// StatusCode maps the error kind to an HTTP status.
func (e *AppError) StatusCode() int {
	switch e.Kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidAmount, KindValidation, KindInsufficientFunds:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func newError(kind ErrorKind, msg string) *AppError {
	return &AppError{Kind: kind, Message: msg}
}

func Unauthorized(msg string) *AppError      { return newError(KindUnauthorized, msg) }
func Forbidden(msg string) *AppError         { return newError(KindForbidden, msg) }
func NotFound(msg string) *AppError          { return newError(KindNotFound, msg) }
func InvalidAmount(msg string) *AppError     { return newError(KindInvalidAmount, msg) }
func Validation(msg string) *AppError        { return newError(KindValidation, msg) }
func InsufficientFunds(msg string) *AppError { return newError(KindInsufficientFunds, msg) }
func Conflict(msg string) *AppError          { return newError(KindConflict, msg) }

// Internal wraps an unexpected failure. The caller only ever sees a generic message.
func Internal(err error, op string) *AppError {
	return &AppError{Kind: KindInternal, Message: op, Err: err}
}

// KindOf returns the kind of the first AppError in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
