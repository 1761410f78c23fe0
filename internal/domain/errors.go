package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the application. Every *Error wraps one of these so
// callers can classify with errors.Is.
var (
	ErrNotFound         = errors.New("resource not found")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrForbidden        = errors.New("forbidden")
	ErrConflict         = errors.New("resource already exists")
	ErrInternal         = errors.New("internal server error")
	ErrValidation       = errors.New("validation error")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrRateLimited      = errors.New("rate limit exceeded")
)

// Error carries a user-facing message on top of a sentinel kind.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

func newError(kind error, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func NotFound(msg string) error         { return newError(ErrNotFound, msg) }
func Forbidden(msg string) error        { return newError(ErrForbidden, msg) }
func Validation(msg string) error       { return newError(ErrValidation, msg) }
func InvalidOperation(msg string) error { return newError(ErrInvalidOperation, msg) }
func Unauthenticated(msg string) error  { return newError(ErrUnauthenticated, msg) }

func Validationf(format string, args ...any) error {
	return newError(ErrValidation, fmt.Sprintf(format, args...))
}

// Internal wraps an unexpected failure; the cause is logged, never shown.
func Internal(msg string, cause error) error {
	return &Error{Kind: ErrInternal, Message: msg, Cause: cause}
}

// ErrorMessage returns the user-facing text of err, or fallback when err
// does not carry one.
func ErrorMessage(err error, fallback string) string {
	var de *Error
	if errors.As(err, &de) && de.Kind != ErrInternal {
		return de.Message
	}
	return fallback
}

// Code is the stable machine-readable name of an error kind.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "UNAUTHENTICATED"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrValidation):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrInvalidOperation):
		return "INVALID_OPERATION"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrRateLimited):
		return "RATE_LIMITED"
	default:
		return "INTERNAL"
	}
}
