// Package apperr classifies domain failures so transport layers can map
// them to status codes without inspecting error strings.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the failure class of an Error.
type Kind int

const (
	// Internal is an unexpected fault; details stay out of responses.
	Internal Kind = iota
	// NotFound means the referenced entity does not exist.
	NotFound
	// Conflict means a precondition was violated by current state
	// (already reviewed, already marked, duplicate pending request).
	Conflict
	// Forbidden means the caller is not allowed to act on the entity.
	Forbidden
	// Validation means a schema or value constraint failed.
	Validation
	// InsufficientFunds means a points/credits spend was denied.
	InsufficientFunds
	// Unavailable means a required external dependency failed.
	Unavailable
)

// Error carries a Kind and a user-facing detail message.
type Error struct {
	Kind   Kind
	Detail string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Detail, e.cause)
	}
	return e.Detail
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches two apperr.Errors by Kind, so callers can do
// errors.Is(err, apperr.NotFoundf("")) style sentinels via KindOf instead.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an Error with a formatted detail.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause; the detail is what callers see.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), cause: cause}
}

// NotFoundf is shorthand for New(NotFound, ...).
func NotFoundf(format string, args ...any) *Error { return New(NotFound, format, args...) }

// Conflictf is shorthand for New(Conflict, ...).
func Conflictf(format string, args ...any) *Error { return New(Conflict, format, args...) }

// Forbiddenf is shorthand for New(Forbidden, ...).
func Forbiddenf(format string, args ...any) *Error { return New(Forbidden, format, args...) }

// Validationf is shorthand for New(Validation, ...).
func Validationf(format string, args ...any) *Error { return New(Validation, format, args...) }

// InsufficientFundsf builds a denial that names required and available.
func InsufficientFundsf(required, available int) *Error {
	return New(InsufficientFunds, "insufficient points: need %d, have %d", required, available)
}

// Unavailablef is shorthand for New(Unavailable, ...).
func Unavailablef(format string, args ...any) *Error { return New(Unavailable, format, args...) }

// KindOf extracts the Kind from err, defaulting to Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a Kind to its response status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case NotFound:
		return http.StatusNotFound
	case Conflict, InsufficientFunds:
		return http.StatusBadRequest
	case Forbidden:
		return http.StatusForbidden
	case Validation:
		return http.StatusUnprocessableEntity
	case Unavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Detail returns the user-facing message for err. Internal faults get a
// generic detail so causes never leak.
func Detail(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Detail
	}
	return "internal server error"
}
