// Package apperror defines the error kinds shared by the service layer and
// the transports that sit on top of it.
//
// Services return *AppError values wrapping one of the sentinel errors below.
// Transports use errors.Is to pick a status or a GraphQL outcome, and show
// Message to the caller. Anything that is not an *AppError is treated as an
// internal failure and its text is never shown.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
)

type AppError struct {
	Err     error  // sentinel kind
	Message string // human-readable, safe to show to clients
	Field   string // optional: input field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound reports a missing resource. id may be empty when the lookup key
// is not worth echoing back.
func NotFound(resource, id string) *AppError {
	msg := fmt.Sprintf("%s not found", resource)
	if id != "" {
		msg = fmt.Sprintf("%s not found with id %s", resource, id)
	}
	return &AppError{
		Err:     ErrNotFound,
		Message: msg,
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Message returns the client-safe text of err, or fallback when err is not
// an *AppError.
func Message(err error, fallback string) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return fallback
}
