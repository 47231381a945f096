// Package service implements the business operations of the contacts
// manager: authentication, contact management scoped to the caller, and user
// administration.  Handlers translate the *Error values returned here into
// HTTP responses; any other error is an infrastructure failure.
package service

import (
	"errors"
	"fmt"
)

// Kinds of client-facing failure.  Compare with errors.Is.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
)

// Error carries a Kind sentinel together with the message shown to clients.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

// Unwrap lets errors.Is match the Kind.
func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func unauthorized(msg string) error { return newError(ErrUnauthorized, "%s", msg) }
func forbidden(msg string) error    { return newError(ErrForbidden, "%s", msg) }
func notFound(msg string) error     { return newError(ErrNotFound, "%s", msg) }
func conflict(msg string) error     { return newError(ErrConflict, "%s", msg) }

func invalid(format string, args ...any) error {
	return newError(ErrValidation, format, args...)
}
