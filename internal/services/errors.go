package services

import (
	"errors"
	"fmt"

	"together-backend/internal/repository"
)

var (
	// ErrNotFound is returned when a requested resource does not exist
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the caller may not access a resource
	ErrForbidden = errors.New("forbidden")
	// ErrNoPartner is returned when an operation needs a connected partner
	ErrNoPartner = errors.New("no connected partner")
	// ErrUnauthorized is returned for bad credentials
	ErrUnauthorized = errors.New("unauthorized")
)

// Error is a failure of one of the sentinel kinds with a message fit for
// the API response
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ValidationError reports malformed or missing input
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ConflictError reports an operation that is not allowed in the current state
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return e.Reason
}

func conflict(reason string) error {
	return &ConflictError{Reason: reason}
}

// notFound maps a repository miss onto ErrNotFound
func notFound(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return newError(ErrNotFound, "%s not found", what)
	}
	return err
}
