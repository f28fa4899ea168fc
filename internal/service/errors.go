// Package service provides business logic for chat persistence and accounts.
package service

import "errors"

// Error kinds. Handlers map them to HTTP status codes with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("already exists")
	ErrUpstream   = errors.New("upstream request failed")
)

// Error is returned by services. Message is safe to show to callers; Err is
// the underlying cause and only ends up in logs.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap lets errors.Is match both the kind and the cause.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func validation(msg string) error {
	return &Error{Kind: ErrValidation, Message: msg}
}

func notFound(msg string) error {
	return &Error{Kind: ErrNotFound, Message: msg}
}

func conflict(msg string, err error) error {
	return &Error{Kind: ErrConflict, Message: msg, Err: err}
}

// internal wraps a persistence failure. It has no kind of its own and maps
// to a generic server error.
func internal(msg string, err error) error {
	return &Error{Kind: errInternal, Message: msg, Err: err}
}

var errInternal = errors.New("internal error")

// PublicMessage returns the caller-facing message of err, or fallback when
// err does not come from a service.
func PublicMessage(err error, fallback string) string {
	var svcErr *Error
	if errors.As(err, &svcErr) && svcErr.Message != "" {
		return svcErr.Message
	}
	return fallback
}
