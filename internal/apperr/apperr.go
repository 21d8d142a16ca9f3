// Package apperr classifies service errors so transports can map them to
// status codes without knowing the services that produced them.
package apperr

import (
	"errors"
	"net/http"
)

// Kind is the category of a failure.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindUnauthorized
	KindForbidden
	KindConflict
)

// Error carries a caller-facing message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports a malformed or rejected request.
func Validation(msg string) error { return &Error{Kind: KindValidation, Message: msg} }

// NotFound reports a missing resource.
func NotFound(msg string) error { return &Error{Kind: KindNotFound, Message: msg} }

// Unauthorized reports missing or bad credentials.
func Unauthorized(msg string) error { return &Error{Kind: KindUnauthorized, Message: msg} }

// Forbidden reports an authenticated caller lacking permission.
func Forbidden(msg string) error { return &Error{Kind: KindForbidden, Message: msg} }

// Conflict reports a clash with existing state, such as a duplicate key.
func Conflict(msg string) error { return &Error{Kind: KindConflict, Message: msg} }

// Wrap attaches a kind and message to a lower-level error.
func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-facing message of a classified error.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}

// StatusOf maps err to an HTTP status code.
func StatusOf(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
