package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindUnauthorized ErrorKind = "UNAUTHORIZED"
	KindForbidden    ErrorKind = "FORBIDDEN"
	KindNotFound     ErrorKind = "NOT_FOUND"
	KindConflict     ErrorKind = "CONFLICT"
	KindValidation   ErrorKind = "VALIDATION"
	KindUpstream     ErrorKind = "UPSTREAM"
	KindInternal     ErrorKind = "INTERNAL"
)

// Error carries a kind that transports map to a status code.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Unauthorized(message string) *Error { return NewError(KindUnauthorized, message, nil) }
func Forbidden(message string) *Error    { return NewError(KindForbidden, message, nil) }
func NotFound(message string) *Error     { return NewError(KindNotFound, message, nil) }
func Conflict(message string) *Error     { return NewError(KindConflict, message, nil) }
func Validation(message string) *Error   { return NewError(KindValidation, message, nil) }

func Upstream(message string, err error) *Error { return NewError(KindUpstream, message, err) }
func Internal(message string, err error) *Error { return NewError(KindInternal, message, err) }

// KindOf reports the kind of err, KindInternal when err carries none.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

var (
	ErrBookingNotFound = NotFound("booking not found")
	ErrAlreadyPaid     = Conflict("booking is already paid")
)
