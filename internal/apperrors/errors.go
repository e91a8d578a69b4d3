package apperrors

import (
	"errors"
	"fmt"
)

// Kind tags an error with the client-facing category it belongs to.
type Kind string

const (
	KindValidation            Kind = "ValidationError"
	KindDuplicateEmail        Kind = "DuplicateEmail"
	KindNotFound              Kind = "NotFound"
	KindInvalidCredentials    Kind = "InvalidCredentials"
	KindEmailNotVerified      Kind = "EmailNotVerified"
	KindInvalidCode           Kind = "InvalidCode"
	KindTokenExpired          Kind = "TokenExpired"
	KindInvalidToken          Kind = "InvalidToken"
	KindInvalidOrExpiredToken Kind = "InvalidOrExpiredToken"
	KindUnauthorized          Kind = "Unauthorized"
	KindUserNotFound          Kind = "UserNotFound"
	KindRateLimited           Kind = "RateLimited"
	KindDownstream            Kind = "DownstreamFailure"
)

// Error is the single error shape returned by the service layer.
// Message is safe to show to clients; Err is the internal cause and is only logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for the kinds the store layer reports.
var (
	ErrNotFound       = &Error{Kind: KindNotFound, Message: "resource not found"}
	ErrDuplicateEmail = &Error{Kind: KindDuplicateEmail, Message: "user already exists with this email"}
)

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Validation is shorthand for a 400-class input error.
func Validation(msg string) *Error { return New(KindValidation, msg) }

// Downstream wraps an unexpected failure (store outage, mail dispatch) behind a generic message.
func Downstream(err error) *Error {
	return Wrap(KindDownstream, "internal server error", err)
}

// KindOf reports the kind of err. Untagged errors are downstream failures.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindDownstream
}

// MessageOf returns the client-safe message for err.
func MessageOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Kind != KindDownstream {
		return ae.Message
	}
	return "internal server error"
}
