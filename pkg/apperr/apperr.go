// Package apperr carries domain failures from services to the HTTP boundary
// with a stable machine-readable kind.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure.
type Kind string

const (
	KindNotFound          Kind = "NOT_FOUND"
	KindInvalidTransition Kind = "INVALID_TRANSITION"
	KindDuplicate         Kind = "DUPLICATE_ENTITY"
	KindUnauthorized      Kind = "UNAUTHORIZED"
	KindForbidden         Kind = "FORBIDDEN"
	KindValidation        Kind = "VALIDATION_ERROR"
	KindNotVerified       Kind = "NOT_VERIFIED"
	KindInvalidCredential Kind = "INVALID_CREDENTIAL"
	KindSlotTaken         Kind = "SLOT_TAKEN"
	KindUpstream          Kind = "UPSTREAM_ERROR"
	KindInternal          Kind = "INTERNAL_SERVER_ERROR"
)

// Error is a classified domain error.
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
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

// Wrap attaches a cause that is logged server-side but never shown to callers.
func Wrap(kind Kind, msg string, err error) *Error { return &Error{Kind: kind, Message: msg, Err: err} }

func NotFound(what string) *Error { return New(KindNotFound, what+" not found") }

func InvalidTransition(msg string) *Error { return New(KindInvalidTransition, msg) }

func Duplicate(msg string) *Error { return New(KindDuplicate, msg) }

func Validation(msg string) *Error { return New(KindValidation, msg) }

func Forbidden(msg string) *Error { return New(KindForbidden, msg) }

func Unauthorized(msg string) *Error { return New(KindUnauthorized, msg) }

// Domain sentinels.
var (
	ErrDuplicateIdentity = New(KindDuplicate, "an account with this email already exists")
	ErrDuplicateReview   = New(KindDuplicate, "you have already reviewed this case")
	ErrSlotTaken         = New(KindSlotTaken, "this time slot is already booked")
	ErrInvalidCredential = New(KindInvalidCredential, "invalid email or password")
	ErrNotVerified       = New(KindNotVerified, "your account is awaiting admin verification")
	ErrInvalidToken      = New(KindUnauthorized, "invalid or expired token")
	ErrInvalidClient     = New(KindUnauthorized, "client could not be resolved from token")
)

// KindOf reports the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
