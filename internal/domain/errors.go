package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")
	ErrUpstream     = errors.New("upstream failure")
)

// Error is a client-facing message that belongs to one of the categories
// above. Its text omits the category, so it can be returned to callers as is.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }
func (e *Error) Unwrap() error { return e.Kind }

// Newf builds an *Error of the given category.
func Newf(kind error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Flow-specific errors. errors.Is(err, ErrOTPMismatch) and
// errors.Is(err, ErrConflict) both hold for ErrOTPMismatch.
var (
	ErrAlreadyRegistered  = Newf(ErrBadRequest, "email already registered")
	ErrMailDeliveryFailed = Newf(ErrUpstream, "failed to deliver email")
	ErrOTPNotFound        = Newf(ErrNotFound, "no pending OTP for this email or it has expired")
	ErrOTPMismatch        = Newf(ErrConflict, "invalid OTP")
	ErrNotVerified        = Newf(ErrConflict, "email not verified")
	ErrInvalidCredentials = Newf(ErrUnauthorized, "invalid email or password")

	ErrInvalidOwner   = Newf(ErrBadRequest, "owner does not exist")
	ErrCodeNotFound   = Newf(ErrNotFound, "connection code not found or expired")
	ErrSelfConnection = Newf(ErrConflict, "cannot connect with yourself")
	ErrCodeExpired    = Newf(ErrConflict, "connection code expired")
	ErrUsageExceeded  = Newf(ErrConflict, "connection code usage limit reached")
)
