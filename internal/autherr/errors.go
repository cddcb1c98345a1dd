// Package autherr defines the error kinds returned across the identity core.
// Every failure a caller can act on carries a Kind; infrastructure failures are
// wrapped plain errors without one.
package autherr

import (
	"errors"
	"fmt"
)

// Kind classifies an identity error so callers can map it to a response without string matching.
type Kind string

const (
	KindDuplicateAccount   Kind = "duplicate_account"
	KindAccountNotFound    Kind = "account_not_found"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindAccountInactive    Kind = "account_inactive"
	KindAccountUnverified  Kind = "account_unverified"
	KindChallengeNotFound  Kind = "challenge_not_found"
	KindChallengeExpired   Kind = "challenge_expired"
	KindCodeMismatch       Kind = "code_mismatch"
	KindResetNotAuthorized Kind = "reset_not_authorized"
	KindTokenInvalid       Kind = "token_invalid"
	KindTokenExpired       Kind = "token_expired"
	KindValidation         Kind = "validation_error"
	KindDeliveryFailed     Kind = "delivery_failed"
)

// Error is a structured identity error: a kind, a human-readable message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind, so errors.Is(err, ErrCodeMismatch)
// matches regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is matching. Returned as-is where no extra context is useful.
var (
	ErrDuplicateAccount   = &Error{Kind: KindDuplicateAccount, Message: "account already exists"}
	ErrAccountNotFound    = &Error{Kind: KindAccountNotFound, Message: "account not found"}
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Message: "invalid credentials"}
	ErrAccountInactive    = &Error{Kind: KindAccountInactive, Message: "account is inactive"}
	ErrAccountUnverified  = &Error{Kind: KindAccountUnverified, Message: "account email is not verified"}
	ErrChallengeNotFound  = &Error{Kind: KindChallengeNotFound, Message: "no pending code for this request"}
	ErrChallengeExpired   = &Error{Kind: KindChallengeExpired, Message: "code expired"}
	ErrCodeMismatch       = &Error{Kind: KindCodeMismatch, Message: "invalid code"}
	ErrResetNotAuthorized = &Error{Kind: KindResetNotAuthorized, Message: "password reset not authorized"}
	ErrTokenInvalid       = &Error{Kind: KindTokenInvalid, Message: "invalid token"}
	ErrTokenExpired       = &Error{Kind: KindTokenExpired, Message: "token expired"}
	ErrValidation         = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrDeliveryFailed     = &Error{Kind: KindDeliveryFailed, Message: "failed to deliver code"}
)

// New returns an Error of the given kind with a specific message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap returns an Error of the given kind that keeps cause reachable through errors.Unwrap.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// Validation returns a validation_error with the given message.
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
