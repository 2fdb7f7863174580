// Package apperr defines the error taxonomy shared by services and handlers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error.
type Kind int

const (
	// KindPersistence is an underlying store failure.
	KindPersistence Kind = iota
	// KindValidation is malformed, missing or out-of-range input.
	KindValidation
	// KindAuthorization means the actor lacks permission.
	KindAuthorization
	// KindNotFound means a resource id does not resolve.
	KindNotFound
	// KindConflict is a write that clashes with existing state, such as a
	// duplicate email.
	KindConflict
	// KindDecryption means a stored blob could not be decrypted.
	KindDecryption
	// KindUnauthenticated means credentials or a token are missing or wrong.
	KindUnauthenticated
	// KindInvalidToken means a bearer token failed verification.
	KindInvalidToken
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindDecryption:
		return "decryption"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindInvalidToken:
		return "invalid_token"
	default:
		return "persistence"
	}
}

// Status maps the kind to its HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindConflict:
		return http.StatusBadRequest
	case KindAuthorization, KindInvalidToken:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation returns a KindValidation error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Forbidden returns a KindAuthorization error.
func Forbidden(message string) *Error {
	return &Error{Kind: KindAuthorization, Message: message}
}

// NotFound returns a KindNotFound error.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Conflict returns a KindConflict error.
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// Unauthenticated returns a KindUnauthenticated error.
func Unauthenticated(message string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: message}
}

// InvalidToken wraps a token verification failure.
func InvalidToken(err error) *Error {
	return &Error{Kind: KindInvalidToken, Message: "Invalid token.", Err: err}
}

// Decryption wraps a cipher failure.
func Decryption(err error) *Error {
	return &Error{Kind: KindDecryption, Message: "failed to decrypt data", Err: err}
}

// Persistence wraps a store failure with the operation that hit it.
func Persistence(op string, err error) *Error {
	return &Error{Kind: KindPersistence, Message: op, Err: err}
}

// KindOf reports the kind of err. Unclassified errors count as persistence
// failures.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindPersistence
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// PublicMessage returns the client-facing message for err. Persistence
// details are only revealed when verbose is set.
func PublicMessage(err error, verbose bool) string {
	var appErr *Error
	if !errors.As(err, &appErr) {
		if verbose {
			return err.Error()
		}
		return "Something went wrong. Please try again later."
	}
	if appErr.Kind == KindPersistence {
		if verbose {
			return appErr.Error()
		}
		return "Something went wrong. Please try again later."
	}
	return appErr.Message
}
