package codevault

import (
	"errors"
	"fmt"
)

// Error codes for categorizing errors. They are stable and safe to expose to
// clients.
const (
	CodeConflict           = "CONFLICT"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeUnauthenticated    = "UNAUTHENTICATED"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeRateLimited        = "RATE_LIMITED"
	CodeConfigInvalid      = "CONFIG_INVALID"
	CodeStoreRequired      = "STORE_REQUIRED"
	CodeInternal           = "INTERNAL"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrConflict indicates the username or email is already registered.
	ErrConflict = errors.New("username or email already exists")

	// ErrInvalidCredentials is returned for any failed login, whether the
	// account exists or not.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidInput indicates a request field failed validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthenticated indicates a missing, invalid or expired token, or a
	// token whose user no longer exists.
	ErrUnauthenticated = errors.New("could not validate credentials")

	// ErrForbidden indicates a valid identity lacking the required role, or
	// an admin acting on its own account.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound indicates the target entity does not exist or is not
	// visible to the caller.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited indicates too many login attempts.
	ErrRateLimited = errors.New("too many attempts")

	// Config errors
	ErrConfigInvalid = errors.New("configuration is invalid")
	ErrStoreRequired = errors.New("store is required")
)

// Error is a structured error type that includes an error code and optional
// wrapped error. Messages never carry passwords or hashes.
type Error struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is() and errors.As().
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error with the given code, message, and optional
// wrapped error.
func NewError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WrapError wraps a sentinel error with additional context. The code is
// derived from the sentinel.
func WrapError(err error, message string) *Error {
	return &Error{
		Code:    CodeOf(err),
		Message: message,
		Err:     err,
	}
}

// CodeOf returns the code for err. An *Error in the chain wins; otherwise
// the code of the first matching sentinel, or CodeInternal.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	switch {
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrInvalidCredentials):
		return CodeInvalidCredentials
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrUnauthenticated):
		return CodeUnauthenticated
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrConfigInvalid):
		return CodeConfigInvalid
	case errors.Is(err, ErrStoreRequired):
		return CodeStoreRequired
	default:
		return CodeInternal
	}
}

// IsAuthError returns true if the error rejects the caller's identity or
// role.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthenticated) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrForbidden)
}

// IsClientError returns true if the error is caused by the request rather
// than by the server.
func IsClientError(err error) bool {
	return IsAuthError(err) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrRateLimited)
}

// IsConfigError returns true if the error is a configuration-related error.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfigInvalid) ||
		errors.Is(err, ErrStoreRequired)
}

func invalidInput(format string, args ...any) error {
	return NewError(CodeInvalidInput, fmt.Sprintf(format, args...), ErrInvalidInput)
}
