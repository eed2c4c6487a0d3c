package token

import (
	"errors"
	"fmt"
)

// ErrInvalidToken is matched by every verification failure.
var ErrInvalidToken = errors.New("invalid token")

// Verification failures. Each wraps ErrInvalidToken.
var (
	// ErrTokenExpired indicates the expiry is not after the current time.
	ErrTokenExpired = fmt.Errorf("%w: token has expired", ErrInvalidToken)

	// ErrTokenNotYetValid indicates the token's nbf or iat is in the future.
	ErrTokenNotYetValid = fmt.Errorf("%w: token is not yet valid", ErrInvalidToken)

	// ErrTokenMalformed indicates the token or its payload cannot be decoded,
	// or a required claim is absent.
	ErrTokenMalformed = fmt.Errorf("%w: token is malformed", ErrInvalidToken)

	// ErrTokenInvalidSig indicates a bad signature or unexpected algorithm.
	ErrTokenInvalidSig = fmt.Errorf("%w: token signature is invalid", ErrInvalidToken)

	// ErrTokenInvalidIssuer indicates the iss claim does not match.
	ErrTokenInvalidIssuer = fmt.Errorf("%w: token issuer is invalid", ErrInvalidToken)

	// ErrMissingSubject indicates the sub claim is absent or empty.
	ErrMissingSubject = fmt.Errorf("%w: token subject is missing", ErrInvalidToken)
)

// Configuration errors.
var (
	ErrMissingSecret     = errors.New("token secret is required")
	ErrUnsupportedMethod = errors.New("unsupported signing method")
	ErrEmptySubject      = errors.New("token subject cannot be empty")
)
