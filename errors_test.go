package codevault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/codevault/codevault/store"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name: "with wrapped error",
			err: &Error{
				Code:    CodeConflict,
				Message: "duplicate",
				Err:     ErrConflict,
			},
			expected: "CONFLICT: duplicate: username or email already exists",
		},
		{
			name: "without wrapped error",
			err: &Error{
				Code:    CodeForbidden,
				Message: "access denied",
			},
			expected: "FORBIDDEN: access denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error.Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := NewError(CodeNotFound, "missing", underlying)

	if err.Unwrap() != underlying {
		t.Error("Unwrap() should return the underlying error")
	}
	if !errors.Is(err, underlying) {
		t.Error("errors.Is should find underlying error")
	}
}

func TestWrapError(t *testing.T) {
	err := WrapError(ErrForbidden, "cannot delete self")

	if err.Code != CodeForbidden {
		t.Errorf("Code = %q, want %q", err.Code, CodeForbidden)
	}
	if !errors.Is(err, ErrForbidden) {
		t.Error("errors.Is should find ErrForbidden")
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrConflict, CodeConflict},
		{ErrInvalidCredentials, CodeInvalidCredentials},
		{ErrInvalidInput, CodeInvalidInput},
		{ErrUnauthenticated, CodeUnauthenticated},
		{ErrForbidden, CodeForbidden},
		{ErrNotFound, CodeNotFound},
		{ErrRateLimited, CodeRateLimited},
		{ErrConfigInvalid, CodeConfigInvalid},
		{ErrStoreRequired, CodeStoreRequired},
		{fmt.Errorf("wrapped: %w", ErrNotFound), CodeNotFound},
		{NewError("CUSTOM", "custom", ErrNotFound), "CUSTOM"},
		{store.ErrNotFound, CodeInternal},
		{errors.New("boom"), CodeInternal},
	}

	for _, tt := range tests {
		if got := CodeOf(tt.err); got != tt.want {
			t.Errorf("CodeOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestErrorClassifiers(t *testing.T) {
	if !IsAuthError(unauthenticated()) {
		t.Error("IsAuthError(unauthenticated) = false")
	}
	if IsAuthError(ErrConflict) {
		t.Error("IsAuthError(ErrConflict) = true")
	}
	if !IsClientError(snippetNotFound()) {
		t.Error("IsClientError(snippetNotFound) = false")
	}
	if IsClientError(errors.New("boom")) {
		t.Error("IsClientError(boom) = true")
	}
	if !IsConfigError(fmt.Errorf("%w: bad", ErrConfigInvalid)) {
		t.Error("IsConfigError(ErrConfigInvalid) = false")
	}
}
