// Package middleware provides HTTP middleware for CodeVault authentication.
//
// The net/http core lives here; the chi, gin, echo and fiber subpackages
// adapt it to each framework.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/codevault/codevault"
	"github.com/codevault/codevault/store"
)

// contextKey is a type for context keys to avoid collisions.
type contextKey string

// UserKey is the context key for the authenticated *store.User.
const UserKey contextKey = "codevault_user"

// ErrMissingToken is returned when the request carries no bearer token.
var ErrMissingToken = codevault.NewError(codevault.CodeUnauthenticated, "not authenticated", codevault.ErrUnauthenticated)

// TokenExtractor extracts a token from an HTTP request.
type TokenExtractor func(r *http.Request) string

// ErrorHandler handles authentication errors.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Config holds middleware configuration.
type Config struct {
	// TokenExtractor extracts the token from the request.
	// Defaults to extracting from Authorization header.
	TokenExtractor TokenExtractor

	// ErrorHandler handles authentication errors.
	// Defaults to WriteError.
	ErrorHandler ErrorHandler

	// SkipPaths are paths that skip authentication.
	SkipPaths []string
}

// DefaultConfig returns a default middleware configuration.
func DefaultConfig() *Config {
	return &Config{
		TokenExtractor: ExtractFromHeader("Authorization", "Bearer"),
		ErrorHandler:   DefaultErrorHandler,
	}
}

func (c *Config) withDefaults() *Config {
	if c == nil {
		return DefaultConfig()
	}
	out := *c
	if out.TokenExtractor == nil {
		out.TokenExtractor = ExtractFromHeader("Authorization", "Bearer")
	}
	if out.ErrorHandler == nil {
		out.ErrorHandler = DefaultErrorHandler
	}
	return &out
}

// ExtractFromHeader creates a TokenExtractor that extracts from a header.
func ExtractFromHeader(header, scheme string) TokenExtractor {
	return func(r *http.Request) string {
		return ParseAuthHeader(r.Header.Get(header), scheme)
	}
}

// ParseAuthHeader returns the credentials of an "<scheme> <credentials>"
// header value, or "" when the scheme does not match. The scheme is
// compared case-insensitively. An empty scheme returns the value as is.
func ParseAuthHeader(value, scheme string) string {
	if value == "" || scheme == "" {
		return value
	}
	prefix := scheme + " "
	if len(value) > len(prefix) && strings.EqualFold(value[:len(prefix)], prefix) {
		return strings.TrimSpace(value[len(prefix):])
	}
	return ""
}

// ExtractFromCookie creates a TokenExtractor that extracts from a cookie.
func ExtractFromCookie(name string) TokenExtractor {
	return func(r *http.Request) string {
		cookie, err := r.Cookie(name)
		if err != nil {
			return ""
		}
		return cookie.Value
	}
}

// ChainExtractors chains multiple extractors, returning the first non-empty result.
func ChainExtractors(extractors ...TokenExtractor) TokenExtractor {
	return func(r *http.Request) string {
		for _, extractor := range extractors {
			if token := extractor(r); token != "" {
				return token
			}
		}
		return ""
	}
}

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

// NewErrorBody builds the response body for err. Messages of errors that
// are not client errors are replaced so internals never reach the client.
func NewErrorBody(err error) ErrorBody {
	code := codevault.CodeOf(err)
	if !codevault.IsClientError(err) {
		return ErrorBody{Detail: "internal server error", Code: code}
	}

	var e *codevault.Error
	if errors.As(err, &e) && e.Message != "" {
		return ErrorBody{Detail: e.Message, Code: code}
	}
	return ErrorBody{Detail: err.Error(), Code: code}
}

// DefaultErrorHandler is the default error handler.
func DefaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	WriteError(w, err)
}

// WriteError writes err as a JSON error response. 401 responses carry a
// Bearer challenge.
func WriteError(w http.ResponseWriter, err error) {
	status := ErrorToHTTPStatus(err)
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	WriteJSON(w, status, NewErrorBody(err))
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ErrorToHTTPStatus converts an error to an HTTP status code.
func ErrorToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, codevault.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, codevault.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, codevault.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, codevault.ErrConflict),
		errors.Is(err, codevault.ErrInvalidCredentials),
		errors.Is(err, codevault.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, codevault.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ShouldSkip checks if the request path should skip authentication.
func ShouldSkip(r *http.Request, skipPaths []string) bool {
	return MatchAny(r.URL.Path, skipPaths)
}

// MatchAny reports whether path matches any pattern.
func MatchAny(path string, patterns []string) bool {
	for _, p := range patterns {
		if matchPath(p, path) {
			return true
		}
	}
	return false
}

// matchPath checks if a path matches a pattern.
// Supports * as a wildcard for path segments.
func matchPath(pattern, path string) bool {
	if pattern == path {
		return true
	}

	// Handle wildcard patterns like /api/*
	if strings.HasSuffix(pattern, "/*") {
		prefix := pattern[:len(pattern)-2]
		return strings.HasPrefix(path, prefix)
	}

	// Handle wildcard patterns like /api/*/users
	if strings.Contains(pattern, "*") {
		patternParts := strings.Split(pattern, "/")
		pathParts := strings.Split(path, "/")

		if len(patternParts) != len(pathParts) {
			return false
		}

		for i, part := range patternParts {
			if part != "*" && part != pathParts[i] {
				return false
			}
		}
		return true
	}

	return false
}

// SetUser stores the authenticated user in the context.
func SetUser(ctx context.Context, user *store.User) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// GetUser retrieves the authenticated user from the context, or nil.
func GetUser(ctx context.Context) *store.User {
	if u, ok := ctx.Value(UserKey).(*store.User); ok {
		return u
	}
	return nil
}
