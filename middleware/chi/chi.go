// Package chi provides Chi middleware for CodeVault authentication.
// Chi uses standard net/http middleware, so this package provides
// aliases and helpers for convenience.
package chi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/codevault/codevault/middleware"
	"github.com/codevault/codevault/store"
)

// Config is an alias for middleware.Config.
type Config = middleware.Config

// Gate is an alias for middleware.Gate.
type Gate = middleware.Gate

// DefaultConfig returns a default middleware configuration.
func DefaultConfig() *Config {
	return middleware.DefaultConfig()
}

// Authenticate creates a Chi middleware that resolves bearer tokens.
func Authenticate(gate Gate, cfg *Config) func(http.Handler) http.Handler {
	return middleware.Authenticate(gate, cfg)
}

// RequireAdmin creates a Chi middleware that lets only admins through.
func RequireAdmin(gate Gate, cfg *Config) func(http.Handler) http.Handler {
	return middleware.RequireAdmin(gate, cfg)
}

// OptionalAuthenticate creates a middleware that resolves bearer tokens if present.
func OptionalAuthenticate(gate Gate, cfg *Config) func(http.Handler) http.Handler {
	return middleware.OptionalAuthenticate(gate, cfg)
}

// User retrieves the authenticated user from the request context.
func User(r *http.Request) *store.User {
	return middleware.GetUser(r.Context())
}

// RoutePattern returns the matched route pattern, or the raw path when no
// route matched.
func RoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// URLParam returns a URL parameter from Chi's route context.
func URLParam(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}

// URLParamInt64 parses a URL parameter as a positive id.
func URLParamInt64(r *http.Request, key string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
