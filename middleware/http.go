package middleware

import (
	"context"
	"net/http"

	"github.com/codevault/codevault/store"
)

// Gate resolves bearer tokens and checks roles. *codevault.Vault
// implements it.
type Gate interface {
	CurrentUser(ctx context.Context, token string) (*store.User, error)
	RequireAdmin(user *store.User) error
}

// Authenticate creates a middleware that resolves the bearer token to a
// user and stores it in the request context.
func Authenticate(gate Gate, cfg *Config) func(http.Handler) http.Handler {
	cfg = cfg.withDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ShouldSkip(r, cfg.SkipPaths) {
				next.ServeHTTP(w, r)
				return
			}

			token := cfg.TokenExtractor(r)
			if token == "" {
				cfg.ErrorHandler(w, r, ErrMissingToken)
				return
			}

			user, err := gate.CurrentUser(r.Context(), token)
			if err != nil {
				cfg.ErrorHandler(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(SetUser(r.Context(), user)))
		})
	}
}

// RequireAdmin creates a middleware that lets only admins through. It must
// run after Authenticate.
func RequireAdmin(gate Gate, cfg *Config) func(http.Handler) http.Handler {
	cfg = cfg.withDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUser(r.Context())
			if user == nil {
				cfg.ErrorHandler(w, r, ErrMissingToken)
				return
			}

			if err := gate.RequireAdmin(user); err != nil {
				cfg.ErrorHandler(w, r, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// OptionalAuthenticate stores the user in the context when a valid token is
// present and lets every request through.
func OptionalAuthenticate(gate Gate, cfg *Config) func(http.Handler) http.Handler {
	cfg = cfg.withDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := cfg.TokenExtractor(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := gate.CurrentUser(r.Context(), token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(SetUser(r.Context(), user)))
		})
	}
}
