// Package echo provides Echo middleware for CodeVault authentication.
package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/codevault/codevault/middleware"
	"github.com/codevault/codevault/store"
)

// UserKey is the key the authenticated *store.User is stored under.
const UserKey = "codevault_user"

// Config holds Echo-specific middleware configuration.
type Config struct {
	// TokenExtractor extracts the token from the Echo context.
	// Defaults to extracting from Authorization header.
	TokenExtractor TokenExtractor

	// ErrorHandler handles authentication errors.
	ErrorHandler ErrorHandler

	// SkipPaths are paths that skip authentication.
	SkipPaths []string
}

// TokenExtractor extracts a token from an Echo context.
type TokenExtractor func(c echo.Context) string

// ErrorHandler handles authentication errors in Echo.
type ErrorHandler func(c echo.Context, err error) error

// DefaultConfig returns a default Echo middleware configuration.
func DefaultConfig() *Config {
	return &Config{
		TokenExtractor: ExtractFromHeader("Authorization", "Bearer"),
		ErrorHandler:   DefaultErrorHandler,
	}
}

// ExtractFromHeader creates a token extractor that extracts from a header.
func ExtractFromHeader(header, scheme string) TokenExtractor {
	return func(c echo.Context) string {
		return middleware.ParseAuthHeader(c.Request().Header.Get(header), scheme)
	}
}

// ExtractFromCookie creates a token extractor that extracts from a cookie.
func ExtractFromCookie(name string) TokenExtractor {
	return func(c echo.Context) string {
		cookie, err := c.Cookie(name)
		if err != nil {
			return ""
		}
		return cookie.Value
	}
}

// DefaultErrorHandler writes the error as JSON.
func DefaultErrorHandler(c echo.Context, err error) error {
	code := middleware.ErrorToHTTPStatus(err)
	if code == http.StatusUnauthorized {
		c.Response().Header().Set("WWW-Authenticate", "Bearer")
	}
	return c.JSON(code, middleware.NewErrorBody(err))
}

// Authenticate creates an Echo middleware that resolves bearer tokens.
func Authenticate(gate middleware.Gate, cfg *Config) echo.MiddlewareFunc {
	cfg = withDefaults(cfg)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if middleware.MatchAny(c.Request().URL.Path, cfg.SkipPaths) {
				return next(c)
			}

			token := cfg.TokenExtractor(c)
			if token == "" {
				return cfg.ErrorHandler(c, middleware.ErrMissingToken)
			}

			user, err := gate.CurrentUser(c.Request().Context(), token)
			if err != nil {
				return cfg.ErrorHandler(c, err)
			}

			c.Set(UserKey, user)
			c.SetRequest(c.Request().WithContext(middleware.SetUser(c.Request().Context(), user)))
			return next(c)
		}
	}
}

// RequireAdmin creates an Echo middleware that lets only admins through.
func RequireAdmin(gate middleware.Gate, cfg *Config) echo.MiddlewareFunc {
	cfg = withDefaults(cfg)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := User(c)
			if user == nil {
				return cfg.ErrorHandler(c, middleware.ErrMissingToken)
			}
			if err := gate.RequireAdmin(user); err != nil {
				return cfg.ErrorHandler(c, err)
			}
			return next(c)
		}
	}
}

// User retrieves the authenticated user from the Echo context.
func User(c echo.Context) *store.User {
	if u, ok := c.Get(UserKey).(*store.User); ok {
		return u
	}
	return nil
}

func withDefaults(cfg *Config) *Config {
	if cfg == nil {
		return DefaultConfig()
	}
	out := *cfg
	if out.TokenExtractor == nil {
		out.TokenExtractor = ExtractFromHeader("Authorization", "Bearer")
	}
	if out.ErrorHandler == nil {
		out.ErrorHandler = DefaultErrorHandler
	}
	return &out
}
