// Package fiber provides Fiber middleware for CodeVault authentication.
package fiber

import (
	"github.com/gofiber/fiber/v2"

	"github.com/codevault/codevault/middleware"
	"github.com/codevault/codevault/store"
)

// UserKey is the Locals key the authenticated *store.User is stored under.
const UserKey = "codevault_user"

// Config holds Fiber-specific middleware configuration.
type Config struct {
	// TokenExtractor extracts the token from the Fiber context.
	// Defaults to extracting from Authorization header.
	TokenExtractor TokenExtractor

	// ErrorHandler handles authentication errors.
	ErrorHandler ErrorHandler

	// SkipPaths are paths that skip authentication.
	SkipPaths []string
}

// TokenExtractor extracts a token from a Fiber context.
type TokenExtractor func(c *fiber.Ctx) string

// ErrorHandler handles authentication errors in Fiber.
type ErrorHandler func(c *fiber.Ctx, err error) error

// DefaultConfig returns a default Fiber middleware configuration.
func DefaultConfig() *Config {
	return &Config{
		TokenExtractor: ExtractFromHeader("Authorization", "Bearer"),
		ErrorHandler:   DefaultErrorHandler,
	}
}

// ExtractFromHeader creates a token extractor that extracts from a header.
func ExtractFromHeader(header, scheme string) TokenExtractor {
	return func(c *fiber.Ctx) string {
		return middleware.ParseAuthHeader(c.Get(header), scheme)
	}
}

// ExtractFromCookie creates a token extractor that extracts from a cookie.
func ExtractFromCookie(name string) TokenExtractor {
	return func(c *fiber.Ctx) string {
		return c.Cookies(name)
	}
}

// DefaultErrorHandler writes the error as JSON.
func DefaultErrorHandler(c *fiber.Ctx, err error) error {
	code := middleware.ErrorToHTTPStatus(err)
	if code == fiber.StatusUnauthorized {
		c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
	}
	return c.Status(code).JSON(middleware.NewErrorBody(err))
}

// Authenticate creates a Fiber middleware that resolves bearer tokens.
func Authenticate(gate middleware.Gate, cfg *Config) fiber.Handler {
	cfg = withDefaults(cfg)

	return func(c *fiber.Ctx) error {
		if middleware.MatchAny(c.Path(), cfg.SkipPaths) {
			return c.Next()
		}

		token := cfg.TokenExtractor(c)
		if token == "" {
			return cfg.ErrorHandler(c, middleware.ErrMissingToken)
		}

		user, err := gate.CurrentUser(c.UserContext(), token)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		c.Locals(UserKey, user)
		c.SetUserContext(middleware.SetUser(c.UserContext(), user))
		return c.Next()
	}
}

// RequireAdmin creates a Fiber middleware that lets only admins through.
func RequireAdmin(gate middleware.Gate, cfg *Config) fiber.Handler {
	cfg = withDefaults(cfg)

	return func(c *fiber.Ctx) error {
		user := User(c)
		if user == nil {
			return cfg.ErrorHandler(c, middleware.ErrMissingToken)
		}
		if err := gate.RequireAdmin(user); err != nil {
			return cfg.ErrorHandler(c, err)
		}
		return c.Next()
	}
}

// User retrieves the authenticated user from Fiber's Locals.
func User(c *fiber.Ctx) *store.User {
	if u, ok := c.Locals(UserKey).(*store.User); ok {
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
