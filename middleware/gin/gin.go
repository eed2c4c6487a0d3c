// Package gin provides Gin middleware for CodeVault authentication.
package gin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codevault/codevault/middleware"
	"github.com/codevault/codevault/store"
)

// UserKey is the key the authenticated *store.User is stored under.
const UserKey = "codevault_user"

// Config holds Gin-specific middleware configuration.
type Config struct {
	// TokenExtractor extracts the token from the Gin context.
	// Defaults to extracting from Authorization header.
	TokenExtractor TokenExtractor

	// ErrorHandler handles authentication errors.
	// Defaults to a JSON error response.
	ErrorHandler ErrorHandler

	// SkipPaths are paths that skip authentication.
	SkipPaths []string
}

// TokenExtractor extracts a token from a Gin context.
type TokenExtractor func(c *gin.Context) string

// ErrorHandler handles authentication errors in Gin.
type ErrorHandler func(c *gin.Context, err error)

// DefaultConfig returns a default Gin middleware configuration.
func DefaultConfig() *Config {
	return &Config{
		TokenExtractor: ExtractFromHeader("Authorization", "Bearer"),
		ErrorHandler:   DefaultErrorHandler,
	}
}

// ExtractFromHeader creates a token extractor that extracts from a header.
func ExtractFromHeader(header, scheme string) TokenExtractor {
	return func(c *gin.Context) string {
		return middleware.ParseAuthHeader(c.GetHeader(header), scheme)
	}
}

// ExtractFromCookie creates a token extractor that extracts from a cookie.
func ExtractFromCookie(name string) TokenExtractor {
	return func(c *gin.Context) string {
		cookie, err := c.Cookie(name)
		if err != nil {
			return ""
		}
		return cookie
	}
}

// DefaultErrorHandler is the default error handler for Gin.
func DefaultErrorHandler(c *gin.Context, err error) {
	code := middleware.ErrorToHTTPStatus(err)
	if code == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}
	c.AbortWithStatusJSON(code, middleware.NewErrorBody(err))
}

// Authenticate creates a Gin middleware that resolves bearer tokens.
func Authenticate(gate middleware.Gate, cfg *Config) gin.HandlerFunc {
	cfg = withDefaults(cfg)

	return func(c *gin.Context) {
		if middleware.MatchAny(c.Request.URL.Path, cfg.SkipPaths) {
			c.Next()
			return
		}

		token := cfg.TokenExtractor(c)
		if token == "" {
			cfg.ErrorHandler(c, middleware.ErrMissingToken)
			return
		}

		user, err := gate.CurrentUser(c.Request.Context(), token)
		if err != nil {
			cfg.ErrorHandler(c, err)
			return
		}

		c.Set(UserKey, user)
		c.Request = c.Request.WithContext(middleware.SetUser(c.Request.Context(), user))
		c.Next()
	}
}

// RequireAdmin creates a Gin middleware that lets only admins through.
func RequireAdmin(gate middleware.Gate, cfg *Config) gin.HandlerFunc {
	cfg = withDefaults(cfg)

	return func(c *gin.Context) {
		user := User(c)
		if user == nil {
			cfg.ErrorHandler(c, middleware.ErrMissingToken)
			return
		}

		if err := gate.RequireAdmin(user); err != nil {
			cfg.ErrorHandler(c, err)
			return
		}

		c.Next()
	}
}

// User retrieves the authenticated user from the Gin context.
func User(c *gin.Context) *store.User {
	if v, exists := c.Get(UserKey); exists {
		if u, ok := v.(*store.User); ok {
			return u
		}
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
