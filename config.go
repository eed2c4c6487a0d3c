package codevault

import (
	"fmt"
	"time"

	"github.com/codevault/codevault/password"
)

// SigningMethod represents the JWT signing algorithm.
type SigningMethod string

const (
	// SigningMethodHS256 uses HMAC-SHA256 for signing.
	SigningMethodHS256 SigningMethod = "HS256"

	// SigningMethodHS384 uses HMAC-SHA384 for signing.
	SigningMethodHS384 SigningMethod = "HS384"

	// SigningMethodHS512 uses HMAC-SHA512 for signing.
	SigningMethodHS512 SigningMethod = "HS512"
)

// Default configuration values.
const (
	DefaultTokenTTL       = 60 * time.Minute
	DefaultIssuer         = "codevault"
	DefaultLoginAttempts  = 10
	DefaultLoginWindow    = 15 * time.Minute
	DefaultHashAlgorithm  = password.Bcrypt
	DefaultPublishTimeout = 5 * time.Second

	// MinSecretLength is the minimum required length for the secret key.
	MinSecretLength = 32
)

// Config holds all configuration for the Vault.
type Config struct {
	// Secret is the HMAC key used for signing tokens. Required.
	Secret string

	// TokenTTL is how long session tokens are valid.
	TokenTTL time.Duration

	// SigningMethod is the JWT signing algorithm to use.
	SigningMethod SigningMethod

	// Issuer is written to the iss claim and required on verification.
	Issuer string

	// HashAlgorithm selects the password hasher when none is supplied with
	// WithHasher.
	HashAlgorithm password.Algorithm

	// BcryptCost overrides the bcrypt work factor. Zero keeps the default.
	BcryptCost int

	// AutoMigrate runs the store migration in New.
	AutoMigrate bool

	// LoginAttempts is the number of logins allowed per identifier within
	// LoginWindow when the default in-memory login limiter is used.
	// Zero disables login limiting.
	LoginAttempts int

	// LoginWindow is the login limiter window.
	LoginWindow time.Duration

	// PublishTimeout bounds each event publication.
	PublishTimeout time.Duration

	collaborators
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		TokenTTL:       DefaultTokenTTL,
		SigningMethod:  SigningMethodHS256,
		Issuer:         DefaultIssuer,
		HashAlgorithm:  DefaultHashAlgorithm,
		LoginAttempts:  DefaultLoginAttempts,
		LoginWindow:    DefaultLoginWindow,
		PublishTimeout: DefaultPublishTimeout,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.SigningMethod {
	case SigningMethodHS256, SigningMethodHS384, SigningMethodHS512:
	default:
		return fmt.Errorf("%w: unsupported signing method: %s", ErrConfigInvalid, c.SigningMethod)
	}

	if c.Secret == "" {
		return fmt.Errorf("%w: secret is required for HMAC signing", ErrConfigInvalid)
	}
	if len(c.Secret) < MinSecretLength {
		return fmt.Errorf("%w: secret must be at least %d characters", ErrConfigInvalid, MinSecretLength)
	}

	if c.TokenTTL <= 0 {
		return fmt.Errorf("%w: token TTL must be positive", ErrConfigInvalid)
	}

	switch c.HashAlgorithm {
	case password.Bcrypt, password.Argon2id:
	default:
		return fmt.Errorf("%w: unsupported hash algorithm: %s", ErrConfigInvalid, c.HashAlgorithm)
	}

	if c.LoginAttempts < 0 {
		return fmt.Errorf("%w: login attempts cannot be negative", ErrConfigInvalid)
	}
	if c.LoginAttempts > 0 && c.LoginWindow <= 0 {
		return fmt.Errorf("%w: login window must be positive", ErrConfigInvalid)
	}

	if c.PublishTimeout <= 0 {
		return fmt.Errorf("%w: publish timeout must be positive", ErrConfigInvalid)
	}

	return nil
}
