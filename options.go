package codevault

import (
	"time"

	"github.com/codevault/codevault/events"
	"github.com/codevault/codevault/logging"
	"github.com/codevault/codevault/metrics"
	"github.com/codevault/codevault/password"
	"github.com/codevault/codevault/ratelimit"
	"github.com/codevault/codevault/search"
	"github.com/codevault/codevault/store"
)

// collaborators are the runtime dependencies set through options. They
// live on Config so that Option keeps its func(*Config) shape.
type collaborators struct {
	store        store.Store
	hasher       password.Hasher
	logger       logging.Logger
	publisher    events.Publisher
	indexer      search.Indexer
	metrics      metrics.Recorder
	loginLimiter ratelimit.Limiter
	now          func() time.Time
}

// Option is a function that modifies the configuration.
type Option func(*Config)

// WithSecret sets the secret key for HMAC signing.
// The secret must be at least 32 characters long.
func WithSecret(secret string) Option {
	return func(c *Config) {
		c.Secret = secret
	}
}

// WithTokenTTL sets the session token time-to-live.
func WithTokenTTL(ttl time.Duration) Option {
	return func(c *Config) {
		c.TokenTTL = ttl
	}
}

// WithSigningMethod sets the JWT signing algorithm.
func WithSigningMethod(method SigningMethod) Option {
	return func(c *Config) {
		c.SigningMethod = method
	}
}

// WithIssuer sets the iss claim.
func WithIssuer(issuer string) Option {
	return func(c *Config) {
		c.Issuer = issuer
	}
}

// WithHashAlgorithm selects the password hashing scheme.
func WithHashAlgorithm(algorithm password.Algorithm) Option {
	return func(c *Config) {
		c.HashAlgorithm = algorithm
	}
}

// WithBcryptCost sets the bcrypt work factor.
func WithBcryptCost(cost int) Option {
	return func(c *Config) {
		c.BcryptCost = cost
	}
}

// WithAutoMigrate enables or disables automatic schema migration.
func WithAutoMigrate(enabled bool) Option {
	return func(c *Config) {
		c.AutoMigrate = enabled
	}
}

// WithLoginLimit configures the default in-memory login limiter. Zero
// attempts disables it.
func WithLoginLimit(attempts int, window time.Duration) Option {
	return func(c *Config) {
		c.LoginAttempts = attempts
		c.LoginWindow = window
	}
}

// WithStore sets the data store. This is a required option.
func WithStore(s store.Store) Option {
	return func(c *Config) {
		c.store = s
	}
}

// WithHasher sets the password hasher, overriding HashAlgorithm.
func WithHasher(h password.Hasher) Option {
	return func(c *Config) {
		c.hasher = h
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Config) {
		c.logger = l
	}
}

// WithPublisher sets the domain event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(c *Config) {
		c.publisher = p
	}
}

// WithIndexer sets the snippet search index.
func WithIndexer(i search.Indexer) Option {
	return func(c *Config) {
		c.indexer = i
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) Option {
	return func(c *Config) {
		c.metrics = m
	}
}

// WithLoginLimiter sets the limiter consulted on every login, keyed by the
// lower-cased identifier. It overrides LoginAttempts.
func WithLoginLimiter(l ratelimit.Limiter) Option {
	return func(c *Config) {
		c.loginLimiter = l
	}
}

// WithClock overrides the time source for tokens and events.
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		c.now = now
	}
}
