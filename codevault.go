// Package codevault is the authentication and authorization core of the
// CodeVault snippet manager.
//
// A Vault registers users, logs them in with signed session tokens, resolves
// tokens back to users and gates every protected operation on the caller's
// role. It also owns the snippet operations that sit behind that gate.
//
// Basic usage:
//
//	vault, err := codevault.New(
//	    codevault.WithSecret("your-256-bit-secret-at-least-32-bytes"),
//	    codevault.WithStore(memory.New()),
//	)
//	user, err := vault.Register(ctx, "alice", "alice@example.com", "pw123")
//	res, err := vault.Login(ctx, "alice@example.com", "pw123")
//	me, err := vault.CurrentUser(ctx, res.Token)
package codevault

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codevault/codevault/events"
	"github.com/codevault/codevault/logging"
	"github.com/codevault/codevault/metrics"
	"github.com/codevault/codevault/password"
	"github.com/codevault/codevault/ratelimit"
	"github.com/codevault/codevault/search"
	"github.com/codevault/codevault/store"
	"github.com/codevault/codevault/token"
)

// dummyPassword is hashed once per Vault so that logins for unknown users
// cost the same hash comparison as logins for known ones.
const dummyPassword = "codevault-timing-equalizer"

// Vault is the main entry point. It is safe for concurrent use.
type Vault struct {
	config *Config
	store  store.Store
	hasher password.Hasher
	issuer *token.Issuer

	log          logging.Logger
	publisher    events.Publisher
	indexer      search.Indexer
	metrics      metrics.Recorder
	loginLimiter ratelimit.Limiter
	ownsLimiter  bool
	now          func() time.Time

	dummyHash string

	mu     sync.Mutex
	closed bool
}

// New creates a new Vault with the given options.
// At minimum, WithSecret and WithStore must be provided.
func New(opts ...Option) (*Vault, error) {
	cfg := NewConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.store == nil {
		return nil, ErrStoreRequired
	}

	v := &Vault{
		config:       cfg,
		store:        cfg.store,
		hasher:       cfg.hasher,
		log:          cfg.logger,
		publisher:    cfg.publisher,
		indexer:      cfg.indexer,
		metrics:      cfg.metrics,
		loginLimiter: cfg.loginLimiter,
		now:          cfg.now,
	}

	if v.now == nil {
		v.now = time.Now
	}
	if v.log == nil {
		v.log = logging.Nop()
	}
	if v.publisher == nil {
		v.publisher = events.Nop{}
	}
	if v.indexer == nil {
		v.indexer = search.Nop{}
	}
	if v.metrics == nil {
		v.metrics = metrics.Nop()
	}

	if v.hasher == nil {
		h, err := password.New(cfg.HashAlgorithm, cfg.BcryptCost)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
		}
		v.hasher = h
	}

	issuer, err := token.NewIssuer(&token.Config{
		Secret:        cfg.Secret,
		SigningMethod: string(cfg.SigningMethod),
		TTL:           cfg.TokenTTL,
		Issuer:        cfg.Issuer,
		Now:           v.now,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	v.issuer = issuer

	dummy, err := v.hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare password hasher: %w", err)
	}
	v.dummyHash = dummy

	if cfg.AutoMigrate {
		if err := v.store.Migrate(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	if v.loginLimiter == nil && cfg.LoginAttempts > 0 {
		v.loginLimiter = ratelimit.NewMemoryLimiter(cfg.LoginAttempts, cfg.LoginWindow)
		v.ownsLimiter = true
	}

	return v, nil
}

// Config returns the current configuration.
// The returned config should not be modified.
func (v *Vault) Config() *Config {
	return v.config
}

// Store returns the underlying store.
func (v *Vault) Store() store.Store {
	return v.store
}

// Issuer returns the token issuer.
func (v *Vault) Issuer() *token.Issuer {
	return v.issuer
}

// Close stops the login limiter it created and closes the store.
// After Close is called, the Vault should not be used.
func (v *Vault) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil
	}
	v.closed = true

	if v.ownsLimiter {
		_ = v.loginLimiter.Close()
	}

	return v.store.Close()
}

// Ping verifies the store connection is alive.
func (v *Vault) Ping(ctx context.Context) error {
	return v.store.Ping(ctx)
}

// publish hands e to the publisher after the store has committed. Failures
// are logged and counted, never returned.
func (v *Vault) publish(ctx context.Context, e events.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.config.PublishTimeout)
	defer cancel()

	if err := v.publisher.Publish(ctx, e); err != nil {
		v.metrics.EventPublished(metrics.OutcomeFailure)
		v.log.Warn(ctx, "failed to publish event", "type", string(e.Type), "error", err)
		return
	}
	v.metrics.EventPublished(metrics.OutcomeSuccess)
}

func (v *Vault) event(typ events.Type, actor *store.User, userID int64) events.Event {
	e := events.New(typ, userID, v.now())
	if actor != nil {
		e.ActorID = actor.ID
	}
	return e
}
