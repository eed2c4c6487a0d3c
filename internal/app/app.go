// Package app wires the CodeVault HTTP server: configuration, storage
// backends, event and search integrations, metrics and routes.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codevault/codevault"
	"github.com/codevault/codevault/events"
	"github.com/codevault/codevault/internal/worker"
	"github.com/codevault/codevault/logging"
	"github.com/codevault/codevault/metrics"
	"github.com/codevault/codevault/password"
	"github.com/codevault/codevault/ratelimit"
	"github.com/codevault/codevault/search"
	"github.com/codevault/codevault/store"
	"github.com/codevault/codevault/store/memory"
	redisstore "github.com/codevault/codevault/store/redis"
	sqlstore "github.com/codevault/codevault/store/sql"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// App owns every long-lived dependency of the server.
type App struct {
	cfg *Config
	log logging.Logger

	vault     *codevault.Vault
	metrics   *metrics.Metrics
	publisher events.Publisher
	limiter   ratelimit.Limiter
	worker    *worker.Worker

	// closers run in reverse order on Close.
	closers []func() error

	handler http.Handler
}

// New builds an App from cfg. Everything opened before a failure is closed
// again before New returns.
func New(cfg *Config, log logging.Logger) (_ *App, err error) {
	if log == nil {
		log = logging.Nop()
	}
	a := &App{cfg: cfg, log: log, metrics: metrics.New()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	st, err := a.openStore()
	if err != nil {
		return nil, err
	}
	storeCloser := len(a.closers)
	a.closers = append(a.closers, st.Close)

	a.publisher, err = a.openPublisher()
	if err != nil {
		return nil, err
	}

	indexer, err := a.openIndexer()
	if err != nil {
		return nil, err
	}

	loginLimiter, err := a.openLimiters()
	if err != nil {
		return nil, err
	}

	opts := []codevault.Option{
		codevault.WithSecret(cfg.Secret),
		codevault.WithTokenTTL(cfg.TokenTTL),
		codevault.WithSigningMethod(codevault.SigningMethod(cfg.SigningMethod)),
		codevault.WithHashAlgorithm(password.Algorithm(cfg.HashAlgorithm)),
		codevault.WithBcryptCost(cfg.BcryptCost),
		codevault.WithLoginLimit(cfg.LoginAttempts, cfg.AttemptWindow),
		codevault.WithAutoMigrate(true),
		codevault.WithStore(st),
		codevault.WithLogger(log),
		codevault.WithPublisher(a.publisher),
		codevault.WithIndexer(indexer),
		codevault.WithMetrics(a.metrics),
	}
	if loginLimiter != nil {
		opts = append(opts, codevault.WithLoginLimiter(loginLimiter))
	}

	a.vault, err = codevault.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create vault: %w", err)
	}
	// The vault closes the store.
	a.closers[storeCloser] = a.vault.Close

	a.worker = worker.New(&worker.Config{Logger: log},
		worker.UserGauge(st, a.metrics, cfg.GaugeInterval),
		worker.HealthCheck("store", a.vault, log, cfg.HealthInterval),
	)

	a.handler = a.routes()
	return a, nil
}

func (a *App) openStore() (store.Store, error) {
	switch a.cfg.Store {
	case StorePostgres, StoreMySQL:
		dialect := sqlstore.PostgreSQL
		if a.cfg.Store == StoreMySQL {
			dialect = sqlstore.MySQL
		}
		st, err := sqlstore.New(&sqlstore.Config{
			Dialect:      dialect,
			DSN:          a.cfg.DSN,
			TablePrefix:  a.cfg.TablePrefix,
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		})
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", a.cfg.Store, err)
		}
		a.log.Info(context.Background(), "store opened", "backend", a.cfg.Store)
		return st, nil
	case StoreRedis:
		st, err := redisstore.New(&redisstore.Config{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		a.log.Info(context.Background(), "store opened", "backend", StoreRedis, "addr", a.cfg.RedisAddr)
		return st, nil
	default:
		a.log.Info(context.Background(), "store opened", "backend", StoreMemory)
		return memory.New(), nil
	}
}

func (a *App) openPublisher() (events.Publisher, error) {
	if len(a.cfg.KafkaBrokers) == 0 {
		return events.Nop{}, nil
	}
	p, err := events.NewKafkaPublisher(events.KafkaConfig{
		Brokers:     a.cfg.KafkaBrokers,
		TopicPrefix: a.cfg.KafkaTopicPrefix,
		ClientID:    "codevault",
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, p.Close)
	a.log.Info(context.Background(), "event publisher enabled", "brokers", a.cfg.KafkaBrokers)
	return p, nil
}

func (a *App) openIndexer() (search.Indexer, error) {
	if len(a.cfg.ElasticAddresses) == 0 {
		return search.Nop{}, nil
	}
	idx, err := search.NewElastic(search.ElasticConfig{
		Addresses: a.cfg.ElasticAddresses,
		Index:     a.cfg.ElasticIndex,
	})
	if err != nil {
		return nil, err
	}
	a.log.Info(context.Background(), "search index enabled", "index", a.cfg.ElasticIndex)
	return idx, nil
}

// openLimiters creates the per-IP /login limiter and, for the redis
// backend, a shared per-identifier login limiter. A nil login limiter lets
// the Vault create its own in-memory one.
func (a *App) openLimiters() (ratelimit.Limiter, error) {
	if a.cfg.RateLimiter != StoreRedis {
		ml := ratelimit.NewMemoryLimiter(a.cfg.LoginRate, a.cfg.LoginWindow)
		a.limiter = ml
		a.closers = append(a.closers, ml.Close)
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	})
	a.closers = append(a.closers, client.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect rate limiter redis: %w", err)
	}

	a.limiter = ratelimit.NewRedisLimiter(&ratelimit.RedisConfig{
		Client:    client,
		KeyPrefix: "codevault:ratelimit:ip:",
		Rate:      a.cfg.LoginRate,
		Window:    a.cfg.LoginWindow,
	})
	if a.cfg.LoginAttempts <= 0 {
		return nil, nil
	}
	return ratelimit.NewRedisLimiter(&ratelimit.RedisConfig{
		Client:    client,
		KeyPrefix: "codevault:ratelimit:",
		Rate:      a.cfg.LoginAttempts,
		Window:    a.cfg.AttemptWindow,
	}), nil
}

// Vault returns the wired Vault.
func (a *App) Vault() *codevault.Vault {
	return a.vault
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run starts the background tasks and the HTTP server and blocks until ctx
// is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.worker.Start()
	defer a.worker.Stop()

	a.log.Info(ctx, "server started", "addr", a.cfg.HTTPAddr, "store", a.cfg.Store)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info(context.Background(), "server stopping")
	case err := <-errCh:
		a.log.Error(context.Background(), "server failed", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error(shutdownCtx, "server shutdown failed", "error", err)
		return err
	}

	a.log.Info(shutdownCtx, "server stopped")
	return nil
}

// Close releases every dependency in reverse order of creation.
func (a *App) Close() error {
	if a.worker != nil {
		a.worker.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
