// Package redis provides Redis storage for CodeVault.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codevault/codevault/internal/ids"
	"github.com/codevault/codevault/store"
)

// DefaultKeyPrefix is prepended to every key.
const DefaultKeyPrefix = "codevault:"

// Key names relative to the prefix.
const (
	keyUser              = "user:"                 // user:<id> -> JSON record
	keyUserByEmail       = "user_email:"           // user_email:<sha256(email)> -> id
	keyUserByUsername    = "user_username:"        // user_username:<username> -> id
	keyUsers             = "users"                 // zset of user ids
	keyUserSeq           = "seq:user"              // user id counter
	keySnippet           = "snippet:"              // snippet:<id> -> JSON record
	keySnippetSeq        = "seq:snippet"           // snippet id counter
	keyUserSnippets      = "user_snippets:"        // zset of a user's snippet ids
	keyFavorites         = "favorites:"            // set of snippet ids a user favorited
	keySnippetFavoriters = "snippet_favorited_by:" // set of user ids that favorited a snippet
)

// defaultMaxRetries bounds optimistic-lock retries of WATCH transactions.
const defaultMaxRetries = 10

// Store implements store.Store using Redis.
type Store struct {
	client     redis.UniversalClient
	prefix     string
	maxRetries int
	now        func() time.Time
}

var _ store.Store = (*Store)(nil)

// Config holds Redis store configuration.
type Config struct {
	// Client is an existing Redis client.
	// If provided, other options are ignored.
	Client redis.UniversalClient

	// Addr is the Redis server address (host:port).
	Addr string

	// Password is the Redis password.
	Password string

	// DB is the Redis database number.
	DB int

	// PoolSize is the maximum number of connections.
	PoolSize int

	// KeyPrefix is prepended to every key. Defaults to "codevault:".
	KeyPrefix string

	// MaxRetries bounds how often a WATCH transaction is retried after
	// another client modified a watched key. Defaults to 10.
	MaxRetries int
}

// New creates a new Redis store.
func New(cfg *Config) (*Store, error) {
	var client redis.UniversalClient

	if cfg.Client != nil {
		client = cfg.Client
	} else {
		opts := &redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
		if cfg.PoolSize > 0 {
			opts.PoolSize = cfg.PoolSize
		}
		client = redis.NewClient(opts)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}

	return &Store{
		client:     client,
		prefix:     prefix,
		maxRetries: retries,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Migrate is a no-op for Redis as it doesn't require schema migration.
func (s *Store) Migrate(ctx context.Context) error {
	return nil
}

func (s *Store) key(parts ...string) string {
	return s.prefix + strings.Join(parts, "")
}

func (s *Store) userKey(id int64) string {
	return s.key(keyUser, strconv.FormatInt(id, 10))
}

func (s *Store) emailKey(email string) string {
	return s.key(keyUserByEmail, ids.LookupKey(email))
}

func (s *Store) usernameKey(username string) string {
	return s.key(keyUserByUsername, username)
}

func (s *Store) snippetKey(id int64) string {
	return s.key(keySnippet, strconv.FormatInt(id, 10))
}

func (s *Store) userSnippetsKey(userID int64) string {
	return s.key(keyUserSnippets, strconv.FormatInt(userID, 10))
}

func (s *Store) favoritesKey(userID int64) string {
	return s.key(keyFavorites, strconv.FormatInt(userID, 10))
}

func (s *Store) favoritersKey(snippetID int64) string {
	return s.key(keySnippetFavoriters, strconv.FormatInt(snippetID, 10))
}

// watch runs fn under WATCH on keys and retries when a watched key changed
// before EXEC.
func (s *Store) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < s.maxRetries; i++ {
		err := s.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("redis: transaction retries exhausted: %w", redis.TxFailedErr)
}

func parseID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
