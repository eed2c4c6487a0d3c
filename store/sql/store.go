package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/codevault/codevault/store"
	"github.com/codevault/codevault/store/sql/queries"
)

// ErrUnknownDialect is returned by New for a dialect other than postgres or mysql.
var ErrUnknownDialect = errors.New("unknown sql dialect")

// Store implements store.Store using a SQL database.
type Store struct {
	db      *sql.DB
	dialect Dialect
	queries *queries.Queries
	now     func() time.Time
}

var _ store.Store = (*Store)(nil)

// Config holds SQL store configuration.
type Config struct {
	// Dialect specifies the database type (postgres, mysql).
	// Defaults to postgres.
	Dialect Dialect

	// DB is an existing database connection.
	// If provided, DSN is ignored.
	DB *sql.DB

	// DSN is the data source name for connecting to the database.
	// MySQL DSNs get parseTime and clientFoundRows forced on.
	DSN string

	// TablePrefix is the prefix for all table names.
	// Defaults to "codevault_" if empty.
	TablePrefix string

	// MaxOpenConns sets the maximum number of open connections.
	MaxOpenConns int

	// MaxIdleConns sets the maximum number of idle connections.
	MaxIdleConns int

	// ConnMaxLifetime sets the maximum lifetime of a connection.
	ConnMaxLifetime time.Duration
}

// New creates a new SQL store.
func New(cfg *Config) (*Store, error) {
	dialect := cfg.Dialect
	if dialect == "" {
		dialect = PostgreSQL
	}
	if !dialect.valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, dialect)
	}

	q, err := loadQueries(dialect, cfg.TablePrefix)
	if err != nil {
		return nil, err
	}

	db := cfg.DB
	if db == nil {
		dsn, err := prepareDSN(dialect, cfg.DSN)
		if err != nil {
			return nil, err
		}
		db, err = sql.Open(dialect.driverName(), dsn)
		if err != nil {
			return nil, err
		}

		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	return &Store{
		db:      db,
		dialect: dialect,
		queries: q,
		now:     func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}, nil
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the database schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(s.queries.Schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
