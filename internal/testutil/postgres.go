// Package testutil provides testing utilities for CodeVault.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	sqlstore "github.com/codevault/codevault/store/sql"
)

// StartPostgres starts a PostgreSQL testcontainer and returns its DSN.
// The container is automatically cleaned up when the test finishes.
func StartPostgres(t testing.TB) string {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("codevault_test"),
		postgres.WithUsername("codevault"),
		postgres.WithPassword("codevault"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}
	return dsn
}

// OpenSQLStore opens and migrates a SQL store with the given table prefix.
func OpenSQLStore(t testing.TB, dialect sqlstore.Dialect, dsn, tablePrefix string) *sqlstore.Store {
	t.Helper()

	s, err := sqlstore.New(&sqlstore.Config{
		Dialect:      dialect,
		DSN:          dsn,
		TablePrefix:  tablePrefix,
		MaxOpenConns: 10,
	})
	if err != nil {
		t.Fatalf("Failed to create SQL store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return s
}

// SetupPostgres starts a container and returns a migrated store on it.
func SetupPostgres(t testing.TB) *sqlstore.Store {
	t.Helper()
	return OpenSQLStore(t, sqlstore.PostgreSQL, StartPostgres(t), "test_")
}
