// Package sql provides PostgreSQL and MySQL storage for CodeVault.
package sql

import (
	"context"
	"fmt"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"github.com/codevault/codevault/store/sql/queries"
)

// Dialect represents a SQL database dialect.
type Dialect string

const (
	// PostgreSQL dialect, served by the pgx stdlib driver.
	PostgreSQL Dialect = "postgres"
	// MySQL dialect, served by go-sql-driver/mysql.
	MySQL Dialect = "mysql"
)

// driverName returns the database/sql driver name for the dialect.
func (d Dialect) driverName() string {
	if d == MySQL {
		return "mysql"
	}
	return "pgx"
}

func (d Dialect) valid() bool {
	return d == PostgreSQL || d == MySQL
}

// loadQueries returns the queries for the dialect with the table prefix applied.
func loadQueries(d Dialect, tablePrefix string) (*queries.Queries, error) {
	var (
		q   *queries.Queries
		err error
	)
	switch d {
	case MySQL:
		q, err = queries.LoadMySQL()
	default:
		q, err = queries.LoadPostgres()
	}
	if err != nil {
		return nil, fmt.Errorf("load %s queries: %w", d, err)
	}
	return q.WithTablePrefix(tablePrefix), nil
}

// prepareDSN adjusts a MySQL DSN so DATETIME columns scan into time.Time and
// UPDATE reports matched rather than changed rows.
func prepareDSN(d Dialect, dsn string) (string, error) {
	if d != MySQL {
		return dsn, nil
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.ClientFoundRows = true
	return cfg.FormatDSN(), nil
}

// insertID runs an INSERT and returns the generated id. PostgreSQL queries
// end in RETURNING id; MySQL reports it through LastInsertId.
func (s *Store) insertID(ctx context.Context, db DBTX, query string, args ...any) (int64, error) {
	if s.dialect == MySQL {
		res, err := db.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	}

	var id int64
	if err := db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// lockUsers serializes registrations for the rest of the transaction.
// PostgreSQL takes a SHARE ROW EXCLUSIVE table lock, which conflicts with
// itself and with concurrent inserts. MySQL uses a locking read over the
// whole table. On an empty table that read only takes gap locks, which do
// not conflict with each other, so concurrent registrations can deadlock;
// RegisterUser retries those.
func (s *Store) lockUsers(ctx context.Context, tx DBTX) error {
	if s.dialect == MySQL {
		var n int64
		return tx.QueryRowContext(ctx, s.queries.LockUsers).Scan(&n)
	}
	_, err := tx.ExecContext(ctx, s.queries.LockUsers)
	return err
}
