// Package queries embeds SQL query files for the SQL store.
package queries

import (
	"embed"
	"fmt"
	"strings"
)

// PostgresFS embeds PostgreSQL query files.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// MySQLFS embeds MySQL query files.
//
//go:embed mysql/*.sql
var MySQLFS embed.FS

// DefaultTablePrefix is the table prefix written in the .sql files.
const DefaultTablePrefix = "codevault_"

// Queries holds parsed SQL queries by name.
type Queries struct {
	Schema string

	SelectUserByID              string
	SelectUserByEmail           string
	SelectUserByUsername        string
	SelectUserByUsernameOrEmail string
	SelectUsers                 string
	CountUsers                  string
	LockUsers                   string
	InsertUser                  string
	DeleteUser                  string
	UpdateUserRole              string
	UpdatePasswordHash          string

	InsertSnippet          string
	SelectSnippet          string
	SelectSnippetForUpdate string
	SelectSnippetsByOwner  string
	UpdateSnippet          string
	DeleteSnippet          string

	InsertFavorite    string
	DeleteFavorite    string
	SelectFavoriteIDs string
}

// LoadPostgres loads PostgreSQL queries from embedded files.
func LoadPostgres() (*Queries, error) {
	return loadQueries(PostgresFS, "postgres")
}

// LoadMySQL loads MySQL queries from embedded files.
func LoadMySQL() (*Queries, error) {
	return loadQueries(MySQLFS, "mysql")
}

func loadQueries(fs embed.FS, dir string) (*Queries, error) {
	q := &Queries{}

	schema, err := fs.ReadFile(dir + "/schema.sql")
	if err != nil {
		return nil, err
	}
	q.Schema = string(schema)

	named := make(map[string]string)
	for _, file := range []string{"users.sql", "snippets.sql", "favorites.sql"} {
		content, err := fs.ReadFile(dir + "/" + file)
		if err != nil {
			return nil, err
		}
		for name, query := range parseNamedQueries(string(content)) {
			named[name] = query
		}
	}

	targets := map[string]*string{
		"SelectUserByID":              &q.SelectUserByID,
		"SelectUserByEmail":           &q.SelectUserByEmail,
		"SelectUserByUsername":        &q.SelectUserByUsername,
		"SelectUserByUsernameOrEmail": &q.SelectUserByUsernameOrEmail,
		"SelectUsers":                 &q.SelectUsers,
		"CountUsers":                  &q.CountUsers,
		"LockUsers":                   &q.LockUsers,
		"InsertUser":                  &q.InsertUser,
		"DeleteUser":                  &q.DeleteUser,
		"UpdateUserRole":              &q.UpdateUserRole,
		"UpdatePasswordHash":          &q.UpdatePasswordHash,
		"InsertSnippet":               &q.InsertSnippet,
		"SelectSnippet":               &q.SelectSnippet,
		"SelectSnippetForUpdate":      &q.SelectSnippetForUpdate,
		"SelectSnippetsByOwner":       &q.SelectSnippetsByOwner,
		"UpdateSnippet":               &q.UpdateSnippet,
		"DeleteSnippet":               &q.DeleteSnippet,
		"InsertFavorite":              &q.InsertFavorite,
		"DeleteFavorite":              &q.DeleteFavorite,
		"SelectFavoriteIDs":           &q.SelectFavoriteIDs,
	}
	for name, dst := range targets {
		query, ok := named[name]
		if !ok {
			return nil, fmt.Errorf("queries: %s: missing query %q", dir, name)
		}
		*dst = query
	}

	return q, nil
}

// WithTablePrefix returns a copy of q with the default table prefix replaced.
func (q *Queries) WithTablePrefix(prefix string) *Queries {
	if prefix == "" || prefix == DefaultTablePrefix {
		return q
	}
	out := *q
	for _, s := range []*string{
		&out.Schema,
		&out.SelectUserByID, &out.SelectUserByEmail, &out.SelectUserByUsername,
		&out.SelectUserByUsernameOrEmail, &out.SelectUsers, &out.CountUsers,
		&out.LockUsers, &out.InsertUser, &out.DeleteUser, &out.UpdateUserRole,
		&out.UpdatePasswordHash,
		&out.InsertSnippet, &out.SelectSnippet, &out.SelectSnippetForUpdate,
		&out.SelectSnippetsByOwner, &out.UpdateSnippet, &out.DeleteSnippet,
		&out.InsertFavorite, &out.DeleteFavorite, &out.SelectFavoriteIDs,
	} {
		*s = strings.ReplaceAll(*s, DefaultTablePrefix, prefix)
	}
	return &out
}

// parseNamedQueries parses SQL content with -- name: comments.
func parseNamedQueries(content string) map[string]string {
	result := make(map[string]string)

	parts := strings.Split(content, "-- name:")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		// First line is the query name, rest is the SQL
		lines := strings.SplitN(part, "\n", 2)
		if len(lines) < 2 {
			continue
		}

		name := strings.TrimSpace(lines[0])
		query := strings.TrimSpace(lines[1])
		if name != "" && query != "" {
			result[name] = query
		}
	}

	return result
}
