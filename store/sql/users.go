package sql

import (
	"context"
	"errors"
	"strings"

	"github.com/codevault/codevault/store"
)

type scanner interface {
	Scan(dest ...any) error
}

// scanUser reads a user row and validates the stored role.
func scanUser(row scanner) (*store.User, error) {
	var (
		u    store.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.CreatedAt); err != nil {
		return nil, mapError(err)
	}
	r, err := store.ParseRole(role)
	if err != nil {
		return nil, err
	}
	u.Role = r
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FindUserByID returns a user by id.
func (s *Store) FindUserByID(ctx context.Context, id int64) (*store.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, s.queries.SelectUserByID, id))
}

// FindUserByEmail returns a user by email, ignoring case.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*store.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, s.queries.SelectUserByEmail, normalizeEmail(email)))
}

// FindUserByUsername returns a user by username.
func (s *Store) FindUserByUsername(ctx context.Context, username string) (*store.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, s.queries.SelectUserByUsername, username))
}

// FindUserByUsernameOrEmail returns a user colliding on either field.
func (s *Store) FindUserByUsernameOrEmail(ctx context.Context, username, email string) (*store.User, error) {
	return findCollision(ctx, s.db, s.queries.SelectUserByUsernameOrEmail, username, email)
}

func findCollision(ctx context.Context, db DBTX, query, username, email string) (*store.User, error) {
	return scanUser(db.QueryRowContext(ctx, query, username, normalizeEmail(email)))
}

// CountUsers returns the number of users.
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, s.queries.CountUsers).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CreateUser inserts a user with an explicit role. The unique constraints
// reject duplicates.
func (s *Store) CreateUser(ctx context.Context, nu store.NewUser) (*store.User, error) {
	if !nu.Role.Valid() {
		return nil, store.ErrInvalidRole
	}
	return s.insertUser(ctx, s.db, nu)
}

func (s *Store) insertUser(ctx context.Context, db DBTX, nu store.NewUser) (*store.User, error) {
	u := &store.User{
		Username:     nu.Username,
		Email:        normalizeEmail(nu.Email),
		PasswordHash: nu.PasswordHash,
		Role:         nu.Role,
		CreatedAt:    s.now(),
	}
	id, err := s.insertID(ctx, db, s.queries.InsertUser,
		u.Username, u.Email, u.PasswordHash, string(u.Role), u.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	u.ID = id
	return u, nil
}

// registerAttempts bounds how often RegisterUser reruns a transaction the
// database aborted as a deadlock victim.
const registerAttempts = 3

// RegisterUser locks the users table, checks for collisions, counts the
// existing users and inserts in a single transaction, so exactly one
// registration into an empty table becomes admin.
func (s *Store) RegisterUser(ctx context.Context, r store.Registration) (*store.User, error) {
	var (
		created *store.User
		err     error
	)
	for attempt := 1; attempt <= registerAttempts; attempt++ {
		created, err = s.registerUser(ctx, r)
		if err == nil || !isRetryable(err) || ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		return nil, mapError(err)
	}
	return created, nil
}

func (s *Store) registerUser(ctx context.Context, r store.Registration) (*store.User, error) {
	var created *store.User
	err := withTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		if err := s.lockUsers(ctx, tx); err != nil {
			return err
		}

		_, err := findCollision(ctx, tx, s.queries.SelectUserByUsernameOrEmail, r.Username, r.Email)
		switch {
		case err == nil:
			return store.ErrConflict
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		var n int64
		if err := tx.QueryRowContext(ctx, s.queries.CountUsers).Scan(&n); err != nil {
			return err
		}
		role := store.RoleUser
		if n == 0 {
			role = store.RoleAdmin
		}

		created, err = s.insertUser(ctx, tx, store.NewUser{
			Username:     r.Username,
			Email:        r.Email,
			PasswordHash: r.PasswordHash,
			Role:         role,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// DeleteUser removes a user. Snippets and favorites go with it through
// ON DELETE CASCADE.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	return expectOneRow(s.db.ExecContext(ctx, s.queries.DeleteUser, id))
}

// ListUsers returns every user ordered by id.
func (s *Store) ListUsers(ctx context.Context) ([]*store.User, error) {
	rows, err := s.db.QueryContext(ctx, s.queries.SelectUsers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*store.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateUserRole changes a user's role.
func (s *Store) UpdateUserRole(ctx context.Context, id int64, role store.Role) error {
	if !role.Valid() {
		return store.ErrInvalidRole
	}
	return expectOneRow(s.db.ExecContext(ctx, s.queries.UpdateUserRole, string(role), id))
}

// UpdatePasswordHash replaces a user's password hash.
func (s *Store) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	return expectOneRow(s.db.ExecContext(ctx, s.queries.UpdatePasswordHash, hash, id))
}
