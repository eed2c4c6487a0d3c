// Package store defines the persistence contract for CodeVault: user
// credentials, snippets and favorites.
//
// Implementations live in the memory, sql and redis subpackages. All methods
// must be safe for concurrent use, and every mutation must be durable before
// it returns.
package store

import (
	"context"
	"errors"
)

// Store errors.
var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a unique username or email is taken.
	ErrConflict = errors.New("username or email already exists")

	// ErrInvalidRole is returned for a role outside the closed set, whether it
	// comes from a caller or from persisted data.
	ErrInvalidRole = errors.New("invalid role")

	// ErrClosed is returned by stores used after Close.
	ErrClosed = errors.New("store is closed")
)

// UserStore persists user identity records.
type UserStore interface {
	// FindUserByID returns the user with id, or ErrNotFound.
	FindUserByID(ctx context.Context, id int64) (*User, error)

	// FindUserByEmail returns the user with email, or ErrNotFound.
	FindUserByEmail(ctx context.Context, email string) (*User, error)

	// FindUserByUsername returns the user with username, or ErrNotFound.
	FindUserByUsername(ctx context.Context, username string) (*User, error)

	// FindUserByUsernameOrEmail returns a user whose username or email
	// collides with the arguments, or ErrNotFound.
	FindUserByUsernameOrEmail(ctx context.Context, username, email string) (*User, error)

	// CountUsers returns the number of users.
	CountUsers(ctx context.Context) (int64, error)

	// CreateUser inserts a user with an explicit role. It fails with
	// ErrConflict if the username or email is taken and never overwrites.
	CreateUser(ctx context.Context, u NewUser) (*User, error)

	// RegisterUser inserts a self-registered user. The uniqueness check, the
	// role decision (admin when no user exists yet, user otherwise) and the
	// insert happen in one atomic unit.
	RegisterUser(ctx context.Context, r Registration) (*User, error)

	// DeleteUser removes a user with its snippets and favorites, or returns
	// ErrNotFound.
	DeleteUser(ctx context.Context, id int64) error

	// ListUsers returns every user ordered by id.
	ListUsers(ctx context.Context) ([]*User, error)

	// UpdateUserRole changes a user's role.
	UpdateUserRole(ctx context.Context, id int64, role Role) error

	// UpdatePasswordHash replaces a user's password hash.
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
}

// SnippetStore persists snippets and the favorites join.
type SnippetStore interface {
	// CreateSnippet inserts a snippet owned by ownerID.
	CreateSnippet(ctx context.Context, ownerID int64, in SnippetInput) (*Snippet, error)

	// GetSnippet returns a snippet by id, or ErrNotFound.
	GetSnippet(ctx context.Context, id int64) (*Snippet, error)

	// ListSnippets returns the snippets owned by ownerID, newest first.
	ListSnippets(ctx context.Context, ownerID int64) ([]*Snippet, error)

	// UpdateSnippet applies the non-nil fields of patch.
	UpdateSnippet(ctx context.Context, id int64, patch SnippetPatch) (*Snippet, error)

	// DeleteSnippet removes a snippet and its favorites, or returns ErrNotFound.
	DeleteSnippet(ctx context.Context, id int64) error

	// ToggleFavorite atomically flips the favorite flag of snippetID for
	// userID and returns the new state.
	ToggleFavorite(ctx context.Context, userID, snippetID int64) (bool, error)

	// ListFavoriteIDs returns the ids of the snippets userID has favorited.
	ListFavoriteIDs(ctx context.Context, userID int64) ([]int64, error)
}

// Store is the full persistence contract.
type Store interface {
	UserStore
	SnippetStore

	// Close releases any resources held by the store.
	Close() error

	// Ping verifies the store connection is alive.
	Ping(ctx context.Context) error

	// Migrate creates or updates the schema.
	Migrate(ctx context.Context) error
}
