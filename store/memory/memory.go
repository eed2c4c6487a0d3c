// Package memory provides an in-memory store implementation for testing and
// single-process deployments.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/codevault/codevault/store"
)

// Store is an in-memory implementation of the store.Store interface.
// Every operation runs under a single lock, so read-then-write sequences are
// atomic.
type Store struct {
	mu sync.RWMutex

	users      map[int64]*store.User
	byEmail    map[string]int64
	byUsername map[string]int64
	snippets   map[int64]*store.Snippet
	favorites  map[int64]map[int64]struct{} // user id -> snippet ids

	nextUserID    int64
	nextSnippetID int64

	now    func() time.Time
	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		users:      make(map[int64]*store.User),
		byEmail:    make(map[string]int64),
		byUsername: make(map[string]int64),
		snippets:   make(map[int64]*store.Snippet),
		favorites:  make(map[int64]map[int64]struct{}),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

var _ store.Store = (*Store)(nil)

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping reports ErrClosed after Close.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}
	return nil
}

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(ctx context.Context) error {
	return nil
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func copyUser(u *store.User) *store.User {
	c := *u
	return &c
}

func copySnippet(sn *store.Snippet) *store.Snippet {
	c := *sn
	return &c
}

// FindUserByID returns a user by id.
func (s *Store) FindUserByID(ctx context.Context, id int64) (*store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyUser(u), nil
}

// FindUserByEmail returns a user by email, ignoring case.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[emailKey(email)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyUser(s.users[id]), nil
}

// FindUserByUsername returns a user by username.
func (s *Store) FindUserByUsername(ctx context.Context, username string) (*store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUsername[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyUser(s.users[id]), nil
}

// FindUserByUsernameOrEmail returns a user colliding on either field.
func (s *Store) FindUserByUsernameOrEmail(ctx context.Context, username, email string) (*store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u := s.collision(username, email); u != nil {
		return copyUser(u), nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) collision(username, email string) *store.User {
	if id, ok := s.byUsername[username]; ok {
		return s.users[id]
	}
	if id, ok := s.byEmail[emailKey(email)]; ok {
		return s.users[id]
	}
	return nil
}

// CountUsers returns the number of users.
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}

// CreateUser inserts a user with an explicit role.
func (s *Store) CreateUser(ctx context.Context, nu store.NewUser) (*store.User, error) {
	if !nu.Role.Valid() {
		return nil, store.ErrInvalidRole
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertUser(nu)
}

// RegisterUser inserts a user and decides the role under the write lock.
func (s *Store) RegisterUser(ctx context.Context, r store.Registration) (*store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	role := store.RoleUser
	if len(s.users) == 0 {
		role = store.RoleAdmin
	}
	return s.insertUser(store.NewUser{
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Role:         role,
	})
}

// insertUser must be called with the write lock held.
func (s *Store) insertUser(nu store.NewUser) (*store.User, error) {
	if s.closed {
		return nil, store.ErrClosed
	}
	if s.collision(nu.Username, nu.Email) != nil {
		return nil, store.ErrConflict
	}

	s.nextUserID++
	u := &store.User{
		ID:           s.nextUserID,
		Username:     nu.Username,
		Email:        emailKey(nu.Email),
		PasswordHash: nu.PasswordHash,
		Role:         nu.Role,
		CreatedAt:    s.now(),
	}
	s.users[u.ID] = u
	s.byEmail[u.Email] = u.ID
	s.byUsername[u.Username] = u.ID
	return copyUser(u), nil
}

// DeleteUser removes a user, the user's snippets and every favorite that
// references either.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.users, id)
	delete(s.byEmail, u.Email)
	delete(s.byUsername, u.Username)
	delete(s.favorites, id)

	for sid, sn := range s.snippets {
		if sn.OwnerID == id {
			s.removeSnippet(sid)
		}
	}
	return nil
}

// ListUsers returns every user ordered by id.
func (s *Store) ListUsers(ctx context.Context) ([]*store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]*store.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, copyUser(u))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// UpdateUserRole changes a user's role.
func (s *Store) UpdateUserRole(ctx context.Context, id int64, role store.Role) error {
	if !role.Valid() {
		return store.ErrInvalidRole
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.Role = role
	return nil
}

// UpdatePasswordHash replaces a user's password hash.
func (s *Store) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

// CreateSnippet inserts a snippet.
func (s *Store) CreateSnippet(ctx context.Context, ownerID int64, in store.SnippetInput) (*store.Snippet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[ownerID]; !ok {
		return nil, store.ErrNotFound
	}
	s.nextSnippetID++
	sn := &store.Snippet{
		ID:          s.nextSnippetID,
		OwnerID:     ownerID,
		Title:       in.Title,
		Language:    in.Language,
		Description: in.Description,
		Code:        in.Code,
		Tags:        in.Tags,
		CreatedAt:   s.now(),
	}
	s.snippets[sn.ID] = sn
	return copySnippet(sn), nil
}

// GetSnippet returns a snippet by id.
func (s *Store) GetSnippet(ctx context.Context, id int64) (*store.Snippet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sn, ok := s.snippets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copySnippet(sn), nil
}

// ListSnippets returns the snippets of an owner, newest first.
func (s *Store) ListSnippets(ctx context.Context, ownerID int64) ([]*store.Snippet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []*store.Snippet
	for _, sn := range s.snippets {
		if sn.OwnerID == ownerID {
			list = append(list, copySnippet(sn))
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	return list, nil
}

// UpdateSnippet applies a partial update.
func (s *Store) UpdateSnippet(ctx context.Context, id int64, patch store.SnippetPatch) (*store.Snippet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sn, ok := s.snippets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	patch.Apply(sn)
	return copySnippet(sn), nil
}

// DeleteSnippet removes a snippet and its favorites.
func (s *Store) DeleteSnippet(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.snippets[id]; !ok {
		return store.ErrNotFound
	}
	s.removeSnippet(id)
	return nil
}

// removeSnippet must be called with the write lock held.
func (s *Store) removeSnippet(id int64) {
	delete(s.snippets, id)
	for _, favs := range s.favorites {
		delete(favs, id)
	}
}

// ToggleFavorite flips the favorite flag and returns the new state.
func (s *Store) ToggleFavorite(ctx context.Context, userID, snippetID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.snippets[snippetID]; !ok {
		return false, store.ErrNotFound
	}
	favs, ok := s.favorites[userID]
	if !ok {
		favs = make(map[int64]struct{})
		s.favorites[userID] = favs
	}
	if _, on := favs[snippetID]; on {
		delete(favs, snippetID)
		return false, nil
	}
	favs[snippetID] = struct{}{}
	return true, nil
}

// ListFavoriteIDs returns the snippet ids a user has favorited, ascending.
func (s *Store) ListFavoriteIDs(ctx context.Context, userID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.favorites[userID]))
	for id := range s.favorites[userID] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
