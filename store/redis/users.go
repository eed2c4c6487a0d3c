package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codevault/codevault/store"
)

// userRecord is the stored form of a user. Unlike store.User it keeps the
// password hash in JSON.
type userRecord struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

func recordFromUser(u *store.User) userRecord {
	return userRecord{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt,
	}
}

// user validates the stored role.
func (r userRecord) user() (*store.User, error) {
	role, err := store.ParseRole(r.Role)
	if err != nil {
		return nil, err
	}
	return &store.User{
		ID:           r.ID,
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Role:         role,
		CreatedAt:    r.CreatedAt.UTC(),
	}, nil
}

func decodeUser(data []byte) (*store.User, error) {
	var rec userRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return rec.user()
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *Store) getUser(ctx context.Context, c getter, id int64) (*store.User, error) {
	data, err := c.Get(ctx, s.userKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeUser(data)
}

func (s *Store) getUserByIndex(ctx context.Context, indexKey string) (*store.User, error) {
	idStr, err := s.client.Get(ctx, indexKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	id, err := parseID(idStr)
	if err != nil {
		return nil, err
	}
	return s.getUser(ctx, s.client, id)
}

// FindUserByID returns a user by id.
func (s *Store) FindUserByID(ctx context.Context, id int64) (*store.User, error) {
	return s.getUser(ctx, s.client, id)
}

// FindUserByEmail returns a user by email, ignoring case.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*store.User, error) {
	return s.getUserByIndex(ctx, s.emailKey(email))
}

// FindUserByUsername returns a user by username.
func (s *Store) FindUserByUsername(ctx context.Context, username string) (*store.User, error) {
	return s.getUserByIndex(ctx, s.usernameKey(username))
}

// FindUserByUsernameOrEmail returns a user colliding on either field.
func (s *Store) FindUserByUsernameOrEmail(ctx context.Context, username, email string) (*store.User, error) {
	u, err := s.FindUserByUsername(ctx, username)
	if !errors.Is(err, store.ErrNotFound) {
		return u, err
	}
	return s.FindUserByEmail(ctx, email)
}

// CountUsers returns the number of users.
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	return s.client.ZCard(ctx, s.key(keyUsers)).Result()
}

// CreateUser inserts a user with an explicit role.
func (s *Store) CreateUser(ctx context.Context, nu store.NewUser) (*store.User, error) {
	if !nu.Role.Valid() {
		return nil, store.ErrInvalidRole
	}
	return s.insertUser(ctx, nu.Username, nu.Email, nu.PasswordHash, func(int64) store.Role {
		return nu.Role
	})
}

// RegisterUser inserts a user whose role depends on the user count. The
// count, the index keys and the user set are watched, so a concurrent
// registration forces a retry that sees the new count.
func (s *Store) RegisterUser(ctx context.Context, r store.Registration) (*store.User, error) {
	return s.insertUser(ctx, r.Username, r.Email, r.PasswordHash, func(count int64) store.Role {
		if count == 0 {
			return store.RoleAdmin
		}
		return store.RoleUser
	})
}

func (s *Store) insertUser(ctx context.Context, username, email, hash string, roleFor func(count int64) store.Role) (*store.User, error) {
	emailKey := s.emailKey(email)
	usernameKey := s.usernameKey(username)
	usersKey := s.key(keyUsers)

	var created *store.User
	err := s.watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, emailKey, usernameKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return store.ErrConflict
		}

		count, err := tx.ZCard(ctx, usersKey).Result()
		if err != nil {
			return err
		}

		id, err := tx.Incr(ctx, s.key(keyUserSeq)).Result()
		if err != nil {
			return err
		}

		u := &store.User{
			ID:           id,
			Username:     username,
			Email:        strings.ToLower(strings.TrimSpace(email)),
			PasswordHash: hash,
			Role:         roleFor(count),
			CreatedAt:    s.now(),
		}
		data, err := json.Marshal(recordFromUser(u))
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			idStr := strconv.FormatInt(id, 10)
			pipe.Set(ctx, s.userKey(id), data, 0)
			pipe.Set(ctx, emailKey, idStr, 0)
			pipe.Set(ctx, usernameKey, idStr, 0)
			pipe.ZAdd(ctx, usersKey, redis.Z{Score: float64(id), Member: idStr})
			return nil
		})
		if err != nil {
			return err
		}
		created = u
		return nil
	}, emailKey, usernameKey, usersKey)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// deleteUserScript removes a user, the user's snippets, and every favorite
// pointing at either, atomically.
var deleteUserScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
local prefix = ARGV[1]
local uid = ARGV[2]
for _, sid in ipairs(redis.call('SMEMBERS', KEYS[6])) do
  redis.call('SREM', prefix .. 'snippet_favorited_by:' .. sid, uid)
end
for _, sid in ipairs(redis.call('ZRANGE', KEYS[5], 0, -1)) do
  for _, fan in ipairs(redis.call('SMEMBERS', prefix .. 'snippet_favorited_by:' .. sid)) do
    redis.call('SREM', prefix .. 'favorites:' .. fan, sid)
  end
  redis.call('DEL', prefix .. 'snippet:' .. sid, prefix .. 'snippet_favorited_by:' .. sid)
end
redis.call('DEL', KEYS[1], KEYS[2], KEYS[3], KEYS[5], KEYS[6])
redis.call('ZREM', KEYS[4], uid)
return 1
`)

// DeleteUser removes a user with the user's snippets and favorites.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	u, err := s.getUser(ctx, s.client, id)
	if err != nil {
		return err
	}

	keys := []string{
		s.userKey(id),
		s.emailKey(u.Email),
		s.usernameKey(u.Username),
		s.key(keyUsers),
		s.userSnippetsKey(id),
		s.favoritesKey(id),
	}
	deleted, err := deleteUserScript.Run(ctx, s.client, keys, s.prefix, strconv.FormatInt(id, 10)).Int()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListUsers returns every user ordered by id.
func (s *Store) ListUsers(ctx context.Context) ([]*store.User, error) {
	members, err := s.client.ZRange(ctx, s.key(keyUsers), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}

	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = s.key(keyUser, m)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	users := make([]*store.User, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue // deleted between ZRANGE and MGET
		}
		u, err := decodeUser([]byte(str))
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// updateUser applies fn to the stored user under WATCH.
func (s *Store) updateUser(ctx context.Context, id int64, fn func(u *store.User)) error {
	key := s.userKey(id)
	return s.watch(ctx, func(tx *redis.Tx) error {
		u, err := s.getUser(ctx, tx, id)
		if err != nil {
			return err
		}
		fn(u)
		data, err := json.Marshal(recordFromUser(u))
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
}

// UpdateUserRole changes a user's role.
func (s *Store) UpdateUserRole(ctx context.Context, id int64, role store.Role) error {
	if !role.Valid() {
		return store.ErrInvalidRole
	}
	return s.updateUser(ctx, id, func(u *store.User) { u.Role = role })
}

// UpdatePasswordHash replaces a user's password hash.
func (s *Store) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	return s.updateUser(ctx, id, func(u *store.User) { u.PasswordHash = hash })
}
