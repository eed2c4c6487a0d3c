package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/codevault/codevault/store"
)

func (s *Store) getSnippet(ctx context.Context, c getter, id int64) (*store.Snippet, error) {
	data, err := c.Get(ctx, s.snippetKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var sn store.Snippet
	if err := json.Unmarshal(data, &sn); err != nil {
		return nil, err
	}
	sn.IsFavorite = false
	return &sn, nil
}

func encodeSnippet(sn *store.Snippet) ([]byte, error) {
	rec := *sn
	rec.IsFavorite = false
	return json.Marshal(&rec)
}

// CreateSnippet inserts a snippet. The owner key is watched so a snippet
// cannot be attached to a user deleted concurrently.
func (s *Store) CreateSnippet(ctx context.Context, ownerID int64, in store.SnippetInput) (*store.Snippet, error) {
	ownerKey := s.userKey(ownerID)

	var created *store.Snippet
	err := s.watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, ownerKey).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return store.ErrNotFound
		}

		id, err := tx.Incr(ctx, s.key(keySnippetSeq)).Result()
		if err != nil {
			return err
		}
		sn := &store.Snippet{
			ID:          id,
			OwnerID:     ownerID,
			Title:       in.Title,
			Language:    in.Language,
			Description: in.Description,
			Code:        in.Code,
			Tags:        in.Tags,
			CreatedAt:   s.now(),
		}
		data, err := encodeSnippet(sn)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.snippetKey(id), data, 0)
			pipe.ZAdd(ctx, s.userSnippetsKey(ownerID), redis.Z{Score: float64(id), Member: strconv.FormatInt(id, 10)})
			return nil
		})
		if err != nil {
			return err
		}
		created = sn
		return nil
	}, ownerKey)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetSnippet returns a snippet by id.
func (s *Store) GetSnippet(ctx context.Context, id int64) (*store.Snippet, error) {
	return s.getSnippet(ctx, s.client, id)
}

// ListSnippets returns the snippets of an owner, newest first.
func (s *Store) ListSnippets(ctx context.Context, ownerID int64) ([]*store.Snippet, error) {
	members, err := s.client.ZRevRange(ctx, s.userSnippetsKey(ownerID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}

	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = s.key(keySnippet, m)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	list := make([]*store.Snippet, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var sn store.Snippet
		if err := json.Unmarshal([]byte(str), &sn); err != nil {
			return nil, err
		}
		list = append(list, &sn)
	}
	return list, nil
}

// UpdateSnippet applies a partial update under WATCH.
func (s *Store) UpdateSnippet(ctx context.Context, id int64, patch store.SnippetPatch) (*store.Snippet, error) {
	key := s.snippetKey(id)

	var updated *store.Snippet
	err := s.watch(ctx, func(tx *redis.Tx) error {
		sn, err := s.getSnippet(ctx, tx, id)
		if err != nil {
			return err
		}
		patch.Apply(sn)
		data, err := encodeSnippet(sn)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		if err != nil {
			return err
		}
		updated = sn
		return nil
	}, key)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// deleteSnippetScript removes a snippet and every favorite pointing at it.
var deleteSnippetScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
for _, fan in ipairs(redis.call('SMEMBERS', KEYS[2])) do
  redis.call('SREM', ARGV[1] .. 'favorites:' .. fan, ARGV[2])
end
redis.call('DEL', KEYS[1], KEYS[2])
redis.call('ZREM', KEYS[3], ARGV[2])
return 1
`)

// DeleteSnippet removes a snippet and its favorites.
func (s *Store) DeleteSnippet(ctx context.Context, id int64) error {
	sn, err := s.getSnippet(ctx, s.client, id)
	if err != nil {
		return err
	}

	keys := []string{s.snippetKey(id), s.favoritersKey(id), s.userSnippetsKey(sn.OwnerID)}
	deleted, err := deleteSnippetScript.Run(ctx, s.client, keys, s.prefix, strconv.FormatInt(id, 10)).Int()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return store.ErrNotFound
	}
	return nil
}

// toggleFavoriteScript returns -1 for a missing snippet, otherwise the new
// favorite state as 0 or 1.
var toggleFavoriteScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
if redis.call('SISMEMBER', KEYS[2], ARGV[1]) == 1 then
  redis.call('SREM', KEYS[2], ARGV[1])
  redis.call('SREM', KEYS[3], ARGV[2])
  return 0
end
redis.call('SADD', KEYS[2], ARGV[1])
redis.call('SADD', KEYS[3], ARGV[2])
return 1
`)

// ToggleFavorite flips the favorite flag in a single script call.
func (s *Store) ToggleFavorite(ctx context.Context, userID, snippetID int64) (bool, error) {
	keys := []string{s.snippetKey(snippetID), s.favoritesKey(userID), s.favoritersKey(snippetID)}
	state, err := toggleFavoriteScript.Run(ctx, s.client, keys,
		strconv.FormatInt(snippetID, 10), strconv.FormatInt(userID, 10)).Int()
	if err != nil {
		return false, err
	}
	if state < 0 {
		return false, store.ErrNotFound
	}
	return state == 1, nil
}

// ListFavoriteIDs returns the snippet ids a user has favorited, ascending.
func (s *Store) ListFavoriteIDs(ctx context.Context, userID int64) ([]int64, error) {
	members, err := s.client.SMembers(ctx, s.favoritesKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := parseID(m)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
