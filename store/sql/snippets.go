package sql

import (
	"context"

	"github.com/codevault/codevault/store"
)

func scanSnippet(row scanner) (*store.Snippet, error) {
	var sn store.Snippet
	err := row.Scan(&sn.ID, &sn.OwnerID, &sn.Title, &sn.Language,
		&sn.Description, &sn.Code, &sn.Tags, &sn.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	sn.CreatedAt = sn.CreatedAt.UTC()
	return &sn, nil
}

// CreateSnippet inserts a snippet. An unknown owner violates the foreign
// key and is reported as ErrNotFound.
func (s *Store) CreateSnippet(ctx context.Context, ownerID int64, in store.SnippetInput) (*store.Snippet, error) {
	sn := &store.Snippet{
		OwnerID:     ownerID,
		Title:       in.Title,
		Language:    in.Language,
		Description: in.Description,
		Code:        in.Code,
		Tags:        in.Tags,
		CreatedAt:   s.now(),
	}
	id, err := s.insertID(ctx, s.db, s.queries.InsertSnippet,
		sn.OwnerID, sn.Title, sn.Language, sn.Description, sn.Code, sn.Tags, sn.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	sn.ID = id
	return sn, nil
}

// GetSnippet returns a snippet by id.
func (s *Store) GetSnippet(ctx context.Context, id int64) (*store.Snippet, error) {
	return scanSnippet(s.db.QueryRowContext(ctx, s.queries.SelectSnippet, id))
}

// ListSnippets returns the snippets of an owner, newest first.
func (s *Store) ListSnippets(ctx context.Context, ownerID int64) ([]*store.Snippet, error) {
	rows, err := s.db.QueryContext(ctx, s.queries.SelectSnippetsByOwner, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*store.Snippet
	for rows.Next() {
		sn, err := scanSnippet(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, sn)
	}
	return list, rows.Err()
}

// UpdateSnippet reads the row under a lock, applies the patch and writes
// every column back.
func (s *Store) UpdateSnippet(ctx context.Context, id int64, patch store.SnippetPatch) (*store.Snippet, error) {
	var updated *store.Snippet
	err := withTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		sn, err := scanSnippet(tx.QueryRowContext(ctx, s.queries.SelectSnippetForUpdate, id))
		if err != nil {
			return err
		}
		patch.Apply(sn)
		_, err = tx.ExecContext(ctx, s.queries.UpdateSnippet,
			sn.Title, sn.Language, sn.Description, sn.Code, sn.Tags, sn.ID)
		if err != nil {
			return err
		}
		updated = sn
		return nil
	})
	if err != nil {
		return nil, mapError(err)
	}
	return updated, nil
}

// DeleteSnippet removes a snippet. Favorites go with it through
// ON DELETE CASCADE.
func (s *Store) DeleteSnippet(ctx context.Context, id int64) error {
	return expectOneRow(s.db.ExecContext(ctx, s.queries.DeleteSnippet, id))
}

// ToggleFavorite removes the favorite if present, otherwise adds it.
func (s *Store) ToggleFavorite(ctx context.Context, userID, snippetID int64) (bool, error) {
	var on bool
	err := withTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		if _, err := scanSnippet(tx.QueryRowContext(ctx, s.queries.SelectSnippetForUpdate, snippetID)); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, s.queries.DeleteFavorite, userID, snippetID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n > 0 {
			on = false
			return nil
		}

		if _, err := tx.ExecContext(ctx, s.queries.InsertFavorite, userID, snippetID); err != nil {
			return err
		}
		on = true
		return nil
	})
	if err != nil {
		return false, mapError(err)
	}
	return on, nil
}

// ListFavoriteIDs returns the snippet ids a user has favorited, ascending.
func (s *Store) ListFavoriteIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, s.queries.SelectFavoriteIDs, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
