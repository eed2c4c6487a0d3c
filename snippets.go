package codevault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/codevault/codevault/events"
	"github.com/codevault/codevault/search"
	"github.com/codevault/codevault/store"
)

// CreateSnippet stores a new snippet owned by caller.
func (v *Vault) CreateSnippet(ctx context.Context, caller *store.User, in store.SnippetInput) (*store.Snippet, error) {
	if caller == nil {
		return nil, unauthenticated()
	}

	in.Title = strings.TrimSpace(in.Title)
	in.Language = strings.TrimSpace(in.Language)
	if err := validateSnippet(in.Title, in.Language, in.Description, in.Code, in.Tags); err != nil {
		return nil, err
	}

	sn, err := v.store.CreateSnippet(ctx, caller.ID, in)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, unauthenticated()
		}
		return nil, fmt.Errorf("failed to create snippet: %w", err)
	}

	v.index(ctx, sn)
	e := v.event(events.SnippetCreated, caller, caller.ID)
	e.SnippetID = sn.ID
	v.publish(ctx, e)

	return sn, nil
}

// GetSnippet returns one of caller's snippets. Snippets owned by someone
// else are reported as ErrNotFound.
func (v *Vault) GetSnippet(ctx context.Context, caller *store.User, id int64) (*store.Snippet, error) {
	sn, err := v.ownedSnippet(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if err := v.markFavorites(ctx, caller, sn); err != nil {
		return nil, err
	}
	return sn, nil
}

// ListSnippets returns caller's snippets narrowed and ordered by filter.
func (v *Vault) ListSnippets(ctx context.Context, caller *store.User, filter store.SnippetFilter) ([]*store.Snippet, error) {
	if caller == nil {
		return nil, unauthenticated()
	}

	list, err := v.store.ListSnippets(ctx, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snippets: %w", err)
	}
	if err := v.markFavorites(ctx, caller, list...); err != nil {
		return nil, err
	}
	return filter.Apply(list), nil
}

// ListFavorites returns caller's favorited snippets, newest first.
func (v *Vault) ListFavorites(ctx context.Context, caller *store.User) ([]*store.Snippet, error) {
	return v.ListSnippets(ctx, caller, store.SnippetFilter{FavoritesOnly: true})
}

// UpdateSnippet applies the non-nil fields of patch to one of caller's
// snippets.
func (v *Vault) UpdateSnippet(ctx context.Context, caller *store.User, id int64, patch store.SnippetPatch) (*store.Snippet, error) {
	current, err := v.ownedSnippet(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	next := *current
	patch.Apply(&next)
	next.Title = strings.TrimSpace(next.Title)
	next.Language = strings.TrimSpace(next.Language)
	if err := validateSnippet(next.Title, next.Language, next.Description, next.Code, next.Tags); err != nil {
		return nil, err
	}
	patch.Title = &next.Title
	patch.Language = &next.Language

	sn, err := v.store.UpdateSnippet(ctx, id, patch)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, snippetNotFound()
		}
		return nil, fmt.Errorf("failed to update snippet: %w", err)
	}
	if err := v.markFavorites(ctx, caller, sn); err != nil {
		return nil, err
	}

	v.index(ctx, sn)
	e := v.event(events.SnippetUpdated, caller, caller.ID)
	e.SnippetID = sn.ID
	v.publish(ctx, e)

	return sn, nil
}

// DeleteSnippet removes one of caller's snippets and its favorites.
func (v *Vault) DeleteSnippet(ctx context.Context, caller *store.User, id int64) error {
	if _, err := v.ownedSnippet(ctx, caller, id); err != nil {
		return err
	}

	if err := v.store.DeleteSnippet(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return snippetNotFound()
		}
		return fmt.Errorf("failed to delete snippet: %w", err)
	}

	if err := v.indexer.DeleteSnippet(ctx, id); err != nil {
		v.log.Warn(ctx, "failed to unindex snippet", "snippet_id", id, "error", err)
	}
	e := v.event(events.SnippetDeleted, caller, caller.ID)
	e.SnippetID = id
	v.publish(ctx, e)

	return nil
}

// ToggleFavorite flips the favorite flag of one of caller's snippets and
// returns the new state.
func (v *Vault) ToggleFavorite(ctx context.Context, caller *store.User, id int64) (bool, error) {
	if _, err := v.ownedSnippet(ctx, caller, id); err != nil {
		return false, err
	}

	on, err := v.store.ToggleFavorite(ctx, caller.ID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, snippetNotFound()
		}
		return false, fmt.Errorf("failed to toggle favorite: %w", err)
	}
	return on, nil
}

// SearchSnippets runs a full-text query over caller's snippets. Without a
// usable search index it falls back to substring matching in the store.
func (v *Vault) SearchSnippets(ctx context.Context, caller *store.User, query string) ([]*store.Snippet, error) {
	if caller == nil {
		return nil, unauthenticated()
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return v.ListSnippets(ctx, caller, store.SnippetFilter{})
	}

	ids, err := v.indexer.Search(ctx, caller.ID, query)
	if err != nil {
		if !errors.Is(err, search.ErrUnavailable) {
			v.log.Warn(ctx, "snippet search failed", "error", err)
		}
		return v.ListSnippets(ctx, caller, store.SnippetFilter{Query: query})
	}

	list := make([]*store.Snippet, 0, len(ids))
	for _, id := range ids {
		sn, err := v.store.GetSnippet(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load snippet: %w", err)
		}
		// The index may lag behind ownership changes.
		if sn.OwnerID != caller.ID {
			continue
		}
		list = append(list, sn)
	}
	if err := v.markFavorites(ctx, caller, list...); err != nil {
		return nil, err
	}
	return list, nil
}

func (v *Vault) ownedSnippet(ctx context.Context, caller *store.User, id int64) (*store.Snippet, error) {
	if caller == nil {
		return nil, unauthenticated()
	}

	sn, err := v.store.GetSnippet(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, snippetNotFound()
		}
		return nil, fmt.Errorf("failed to load snippet: %w", err)
	}
	if sn.OwnerID != caller.ID {
		return nil, snippetNotFound()
	}
	return sn, nil
}

func (v *Vault) markFavorites(ctx context.Context, caller *store.User, snippets ...*store.Snippet) error {
	if len(snippets) == 0 {
		return nil
	}

	ids, err := v.store.ListFavoriteIDs(ctx, caller.ID)
	if err != nil {
		return fmt.Errorf("failed to list favorites: %w", err)
	}
	favs := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		favs[id] = struct{}{}
	}
	for _, sn := range snippets {
		_, sn.IsFavorite = favs[sn.ID]
	}
	return nil
}

func (v *Vault) index(ctx context.Context, sn *store.Snippet) {
	if err := v.indexer.IndexSnippet(ctx, sn); err != nil {
		v.log.Warn(ctx, "failed to index snippet", "snippet_id", sn.ID, "error", err)
	}
}

func snippetNotFound() error {
	return NewError(CodeNotFound, "snippet not found", ErrNotFound)
}

func validateSnippet(title, language, description, code, tags string) error {
	switch {
	case title == "":
		return invalidInput("title is required")
	case utf8.RuneCountInString(title) > store.MaxTitleLen:
		return invalidInput("title must be at most %d characters", store.MaxTitleLen)
	case language == "":
		return invalidInput("language is required")
	case utf8.RuneCountInString(language) > store.MaxLanguageLen:
		return invalidInput("language must be at most %d characters", store.MaxLanguageLen)
	case utf8.RuneCountInString(description) > store.MaxDescriptionLen:
		return invalidInput("description must be at most %d characters", store.MaxDescriptionLen)
	case strings.TrimSpace(code) == "":
		return invalidInput("code is required")
	case utf8.RuneCountInString(tags) > store.MaxTagsLen:
		return invalidInput("tags must be at most %d characters", store.MaxTagsLen)
	}
	return nil
}
