// Package search indexes snippets for full-text search.
package search

import (
	"context"
	"errors"

	"github.com/codevault/codevault/store"
)

// ErrUnavailable is returned when no search backend is configured or the
// backend cannot answer. Callers fall back to filtering in the store.
var ErrUnavailable = errors.New("search: index unavailable")

// Indexer maintains a full-text index of snippets.
type Indexer interface {
	// IndexSnippet adds or replaces a snippet document.
	IndexSnippet(ctx context.Context, sn *store.Snippet) error

	// DeleteSnippet removes a snippet document. Missing documents are not
	// an error.
	DeleteSnippet(ctx context.Context, id int64) error

	// Search returns the ids of ownerID's snippets matching query, best
	// match first.
	Search(ctx context.Context, ownerID int64, query string) ([]int64, error)
}

// Nop is an Indexer with no backend.
type Nop struct{}

// IndexSnippet does nothing.
func (Nop) IndexSnippet(context.Context, *store.Snippet) error { return nil }

// DeleteSnippet does nothing.
func (Nop) DeleteSnippet(context.Context, int64) error { return nil }

// Search always reports ErrUnavailable.
func (Nop) Search(context.Context, int64, string) ([]int64, error) {
	return nil, ErrUnavailable
}
