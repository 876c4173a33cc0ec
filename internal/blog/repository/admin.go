package repository

import (
	"context"
	"fmt"

	"github.com/mantica/blog/backend/go-services/internal/blog"
	"github.com/mantica/blog/backend/go-services/internal/store"
)

// GetAuthors returns the author catalog, or nil when none is stored.
func (r *Repository) GetAuthors(ctx context.Context) (*blog.Authors, error) {
	if !r.options.AuthorsCatalog {
		return nil, fmt.Errorf("get authors: %w", ErrNotImplemented)
	}
	p := store.Pipeline{store.Match(store.Eq(store.IDField, blog.AuthorsID))}
	items, err := readAll[blog.Authors](ctx, r, "GetAuthors", p)
	if err != nil {
		return nil, err
	}
	return first(items), nil
}

// UpdateAuthors replaces the author catalog with the same revision rules as
// UpdateMetadata.
func (r *Repository) UpdateAuthors(ctx context.Context, a *blog.Authors) error {
	if !r.options.AuthorsCatalog {
		return fmt.Errorf("update authors: %w", ErrNotImplemented)
	}
	if a == nil {
		return fmt.Errorf("update authors: nil authors: %w", ErrPrecondition)
	}
	a.ID = blog.AuthorsID
	etag, err := r.replaceSingleton(ctx, "UpdateAuthors", a, a.ETag)
	if err != nil {
		return err
	}
	a.ETag = etag
	return nil
}
