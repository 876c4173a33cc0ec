// Package repository is the content store of the blog. It turns reader,
// author and admin operations into declarative queries and single-document
// writes against one store collection.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/mantica/blog/backend/go-services/internal/blog"
	"github.com/mantica/blog/backend/go-services/internal/store"
	"github.com/mantica/blog/backend/go-services/pkg/logger"
	"github.com/mantica/blog/backend/go-services/pkg/metrics"
)

var (
	// ErrPrecondition rejects a call before anything is sent to the store.
	ErrPrecondition   = errors.New("precondition failed")
	ErrDuplicateID    = errors.New("article id already exists")
	ErrNotImplemented = errors.New("not implemented")
)

// Reader is the public, read-only view of the blog.
type Reader interface {
	GetArticleBySlug(ctx context.Context, slug, languageCode string) (*blog.ArticleVersion, error)
	GetArticles(ctx context.Context, afterID string, limit int, languageCode string) ([]blog.ArticleVersion, error)
	GetArticlesByMetadata(ctx context.Context, afterID string, limit int, languageCode string, t blog.MetadataType, metadataSlug string) ([]blog.ArticleVersion, error)
	GetArticlesByAuthor(ctx context.Context, afterID string, limit int, languageCode, authorSlug string) ([]blog.ArticleVersion, error)
	GetMetadataVersions(ctx context.Context, languageCode string) ([]blog.MetadataVersion, error)
}

// Author adds article and metadata maintenance.
type Author interface {
	Reader
	CreateArticle(ctx context.Context, a *blog.Article) (string, error)
	UpdateArticle(ctx context.Context, a *blog.Article) error
	GetArticlesByAuthorID(ctx context.Context, authorID string) ([]blog.Article, error)
	UpdateMetadata(ctx context.Context, m *blog.Metadata) error
	GetMetadata(ctx context.Context) (*blog.Metadata, error)
}

// Admin adds the author catalog.
type Admin interface {
	Author
	GetAuthors(ctx context.Context) (*blog.Authors, error)
	UpdateAuthors(ctx context.Context, a *blog.Authors) error
}

// IDMinter hands out new document ids. NextIDAfter resyncs a counter that
// fell behind and returns an id greater than lastID.
type IDMinter interface {
	NextID(ctx context.Context, kind string) (string, error)
	NextIDAfter(ctx context.Context, kind, lastID string) (string, error)
}

type Options struct {
	// PageSize is the number of documents fetched per store round trip.
	PageSize int
	// AuthorsCatalog enables GetAuthors and UpdateAuthors.
	AuthorsCatalog bool
}

// Repository implements Reader, Author and Admin. It keeps no state besides
// its collaborators and is safe for concurrent use.
type Repository struct {
	coll    store.Collection
	ids     IDMinter
	options Options
}

var _ Admin = (*Repository)(nil)

func New(db store.Database, ids IDMinter, collection string, opts Options) *Repository {
	if opts.PageSize <= 0 {
		opts.PageSize = store.DefaultPageSize
	}
	return &Repository{coll: db.Collection(collection), ids: ids, options: opts}
}

// readAll drains every page of p, decoding each document into T. The
// summed cost is logged with the query and recorded under op.
func readAll[T any](ctx context.Context, r *Repository, op string, p store.Pipeline) ([]T, error) {
	pager, err := r.coll.Query(ctx, p, store.QueryOptions{PageSize: r.options.PageSize})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer pager.Close(ctx)

	out := []T{}
	var cost float64
	for pager.HasMore() {
		page, err := pager.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		cost += page.Cost
		for _, d := range page.Documents {
			var v T
			if err := store.Decode(d, &v); err != nil {
				return nil, fmt.Errorf("%s: decode %s: %w", op, store.DocumentID(d), err)
			}
			out = append(out, v)
		}
	}
	logger.Infof("Query '%s', cost %v RUs", p, cost)
	metrics.ObserveStoreCost(op, cost)
	return out, nil
}

func first[T any](items []T) *T {
	if len(items) == 0 {
		return nil
	}
	return &items[0]
}
