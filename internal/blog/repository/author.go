package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mantica/blog/backend/go-services/internal/blog"
	"github.com/mantica/blog/backend/go-services/internal/store"
	"github.com/mantica/blog/backend/go-services/pkg/logger"
	"github.com/mantica/blog/backend/go-services/pkg/metrics"
)

const articleKind = "article"

func stampVersions(versions []blog.ArticleVersion, id string) []blog.ArticleVersion {
	out := make([]blog.ArticleVersion, len(versions))
	copy(out, versions)
	for i := range out {
		out[i].ArticleID = id
	}
	return out
}

// CreateArticle mints a new id for a and inserts it. On success a carries
// the id, as does every one of its versions. A zero Created is stamped with
// the current time.
//
// If the minted id is already stored the counter has fallen behind the
// collection, e.g. after its key was lost. The counter is then raised past
// the highest stored article id and the insert is retried once.
func (r *Repository) CreateArticle(ctx context.Context, a *blog.Article) (string, error) {
	if a == nil {
		return "", fmt.Errorf("create article: nil article: %w", ErrPrecondition)
	}
	if a.ID != "" {
		return "", fmt.Errorf("create article: id %q already set: %w", a.ID, ErrPrecondition)
	}
	id, err := r.ids.NextID(ctx, articleKind)
	if err != nil {
		return "", err
	}

	stored := *a
	if stored.Created.IsZero() {
		stored.Created = time.Now().UTC().Truncate(time.Millisecond)
	}
	res, err := r.insertArticle(ctx, &stored, id)
	// the id procedure is one more round trip
	cost := res.Cost + 1
	if errors.Is(err, store.ErrConflict) {
		last, lerr := r.lastArticleID(ctx)
		if lerr != nil {
			return "", fmt.Errorf("create article %s: %w", id, lerr)
		}
		logger.Warnf("Article id '%s' already stored, resyncing counter after '%s'", id, last)
		if id, err = r.ids.NextIDAfter(ctx, articleKind, last); err != nil {
			return "", err
		}
		res, err = r.insertArticle(ctx, &stored, id)
		cost += res.Cost + 1
	}
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return "", fmt.Errorf("create article: %w: %s", ErrDuplicateID, id)
		}
		return "", fmt.Errorf("create article %s: %w", id, err)
	}

	logger.Infof("Article '%s' created, cost %v RUs", id, cost)
	metrics.ObserveStoreCost("CreateArticle", cost)
	a.ID = id
	a.Created = stored.Created
	a.Versions = stored.Versions
	return id, nil
}

// insertArticle stamps a with id and inserts it.
func (r *Repository) insertArticle(ctx context.Context, a *blog.Article, id string) (store.Result, error) {
	a.ID = id
	a.Versions = stampVersions(a.Versions, id)
	doc, err := store.Encode(a)
	if err != nil {
		return store.Result{}, err
	}
	return r.coll.Insert(ctx, doc)
}

// lastArticleID returns the highest stored article id.
func (r *Repository) lastArticleID(ctx context.Context) (string, error) {
	p := store.Pipeline{
		store.Match(store.HasPrefix(store.IDField, blog.ArticlePrefix)),
		store.Sort(store.IDField, true),
		store.Limit(1),
	}
	items, err := readAll[blog.Article](ctx, r, "lastArticleID", p)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "", errors.New("no stored article")
	}
	return items[0].ID, nil
}

// UpdateArticle replaces the stored article with a. Every version is
// re-stamped with the article id first. The whole document is replaced, so
// the caller owns Created and must carry over the value it read.
func (r *Repository) UpdateArticle(ctx context.Context, a *blog.Article) error {
	if a == nil {
		return fmt.Errorf("update article: nil article: %w", ErrPrecondition)
	}
	if !strings.HasPrefix(a.ID, blog.ArticlePrefix) {
		return fmt.Errorf("update article: invalid id %q: %w", a.ID, ErrPrecondition)
	}
	a.Versions = stampVersions(a.Versions, a.ID)
	doc, err := store.Encode(a)
	if err != nil {
		return fmt.Errorf("update article %s: %w", a.ID, err)
	}
	res, err := r.coll.Upsert(ctx, doc, store.UpsertOptions{})
	if err != nil {
		return fmt.Errorf("update article %s: %w", a.ID, err)
	}
	logger.Infof("Article '%s' updated, cost %v RUs", a.ID, res.Cost)
	metrics.ObserveStoreCost("UpdateArticle", res.Cost)
	return nil
}

// GetArticlesByAuthorID returns every article, in any state, with at least
// one version written by authorID.
func (r *Repository) GetArticlesByAuthorID(ctx context.Context, authorID string) ([]blog.Article, error) {
	p := store.Pipeline{
		store.Match(store.HasPrefix(store.IDField, blog.ArticlePrefix), store.Eq("versions.author.slug", authorID)),
		store.Sort(store.IDField, false),
	}
	return readAll[blog.Article](ctx, r, "GetArticlesByAuthorID", p)
}

// UpdateMetadata replaces the metadata catalog. m.ETag must be the revision
// m was read at; an empty ETag only succeeds when no catalog exists yet.
// A concurrent update in between fails with store.ErrPreconditionFailed and
// the caller is expected to re-read and retry. On success m.ETag holds the
// new revision.
func (r *Repository) UpdateMetadata(ctx context.Context, m *blog.Metadata) error {
	if m == nil {
		return fmt.Errorf("update metadata: nil metadata: %w", ErrPrecondition)
	}
	m.ID = blog.MetadataID
	etag, err := r.replaceSingleton(ctx, "UpdateMetadata", m, m.ETag)
	if err != nil {
		return err
	}
	m.ETag = etag
	return nil
}

func (r *Repository) GetMetadata(ctx context.Context) (*blog.Metadata, error) {
	p := store.Pipeline{store.Match(store.Eq(store.IDField, blog.MetadataID))}
	items, err := readAll[blog.Metadata](ctx, r, "GetMetadata", p)
	if err != nil {
		return nil, err
	}
	return first(items), nil
}

// replaceSingleton writes v conditionally on etag and returns the new etag.
func (r *Repository) replaceSingleton(ctx context.Context, op string, v interface{}, etag string) (string, error) {
	doc, err := store.Encode(v)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	id := store.DocumentID(doc)

	var res store.Result
	if etag == "" {
		res, err = r.coll.Insert(ctx, doc)
		if errors.Is(err, store.ErrConflict) {
			err = fmt.Errorf("%s exists, read it first: %w", id, store.ErrPreconditionFailed)
		}
	} else {
		res, err = r.coll.Upsert(ctx, doc, store.UpsertOptions{IfMatch: etag})
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	logger.Infof("Updated %s, cost %v RUs", id, res.Cost)
	metrics.ObserveStoreCost(op, res.Cost)
	return res.ETag, nil
}
