package repository

import (
	"context"

	"github.com/mantica/blog/backend/go-services/internal/blog"
	"github.com/mantica/blog/backend/go-services/internal/store"
)

// Article pages are cursor-by-id: articles are ordered by id and only ids
// greater than the cursor qualify. Ids are zero padded, so the string order
// is the creation order. The limit applies to the versions that survive the
// language and version filters.
func articlePage(afterID string, limit int, languageCode string, versionFilter ...store.Condition) store.Pipeline {
	articleFilter := []store.Condition{store.HasPrefix(store.IDField, blog.ArticlePrefix)}
	if afterID != "" {
		articleFilter = append(articleFilter, store.Gt(store.IDField, afterID))
	}
	articleFilter = append(articleFilter, store.Eq("state", blog.Published))

	versionFilter = append([]store.Condition{store.Eq("versions.languageCode", languageCode)}, versionFilter...)
	return store.Pipeline{
		store.Match(articleFilter...),
		store.Sort(store.IDField, false),
		store.Unwind("versions"),
		store.Match(versionFilter...),
		store.Limit(limit),
		store.ReplaceRoot("versions"),
	}
}

// GetArticleBySlug returns the first version in languageCode with the given
// slug, or nil when there is none.
func (r *Repository) GetArticleBySlug(ctx context.Context, slug, languageCode string) (*blog.ArticleVersion, error) {
	p := store.Pipeline{
		store.Match(store.HasPrefix(store.IDField, blog.ArticlePrefix)),
		store.Unwind("versions"),
		store.Match(store.Eq("versions.languageCode", languageCode), store.Eq("versions.slug", slug)),
		store.Limit(1),
		store.ReplaceRoot("versions"),
	}
	versions, err := readAll[blog.ArticleVersion](ctx, r, "GetArticleBySlug", p)
	if err != nil {
		return nil, err
	}
	return first(versions), nil
}

func (r *Repository) GetArticles(ctx context.Context, afterID string, limit int, languageCode string) ([]blog.ArticleVersion, error) {
	if limit <= 0 {
		return []blog.ArticleVersion{}, nil
	}
	return readAll[blog.ArticleVersion](ctx, r, "GetArticles", articlePage(afterID, limit, languageCode))
}

// GetArticlesByMetadata returns versions carrying a metadata entry with
// metadataSlug in languageCode. Slugs are unique across metadata types, so t
// does not narrow the match.
func (r *Repository) GetArticlesByMetadata(ctx context.Context, afterID string, limit int, languageCode string, t blog.MetadataType, metadataSlug string) ([]blog.ArticleVersion, error) {
	if limit <= 0 {
		return []blog.ArticleVersion{}, nil
	}
	p := articlePage(afterID, limit, languageCode, store.ElemMatch("versions.metadata", store.Eq("slug", metadataSlug), store.Eq("languageCode", languageCode)))
	return readAll[blog.ArticleVersion](ctx, r, "GetArticlesByMetadata", p)
}

func (r *Repository) GetArticlesByAuthor(ctx context.Context, afterID string, limit int, languageCode, authorSlug string) ([]blog.ArticleVersion, error) {
	if limit <= 0 {
		return []blog.ArticleVersion{}, nil
	}
	p := articlePage(afterID, limit, languageCode, store.Eq("versions.author.slug", authorSlug))
	return readAll[blog.ArticleVersion](ctx, r, "GetArticlesByAuthor", p)
}

// GetMetadataVersions flattens the metadata catalog to the versions in
// languageCode, in catalog order.
func (r *Repository) GetMetadataVersions(ctx context.Context, languageCode string) ([]blog.MetadataVersion, error) {
	p := store.Pipeline{
		store.Match(store.Eq(store.IDField, blog.MetadataID)),
		store.Unwind("items"),
		store.Unwind("items.versions"),
		store.Match(store.Eq("items.versions.languageCode", languageCode)),
		store.ReplaceRoot("items.versions"),
	}
	return readAll[blog.MetadataVersion](ctx, r, "GetMetadataVersions", p)
}
