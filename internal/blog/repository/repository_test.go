package repository

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/mantica/blog/backend/go-services/internal/blog"
	"github.com/mantica/blog/backend/go-services/internal/blog/counter"
	"github.com/mantica/blog/backend/go-services/internal/blog/importer"
	"github.com/mantica/blog/backend/go-services/internal/store"
	"github.com/mantica/blog/backend/go-services/pkg/metrics"
	"github.com/mantica/blog/backend/go-services/scripts"
)

const testCollection = "blog"

// countingCollection counts the calls that reach the store.
type countingCollection struct {
	store.Collection
	calls *int64
}

func (c countingCollection) Insert(ctx context.Context, doc store.Document) (store.Result, error) {
	atomic.AddInt64(c.calls, 1)
	return c.Collection.Insert(ctx, doc)
}

func (c countingCollection) Upsert(ctx context.Context, doc store.Document, opts store.UpsertOptions) (store.Result, error) {
	atomic.AddInt64(c.calls, 1)
	return c.Collection.Upsert(ctx, doc, opts)
}

func (c countingCollection) Query(ctx context.Context, p store.Pipeline, opts store.QueryOptions) (store.Pager, error) {
	atomic.AddInt64(c.calls, 1)
	return c.Collection.Query(ctx, p, opts)
}

type countingDatabase struct {
	store.Database
	calls *int64
}

func (d countingDatabase) Collection(name string) store.Collection {
	return countingCollection{Collection: d.Database.Collection(name), calls: d.calls}
}

type countingMinter struct {
	IDMinter
	calls *int64
}

func (m countingMinter) NextID(ctx context.Context, kind string) (string, error) {
	atomic.AddInt64(m.calls, 1)
	return m.IDMinter.NextID(ctx, kind)
}

type fixture struct {
	repo  *Repository
	calls *int64
	redis *mr.Miniredis
}

func newFixture(t *testing.T, opts Options) fixture {
	t.Helper()
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)

	procs := store.NewRedisProcedures(redis.NewClient(&redis.Options{Addr: m.Addr()}), "")
	client := store.NewClient(store.NewMemoryDatabase(), procs)
	require.NoError(t, importer.Bootstrap(context.Background(), importer.FSSource{FS: scripts.FS}, client, testCollection))

	calls := new(int64)
	db := countingDatabase{Database: client.Database, calls: calls}
	ids := countingMinter{IDMinter: counter.NewRegistry(procs, testCollection), calls: calls}
	return fixture{repo: New(db, ids, testCollection, opts), calls: calls, redis: m}
}

func (f fixture) storeCalls() int64 { return atomic.LoadInt64(f.calls) }

var (
	created   = time.Date(2017, 3, 4, 0, 0, 0, 0, time.UTC)
	published = time.Date(2017, 3, 5, 10, 30, 15, 0, time.UTC)
)

func generateArticle() *blog.Article {
	return &blog.Article{
		Name:      "Festival of the boats of light",
		State:     blog.Published,
		Created:   created,
		Published: published,
		Versions: []blog.ArticleVersion{
			{
				LanguageCode: "en",
				Slug:         "english-slug",
				Title:        "English title",
				Summary:      "English summary",
				Body:         "English body",
				Metadata: []blog.MetadataVersion{
					{Slug: "new-zealand", Name: "New Zealand", LanguageCode: "en", Type: blog.MetadataCategory},
					{Slug: "fishing", Name: "Fishing", LanguageCode: "en", Type: blog.MetadataTag},
				},
				Author: blog.AuthorInfo{Name: "John Smith", Slug: "john-smith", Bio: "English Author bio", LanguageCode: "en", AvatarURL: "http://example.com/avatar.jpg"},
			},
			{
				LanguageCode: "cs",
				Slug:         "czech-slug",
				Title:        "Czech title",
				Summary:      "Czech summary",
				Body:         "Czech body",
				Metadata: []blog.MetadataVersion{
					{Slug: "novy-zeland", Name: "Novy Zeland", LanguageCode: "cs", Type: blog.MetadataCategory},
					{Slug: "rybareni", Name: "Rybareni", LanguageCode: "cs", Type: blog.MetadataTag},
				},
				Author: blog.AuthorInfo{Name: "Jiri Smith", Slug: "jiri-smith", Bio: "Czech Author bio", LanguageCode: "cs", AvatarURL: "http://example.com/avatar.jpg"},
			},
		},
	}
}

func createArticles(t *testing.T, r *Repository, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := r.CreateArticle(context.Background(), generateArticle())
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func articleIDs(versions []blog.ArticleVersion) []string {
	out := make([]string, 0, len(versions))
	for _, v := range versions {
		out = append(out, v.ArticleID)
	}
	return out
}

func TestCreateArticleRoundTrip(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	a := generateArticle()
	id, err := f.repo.CreateArticle(ctx, a)
	require.NoError(t, err)
	require.Equal(t, "article.00001", id)
	require.Equal(t, id, a.ID)
	for _, v := range a.Versions {
		require.Equal(t, id, v.ArticleID)
	}

	got, err := f.repo.GetArticlesByAuthorID(ctx, "john-smith")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, *a, got[0])
}

func TestCreateArticleIDsAreMonotonic(t *testing.T) {
	f := newFixture(t, Options{})
	ids := createArticles(t, f.repo, 3)
	require.Equal(t, []string{"article.00001", "article.00002", "article.00003"}, ids)
	require.IsIncreasing(t, ids)
}

func TestCreateArticleSurvivesLostCounter(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	createArticles(t, f.repo, 2)

	f.redis.Del("blog:" + testCollection + ":counter.article")

	id, err := f.repo.CreateArticle(ctx, generateArticle())
	require.NoError(t, err)
	require.Equal(t, "article.00003", id)

	// the counter is back in step with the collection
	id, err = f.repo.CreateArticle(ctx, generateArticle())
	require.NoError(t, err)
	require.Equal(t, "article.00004", id)
}

func TestCreateArticleStampsCreated(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	before := time.Now().UTC().Add(-time.Second)
	a := generateArticle()
	a.Created = time.Time{}
	_, err := f.repo.CreateArticle(ctx, a)
	require.NoError(t, err)
	require.False(t, a.Created.IsZero())
	require.True(t, a.Created.After(before))

	got, err := f.repo.GetArticlesByAuthorID(ctx, "john-smith")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, a.Created.Equal(got[0].Created))

	// an explicit value is kept
	b := generateArticle()
	_, err = f.repo.CreateArticle(ctx, b)
	require.NoError(t, err)
	require.Equal(t, created, b.Created)
}

func TestWritePreconditionsIssueNoStoreCall(t *testing.T) {
	f := newFixture(t, Options{AuthorsCatalog: true})
	ctx := context.Background()
	before := f.storeCalls()

	a := generateArticle()
	a.ID = "article.00042"
	_, err := f.repo.CreateArticle(ctx, a)
	require.ErrorIs(t, err, ErrPrecondition)

	_, err = f.repo.CreateArticle(ctx, nil)
	require.ErrorIs(t, err, ErrPrecondition)

	require.ErrorIs(t, f.repo.UpdateArticle(ctx, generateArticle()), ErrPrecondition)
	require.ErrorIs(t, f.repo.UpdateArticle(ctx, nil), ErrPrecondition)

	a = generateArticle()
	a.ID = blog.MetadataID
	require.ErrorIs(t, f.repo.UpdateArticle(ctx, a), ErrPrecondition)

	require.ErrorIs(t, f.repo.UpdateMetadata(ctx, nil), ErrPrecondition)
	require.ErrorIs(t, f.repo.UpdateAuthors(ctx, nil), ErrPrecondition)

	require.Equal(t, before, f.storeCalls())
}

func TestUpdateArticlePropagatesArticleID(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	a := generateArticle()
	a.State = blog.Draft
	_, err := f.repo.CreateArticle(ctx, a)
	require.NoError(t, err)

	a.Versions[0].Body = "Modified Article Body"
	a.Versions[0].ArticleID = "bogus"
	a.Versions[1].ArticleID = ""
	a.Versions = append(a.Versions, blog.ArticleVersion{LanguageCode: "de", Slug: "german-slug", Author: blog.AuthorInfo{Slug: "hans"}})
	a.State = blog.Published
	require.NoError(t, f.repo.UpdateArticle(ctx, a))

	got, err := f.repo.GetArticlesByAuthorID(ctx, "john-smith")
	require.NoError(t, err)
	require.Len(t, got, 1)
	db := got[0]
	require.Equal(t, "article.00001", db.ID)
	require.Len(t, db.Versions, 3)
	for _, v := range db.Versions {
		require.Equal(t, db.ID, v.ArticleID)
	}
	require.Equal(t, blog.Published, db.State)
	require.Equal(t, "Modified Article Body", db.Versions[0].Body)
}

func TestGetArticlesAfterCursor(t *testing.T) {
	f := newFixture(t, Options{PageSize: 2})
	ctx := context.Background()
	createArticles(t, f.repo, 5)

	versions, err := f.repo.GetArticles(ctx, "article.00003", 5, "en")
	require.NoError(t, err)
	require.Equal(t, []string{"article.00004", "article.00005"}, articleIDs(versions))
	for _, v := range versions {
		require.Greater(t, v.ArticleID, "article.00003")
		require.Equal(t, "en", v.LanguageCode)
	}
}

func TestGetArticlesPaging(t *testing.T) {
	f := newFixture(t, Options{PageSize: 2})
	ctx := context.Background()
	createArticles(t, f.repo, 5)

	var seen []string
	cursor := ""
	for {
		versions, err := f.repo.GetArticles(ctx, cursor, 2, "cs")
		require.NoError(t, err)
		if len(versions) == 0 {
			break
		}
		require.LessOrEqual(t, len(versions), 2)
		seen = append(seen, articleIDs(versions)...)
		cursor = versions[len(versions)-1].ArticleID
	}
	require.Equal(t, []string{"article.00001", "article.00002", "article.00003", "article.00004", "article.00005"}, seen)

	before := f.storeCalls()
	versions, err := f.repo.GetArticles(ctx, "", 0, "en")
	require.NoError(t, err)
	require.Empty(t, versions)
	require.Equal(t, before, f.storeCalls())
}

func TestGetArticlesSkipsDrafts(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	draft := generateArticle()
	draft.State = blog.Draft
	_, err := f.repo.CreateArticle(ctx, draft)
	require.NoError(t, err)
	createArticles(t, f.repo, 1)

	versions, err := f.repo.GetArticles(ctx, "", 10, "en")
	require.NoError(t, err)
	require.Equal(t, []string{"article.00002"}, articleIDs(versions))

	// drafts are still found by slug
	v, err := f.repo.GetArticleBySlug(ctx, "english-slug", "en")
	require.NoError(t, err)
	require.NotNil(t, v)
	require.Equal(t, "article.00001", v.ArticleID)
}

func TestGetArticlesByMetadata(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.repo.CreateArticle(ctx, generateArticle())
	require.NoError(t, err)
	other := generateArticle()
	other.Versions[0].Metadata[0].Slug = "netherlands"
	_, err = f.repo.CreateArticle(ctx, other)
	require.NoError(t, err)

	versions, err := f.repo.GetArticlesByMetadata(ctx, "", 5, "en", blog.MetadataCategory, "netherlands")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	require.Equal(t, "netherlands", versions[0].Metadata[0].Slug)

	versions, err = f.repo.GetArticlesByMetadata(ctx, "", 5, "en", blog.MetadataNone, "netherlands")
	require.NoError(t, err)
	require.Len(t, versions, 1)

	// the type does not narrow the match
	versions, err = f.repo.GetArticlesByMetadata(ctx, "", 5, "en", blog.MetadataTag, "netherlands")
	require.NoError(t, err)
	require.Len(t, versions, 1)

	// wrong language
	versions, err = f.repo.GetArticlesByMetadata(ctx, "", 5, "cs", blog.MetadataCategory, "netherlands")
	require.NoError(t, err)
	require.Empty(t, versions)

	versions, err = f.repo.GetArticlesByMetadata(ctx, "", 5, "en", blog.MetadataTag, "fishing")
	require.NoError(t, err)
	require.Equal(t, []string{"article.00001", "article.00002"}, articleIDs(versions))
}

func TestGetArticlesByMetadataMatchesSlugOfAnyType(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	a := generateArticle()
	a.Versions[0].Metadata = []blog.MetadataVersion{{Slug: "netherlands", Name: "Netherlands", LanguageCode: "en", Type: blog.MetadataTag}}
	_, err := f.repo.CreateArticle(ctx, a)
	require.NoError(t, err)

	versions, err := f.repo.GetArticlesByMetadata(ctx, "", 5, "en", blog.MetadataCategory, "netherlands")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	require.Equal(t, "article.00001", versions[0].ArticleID)
}

func TestGetArticlesByAuthor(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.repo.CreateArticle(ctx, generateArticle())
	require.NoError(t, err)
	other := generateArticle()
	other.Versions[0].Author.Slug = "john-doe"
	_, err = f.repo.CreateArticle(ctx, other)
	require.NoError(t, err)

	versions, err := f.repo.GetArticlesByAuthor(ctx, "", 5, "en", "john-doe")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	require.Equal(t, "john-doe", versions[0].Author.Slug)
	require.Equal(t, "article.00002", versions[0].ArticleID)

	versions, err = f.repo.GetArticlesByAuthor(ctx, "", 5, "cs", "john-doe")
	require.NoError(t, err)
	require.Empty(t, versions)
}

func TestGetArticleBySlug(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	a := generateArticle()
	_, err := f.repo.CreateArticle(ctx, a)
	require.NoError(t, err)

	v, err := f.repo.GetArticleBySlug(ctx, "czech-slug", "cs")
	require.NoError(t, err)
	require.NotNil(t, v)
	require.Equal(t, a.Versions[1], *v)

	v, err = f.repo.GetArticleBySlug(ctx, "czech-slug", "en")
	require.NoError(t, err)
	require.Nil(t, v)

	v, err = f.repo.GetArticleBySlug(ctx, "missing", "en")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestMetadataCatalog(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	m, err := f.repo.GetMetadata(ctx)
	require.NoError(t, err)
	require.NotNil(t, m)
	require.Empty(t, m.Items)
	require.NotEmpty(t, m.ETag)

	m.Items = append(m.Items,
		blog.MetadataItem{Name: "category", Versions: []blog.MetadataVersion{
			{LanguageCode: "en", Name: "English Category", Slug: "english-category", Type: blog.MetadataCategory},
			{LanguageCode: "cs", Name: "Czech Category", Slug: "czech-category", Type: blog.MetadataCategory},
		}},
		blog.MetadataItem{Name: "tag", Versions: []blog.MetadataVersion{
			{LanguageCode: "en", Name: "English Tag", Slug: "english-tag", Type: blog.MetadataTag},
			{LanguageCode: "cs", Name: "Czech Tag", Slug: "czech-tag", Type: blog.MetadataTag},
		}},
	)
	require.NoError(t, f.repo.UpdateMetadata(ctx, m))

	versions, err := f.repo.GetMetadataVersions(ctx, "cs")
	require.NoError(t, err)
	require.Equal(t, []blog.MetadataVersion{m.Items[0].Versions[1], m.Items[1].Versions[1]}, versions)

	stored, err := f.repo.GetMetadata(ctx)
	require.NoError(t, err)
	require.Equal(t, m, stored)

	versions, err = f.repo.GetMetadataVersions(ctx, "de")
	require.NoError(t, err)
	require.Empty(t, versions)
}

func TestUpdateMetadataRejectsStaleWriter(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	writerA, err := f.repo.GetMetadata(ctx)
	require.NoError(t, err)
	writerB, err := f.repo.GetMetadata(ctx)
	require.NoError(t, err)

	writerA.Items = append(writerA.Items, blog.MetadataItem{Name: "tips", Versions: []blog.MetadataVersion{{Slug: "tips", LanguageCode: "en", Type: blog.MetadataTag}}})
	require.NoError(t, f.repo.UpdateMetadata(ctx, writerA))

	writerB.Items = append(writerB.Items, blog.MetadataItem{Name: "news", Versions: []blog.MetadataVersion{{Slug: "news", LanguageCode: "en", Type: blog.MetadataTag}}})
	err = f.repo.UpdateMetadata(ctx, writerB)
	require.ErrorIs(t, err, store.ErrPreconditionFailed)

	// re-read and retry keeps both additions
	writerB, err = f.repo.GetMetadata(ctx)
	require.NoError(t, err)
	writerB.Items = append(writerB.Items, blog.MetadataItem{Name: "news", Versions: []blog.MetadataVersion{{Slug: "news", LanguageCode: "en", Type: blog.MetadataTag}}})
	require.NoError(t, f.repo.UpdateMetadata(ctx, writerB))

	versions, err := f.repo.GetMetadataVersions(ctx, "en")
	require.NoError(t, err)
	require.Len(t, versions, 2)

	// a blind write never replaces an existing catalog
	err = f.repo.UpdateMetadata(ctx, &blog.Metadata{})
	require.ErrorIs(t, err, store.ErrPreconditionFailed)
}

func TestAuthorsCatalog(t *testing.T) {
	ctx := context.Background()

	disabled := newFixture(t, Options{})
	_, err := disabled.repo.GetAuthors(ctx)
	require.ErrorIs(t, err, ErrNotImplemented)
	require.ErrorIs(t, disabled.repo.UpdateAuthors(ctx, &blog.Authors{}), ErrNotImplemented)

	f := newFixture(t, Options{AuthorsCatalog: true})
	authors, err := f.repo.GetAuthors(ctx)
	require.NoError(t, err)
	require.NotNil(t, authors)
	require.Empty(t, authors.Items)

	authors.Items = append(authors.Items, blog.Author{Name: "John Smith", Infos: []blog.AuthorInfo{
		{Name: "John Smith", Slug: "john-smith", LanguageCode: "en", Bio: "bio"},
	}})
	stale := *authors
	require.NoError(t, f.repo.UpdateAuthors(ctx, authors))
	require.ErrorIs(t, f.repo.UpdateAuthors(ctx, &stale), store.ErrPreconditionFailed)

	stored, err := f.repo.GetAuthors(ctx)
	require.NoError(t, err)
	require.Equal(t, authors, stored)
}

func TestReadsRecordCost(t *testing.T) {
	f := newFixture(t, Options{PageSize: 1})
	ctx := context.Background()
	createArticles(t, f.repo, 3)

	units := metrics.StoreRequestUnits.WithLabelValues("GetArticles")
	before := testutil.ToFloat64(units)
	_, err := f.repo.GetArticles(ctx, "", 10, "en")
	require.NoError(t, err)
	// three single-document pages plus the final empty round trip at most
	require.GreaterOrEqual(t, testutil.ToFloat64(units)-before, 3.0)
}
