package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017/testdb")
	t.Setenv("MONGODB_DATABASE", "mantica_test")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("JWT_SECRET", "testsecret123456789012345678901234")
	t.Setenv("BLOG_PAGE_SIZE", "25")
	t.Setenv("BLOG_AUTHORS_CATALOG", "false")
	t.Setenv("STORE_BACKEND", " Mongo ")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "mongodb://localhost:27017/testdb", cfg.MongoDB.URI)
	require.Equal(t, "localhost:6380", cfg.Redis.Addr())
	require.Equal(t, BackendMongo, cfg.Store.Backend)
	require.Equal(t, 25, cfg.Blog.PageSize)
	require.False(t, cfg.Blog.AuthorsCatalog)
	require.Equal(t, "blog", cfg.Blog.Collection)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "5020", cfg.Server.Port)
	require.Equal(t, 100, cfg.Blog.PageSize)
	require.True(t, cfg.Blog.AuthorsCatalog)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Store: StoreConfig{Backend: BackendMongo},
		Blog:  BlogConfig{Collection: "blog", PageSize: 0, ScriptDir: "scripts", ScriptPrefix: "seed"},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			UseRedis: true,
		},
	}
	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"MONGODB_URI", "REDIS_HOST is required for the mongo backend", "BLOG_PAGE_SIZE",
		"mutually exclusive", "MINIO_ENDPOINT", "RATE_LIMIT_RPS", "RATE_LIMIT_USE_REDIS",
	} {
		require.Contains(t, err.Error(), want)
	}

	cfg = &Config{Store: StoreConfig{Backend: "cosmos"}, Blog: BlogConfig{Collection: "blog", PageSize: 10}}
	require.ErrorContains(t, cfg.Validate(), `"cosmos"`)
}

func TestKeycloakIssuer(t *testing.T) {
	require.Equal(t, "http://kc:8080/realms/blog", KeycloakConfig{URL: "http://kc:8080/", Realm: "blog"}.Issuer())
	require.Equal(t, "http://kc:8080/realms/blog", KeycloakConfig{URL: "http://kc:8080/realms/blog"}.Issuer())
}
