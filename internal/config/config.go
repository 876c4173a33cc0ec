package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/mantica/blog/backend/go-services/internal/storage"
	"github.com/mantica/blog/backend/go-services/pkg/logger"
)

const (
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Keycloak  KeycloakConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Store     StoreConfig
	Blog      BlogConfig
	MinIO     storage.MinIOConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

func (r RedisConfig) Addr() string { return r.Host + ":" + r.Port }

type KeycloakConfig struct {
	URL          string
	Realm        string
	ClientID     string
	ClientSecret string
}

// Issuer is the realm issuer URL, or the bare URL when no realm is set.
func (k KeycloakConfig) Issuer() string {
	if k.Realm == "" {
		return k.URL
	}
	return strings.TrimRight(k.URL, "/") + "/realms/" + k.Realm
}

type JWTConfig struct {
	Secret         string
	AccessTokenTTL time.Duration
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

type StoreConfig struct {
	// Backend is "mongo" or "memory".
	Backend string
}

type BlogConfig struct {
	Collection string
	// ScriptDir overrides the embedded bootstrap scripts.
	ScriptDir string
	// ScriptPrefix reads the bootstrap scripts from the MinIO bucket instead.
	ScriptPrefix     string
	PageSize         int
	AuthorsCatalog   bool
	BootstrapOnStart bool
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "5020")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("MONGODB_DATABASE", "mantica")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_ACCESS_TOKEN_TTL", 60)
	v.SetDefault("RATE_LIMIT_ENABLED", false)
	v.SetDefault("RATE_LIMIT_USE_REDIS", false)
	v.SetDefault("RATE_LIMIT_RPS", 10.0)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	v.SetDefault("STORE_BACKEND", BackendMongo)
	v.SetDefault("BLOG_COLLECTION", "blog")
	v.SetDefault("BLOG_PAGE_SIZE", 100)
	v.SetDefault("BLOG_AUTHORS_CATALOG", true)
	v.SetDefault("BLOG_BOOTSTRAP", false)
	v.SetDefault("MINIO_BUCKET", "mantica-blog")

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			Environment:  v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Keycloak: KeycloakConfig{
			URL:          v.GetString("KEYCLOAK_URL"),
			Realm:        v.GetString("KEYCLOAK_REALM"),
			ClientID:     v.GetString("KEYCLOAK_CLIENT_ID"),
			ClientSecret: v.GetString("KEYCLOAK_CLIENT_SECRET"),
		},
		JWT: JWTConfig{
			Secret:         v.GetString("JWT_SECRET"),
			AccessTokenTTL: time.Duration(v.GetInt("JWT_ACCESS_TOKEN_TTL")) * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(strings.TrimSpace(v.GetString("STORE_BACKEND"))),
		},
		Blog: BlogConfig{
			Collection:       v.GetString("BLOG_COLLECTION"),
			ScriptDir:        v.GetString("BLOG_SCRIPT_DIR"),
			ScriptPrefix:     v.GetString("BLOG_SCRIPT_PREFIX"),
			PageSize:         v.GetInt("BLOG_PAGE_SIZE"),
			AuthorsCatalog:   v.GetBool("BLOG_AUTHORS_CATALOG"),
			BootstrapOnStart: v.GetBool("BLOG_BOOTSTRAP"),
		},
		MinIO: storage.MinIOConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: v.GetString("MINIO_SECRET_KEY"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
			Bucket:    v.GetString("MINIO_BUCKET"),
		},
	}

	if cfg.JWT.Secret == "" && cfg.Keycloak.URL == "" {
		logger.Warnf("neither JWT_SECRET nor KEYCLOAK_URL is set; author and admin routes are disabled")
	}

	return cfg, nil
}

// Validate reports every inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case BackendMongo:
		if c.MongoDB.URI == "" {
			errs = append(errs, errors.New("MONGODB_URI is required for the mongo backend"))
		}
		if c.MongoDB.Database == "" {
			errs = append(errs, errors.New("MONGODB_DATABASE is required for the mongo backend"))
		}
		if c.Redis.Host == "" {
			errs = append(errs, errors.New("REDIS_HOST is required for the mongo backend, it runs the id procedures"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND %q is not one of %s, %s", c.Store.Backend, BackendMongo, BackendMemory))
	}
	if c.Blog.Collection == "" {
		errs = append(errs, errors.New("BLOG_COLLECTION must not be empty"))
	}
	if c.Blog.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("BLOG_PAGE_SIZE must be positive, got %d", c.Blog.PageSize))
	}
	if c.Blog.ScriptDir != "" && c.Blog.ScriptPrefix != "" {
		errs = append(errs, errors.New("BLOG_SCRIPT_DIR and BLOG_SCRIPT_PREFIX are mutually exclusive"))
	}
	if c.Blog.ScriptPrefix != "" && c.MinIO.Endpoint == "" {
		errs = append(errs, errors.New("BLOG_SCRIPT_PREFIX requires MINIO_ENDPOINT"))
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.RPS <= 0 {
			errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS must be positive, got %v", c.RateLimit.RPS))
		}
		if c.RateLimit.UseRedis && c.Redis.Host == "" {
			errs = append(errs, errors.New("RATE_LIMIT_USE_REDIS requires REDIS_HOST"))
		}
	}
	return errors.Join(errs...)
}
