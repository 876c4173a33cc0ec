package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/mantica/blog/backend/go-services/internal/blog/counter"
	"github.com/mantica/blog/backend/go-services/internal/blog/handler"
	"github.com/mantica/blog/backend/go-services/internal/blog/importer"
	"github.com/mantica/blog/backend/go-services/internal/blog/repository"
	"github.com/mantica/blog/backend/go-services/internal/config"
	"github.com/mantica/blog/backend/go-services/internal/database"
	"github.com/mantica/blog/backend/go-services/internal/oidc"
	"github.com/mantica/blog/backend/go-services/internal/storage"
	"github.com/mantica/blog/backend/go-services/internal/store"
	"github.com/mantica/blog/backend/go-services/internal/tokens"
	"github.com/mantica/blog/backend/go-services/pkg/logger"
	"github.com/mantica/blog/backend/go-services/pkg/metrics"
	"github.com/mantica/blog/backend/go-services/pkg/middleware"
	"github.com/mantica/blog/backend/go-services/scripts"
)

var startTime = time.Now()

// backend is the opened document store plus whatever must be released on exit.
type backend struct {
	client *store.Client
	redis  *redis.Client
	close  func()
}

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}
	logger.Infof("config loaded: backend=%s collection=%s keycloak=%v redis=%v minio=%v",
		cfg.Store.Backend, cfg.Blog.Collection, cfg.Keycloak.URL != "", cfg.Redis.Host != "", cfg.MinIO.Endpoint != "")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(ctx, cfg)
	if err != nil {
		logger.Fatalf("failed to open %s store: %v", cfg.Store.Backend, err)
	}
	defer be.close()

	if cfg.Store.Backend == config.BackendMemory || cfg.Blog.BootstrapOnStart {
		src, err := scriptSource(cfg)
		if err != nil {
			logger.Fatalf("failed to open script source: %v", err)
		}
		if err := importer.Bootstrap(ctx, src, be.client, cfg.Blog.Collection); err != nil {
			logger.Fatalf("bootstrap of %s failed: %v", cfg.Blog.Collection, err)
		}
	}

	ids := counter.NewRegistry(be.client.Procedures, cfg.Blog.Collection)
	if _, err := ids.Resolve("article"); err != nil {
		logger.Fatalf("counter registry: %v", err)
	}
	repo := repository.New(be.client.Database, ids, cfg.Blog.Collection, repository.Options{
		PageSize:       cfg.Blog.PageSize,
		AuthorsCatalog: cfg.Blog.AuthorsCatalog,
	})

	verifier := newVerifier(ctx, cfg)
	var revoker handler.Revoker
	if verifier != nil {
		revocations := tokens.NewRevocationList(be.redis)
		verifier = revocations.Guard(verifier)
		revoker = revocations
	}

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(cors, gin.Logger(), gin.Recovery())

	// per-IP on the read routes, per-subject behind authentication
	var limit []gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			limit = append(limit, middleware.RedisRateLimitMiddleware(be.redis, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			limit = append(limit, middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", readiness(cfg, be, verifier))

	handler.RegisterSwagger(r)
	handler.Register(r, repo, verifier, revoker, limit...)

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("Starting blog service on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}

// cors is permissive; deployments put a stricter policy in front.
func cors(c *gin.Context) {
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
	c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
	c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, If-Match")
	c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length, ETag")
	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusOK)
		return
	}
	c.Next()
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	if cfg.Store.Backend == config.BackendMemory {
		return openMemory(ctx, cfg)
	}

	client, err := database.ConnectMongoRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5)
	if err != nil {
		return nil, err
	}
	rc, err := database.ConnectRedis(ctx, cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB, 5*time.Second)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	logger.Infof("Connected to MongoDB database %s and Redis %s", cfg.MongoDB.Database, cfg.Redis.Addr())
	return &backend{
		client: store.NewClient(store.NewMongoDatabase(client.Database(cfg.MongoDB.Database)), store.NewRedisProcedures(rc, "")),
		redis:  rc,
		close: func() {
			_ = rc.Close()
			_ = client.Disconnect(context.Background())
		},
	}, nil
}

// openMemory keeps documents in process. Procedures run on REDIS_HOST when
// set, otherwise on an embedded Redis.
func openMemory(ctx context.Context, cfg *config.Config) (*backend, error) {
	var embedded *miniredis.Miniredis
	addr, password := cfg.Redis.Addr(), cfg.Redis.Password
	if cfg.Redis.Host == "" {
		var err error
		if embedded, err = miniredis.Run(); err != nil {
			return nil, fmt.Errorf("start embedded redis: %w", err)
		}
		addr, password = embedded.Addr(), ""
		logger.Warnf("memory backend: using embedded redis on %s, data is lost on exit", addr)
	}
	rc, err := database.ConnectRedis(ctx, addr, password, cfg.Redis.DB, 5*time.Second)
	if err != nil {
		if embedded != nil {
			embedded.Close()
		}
		return nil, err
	}
	return &backend{
		client: store.NewClient(store.NewMemoryDatabase(), store.NewRedisProcedures(rc, "")),
		redis:  rc,
		close: func() {
			_ = rc.Close()
			if embedded != nil {
				embedded.Close()
			}
		},
	}, nil
}

func scriptSource(cfg *config.Config) (importer.Source, error) {
	var objects importer.ObjectStore
	if cfg.Blog.ScriptPrefix != "" {
		s, err := storage.NewMinIOStorage(&cfg.MinIO)
		if err != nil {
			return nil, err
		}
		objects = s
	}
	return importer.SelectSource(cfg.Blog.ScriptDir, objects, cfg.Blog.ScriptPrefix, scripts.FS), nil
}

// newVerifier prefers the OIDC provider and falls back to locally signed
// tokens. Nil leaves the write routes unregistered.
func newVerifier(ctx context.Context, cfg *config.Config) middleware.Verifier {
	if cfg.Keycloak.URL != "" {
		ver, err := oidc.NewVerifier(ctx, cfg.Keycloak.Issuer(), cfg.Keycloak.ClientID)
		if err == nil {
			return ver
		}
		logger.Warnf("failed to initialize OIDC verifier: %v", err)
	}
	if cfg.JWT.Secret != "" {
		logger.Infof("using HS256 token verifier")
		return tokens.NewHMACVerifier(cfg.JWT.Secret)
	}
	return nil
}

// readiness reports 200 only when the store and its procedures answer.
func readiness(cfg *config.Config, be *backend, verifier middleware.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		deps := map[string]bool{}
		exists, err := be.client.CollectionExists(ctx, cfg.Blog.Collection)
		deps["store"] = err == nil && exists
		procs, err := be.client.ListProcedures(ctx, cfg.Blog.Collection)
		deps["procedures"] = err == nil && len(procs) > 0
		deps["redis"] = be.redis.Ping(ctx).Err() == nil
		deps["auth"] = verifier != nil || (cfg.Keycloak.URL == "" && cfg.JWT.Secret == "")

		status, code := "ready", http.StatusOK
		for _, ok := range deps {
			if !ok {
				status, code = "not_ready", http.StatusServiceUnavailable
				break
			}
		}
		c.JSON(code, gin.H{"status": status, "deps": deps, "uptime": time.Since(startTime).String()})
	}
}
