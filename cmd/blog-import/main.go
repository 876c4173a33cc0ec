// Command blog-import recreates a blog collection from its bootstrap scripts,
// or publishes the scripts to the MinIO bucket other environments seed from.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/mantica/blog/backend/go-services/internal/blog/importer"
	"github.com/mantica/blog/backend/go-services/internal/config"
	"github.com/mantica/blog/backend/go-services/internal/database"
	"github.com/mantica/blog/backend/go-services/internal/storage"
	"github.com/mantica/blog/backend/go-services/internal/store"
	"github.com/mantica/blog/backend/go-services/pkg/logger"
	"github.com/mantica/blog/backend/go-services/scripts"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	flags := pflag.NewFlagSet("blog-import", pflag.ExitOnError)
	collection := flags.String("collection", cfg.Blog.Collection, "collection to recreate")
	dir := flags.String("dir", cfg.Blog.ScriptDir, "read scripts from this directory instead of the embedded set")
	prefix := flags.String("prefix", cfg.Blog.ScriptPrefix, "read scripts from this MinIO key prefix")
	publish := flags.String("publish", "", "upload the scripts under this MinIO key prefix and exit")
	_ = flags.Parse(os.Args[1:])

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := run(ctx, cfg, *collection, *dir, *prefix, *publish); err != nil {
		logger.Fatalf("%v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, collection, dir, prefix, publish string) error {
	var objects *storage.MinIOStorage
	if prefix != "" || publish != "" {
		s, err := storage.NewMinIOStorage(&cfg.MinIO)
		if err != nil {
			return err
		}
		objects = s
	}

	if publish != "" {
		src := importer.SelectSource(dir, nil, "", scripts.FS)
		n, err := importer.Publish(ctx, src, objects, publish)
		if err != nil {
			return err
		}
		logger.Infof("published %d scripts to %s/%s", n, cfg.MinIO.Bucket, publish)
		return nil
	}

	if cfg.Store.Backend != config.BackendMongo {
		return fmt.Errorf("blog-import needs STORE_BACKEND=%s, got %q", config.BackendMongo, cfg.Store.Backend)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	mc, err := database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
	if err != nil {
		return err
	}
	defer func() { _ = mc.Disconnect(context.Background()) }()
	rc, err := database.ConnectRedis(ctx, cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB, 5*time.Second)
	if err != nil {
		return err
	}
	defer rc.Close()

	client := store.NewClient(store.NewMongoDatabase(mc.Database(cfg.MongoDB.Database)), store.NewRedisProcedures(rc, ""))
	var src importer.Source
	if objects != nil {
		src = importer.SelectSource(dir, objects, prefix, scripts.FS)
	} else {
		src = importer.SelectSource(dir, nil, "", scripts.FS)
	}
	return importer.Bootstrap(ctx, src, client, collection)
}
