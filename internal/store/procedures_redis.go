package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// RedisProcedures keeps procedure bodies in Redis and runs them as Lua
// scripts, which Redis executes atomically. Everything a collection owns
// lives under "<prefix><collection>:".
type RedisProcedures struct {
	client *redis.Client
	prefix string
}

// NewRedisProcedures creates a Redis-backed procedure engine. Prefix may be empty.
func NewRedisProcedures(client *redis.Client, prefix string) *RedisProcedures {
	if prefix == "" {
		prefix = "blog:"
	}
	return &RedisProcedures{client: client, prefix: prefix}
}

func (r *RedisProcedures) namespace(collection string) string {
	return r.prefix + collection + ":"
}

func (r *RedisProcedures) registry(collection string) string {
	return r.namespace(collection) + "procedures"
}

func (r *RedisProcedures) CreateProcedure(ctx context.Context, collection, name, body string) error {
	// SCRIPT LOAD compiles the body, so a broken script fails here rather than on first use
	if err := r.client.ScriptLoad(ctx, body).Err(); err != nil {
		return fmt.Errorf("load procedure %s: %w", name, err)
	}
	return r.client.HSet(ctx, r.registry(collection), name, body).Err()
}

func (r *RedisProcedures) ExecuteProcedure(ctx context.Context, collection, name string, keys []string, args ...interface{}) (ProcedureResult, error) {
	body, err := r.client.HGet(ctx, r.registry(collection), name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ProcedureResult{}, fmt.Errorf("%s/%s: %w", collection, name, ErrProcedureNotFound)
		}
		return ProcedureResult{}, err
	}
	ns := r.namespace(collection)
	scoped := make([]string, len(keys))
	for i, k := range keys {
		scoped[i] = ns + k
	}
	// Run uses EVALSHA and falls back to EVAL when the script cache was flushed
	v, err := redis.NewScript(body).Run(ctx, r.client, scoped, args...).Result()
	if err != nil {
		return ProcedureResult{}, fmt.Errorf("execute procedure %s: %w", name, err)
	}
	return ProcedureResult{Value: v, Cost: 1}, nil
}

func (r *RedisProcedures) ListProcedures(ctx context.Context, collection string) ([]string, error) {
	names, err := r.client.HKeys(ctx, r.registry(collection)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (r *RedisProcedures) DropProcedures(ctx context.Context, collection string) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.namespace(collection)+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("scan %s: %w", collection, err)
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("drop procedures of %s: %w", collection, err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
