package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "oracle:src:"

// Redis persists decompiled source across runs. Entries never expire: a
// fingerprint's source is immutable.
type Redis struct {
	client *redis.Client
}

// NewRedis connects and verifies the server is reachable before the pipeline
// starts depending on it.
func NewRedis(addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: redis ping %s: %w", addr, err)
	}
	return &Redis{client: client}, nil
}

func (r *Redis) Get(ctx context.Context, fingerprint string) (string, bool, error) {
	src, err := r.client.Get(ctx, keyPrefix+fingerprint).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache: redis get: %w", err)
	}
	return src, true, nil
}

func (r *Redis) Put(ctx context.Context, fingerprint, source string) error {
	if err := r.client.Set(ctx, keyPrefix+fingerprint, source, 0).Err(); err != nil {
		return fmt.Errorf("cache: redis set: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
