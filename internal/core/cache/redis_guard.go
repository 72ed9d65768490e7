package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/markdave123-py/doctext/internal/core"
)

// RedisGuard marks documents as in flight with SET NX and a TTL, so a lost
// worker cannot hold a document forever.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

var _ core.InFlightGuard = (*RedisGuard)(nil)

// NewRedisGuard connects to REDIS_URL and pings it.
func NewRedisGuard(ctx context.Context, url string, ttl time.Duration) (*RedisGuard, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisGuard{client: client, ttl: ttl}, nil
}

func inFlightKey(documentID string) string {
	return fmt.Sprintf("doctext:inflight:%s", documentID)
}

func (g *RedisGuard) Acquire(ctx context.Context, documentID string) (bool, error) {
	ok, err := g.client.SetNX(ctx, inFlightKey(documentID), time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire in-flight marker: %w", err)
	}
	return ok, nil
}

func (g *RedisGuard) Release(ctx context.Context, documentID string) error {
	if err := g.client.Del(ctx, inFlightKey(documentID)).Err(); err != nil {
		return fmt.Errorf("release in-flight marker: %w", err)
	}
	return nil
}

func (g *RedisGuard) Close() error {
	return g.client.Close()
}
