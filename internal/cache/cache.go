package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss reports that a key was not present.
var ErrMiss = errors.New("cache: miss")

// ErrDisabled is returned by operations that cannot be a no-op when no
// cache backend is configured.
var ErrDisabled = errors.New("cache: disabled")

// Client is the minimal key/value surface the read façade needs. Every
// method may fail independently; callers must treat any failure as a miss
// and never let it reach their own caller.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key; ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
}

// Pinger is implemented by clients that can report backend connectivity,
// used by deep health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

type redisClient struct {
	rdb *redis.Client
}

// New returns a Redis-backed Client for the given URL. An empty URL yields
// a Disabled client whose reads always miss.
func New(url string) (Client, error) {
	if url == "" {
		return Disabled{}, nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &redisClient{rdb: redis.NewClient(opt)}, nil
}

func (c *redisClient) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrMiss
	}
	return val, err
}

func (c *redisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *redisClient) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *redisClient) Incr(ctx context.Context, key string) (int64, error) {
	return c.rdb.Incr(ctx, key).Result()
}

func (c *redisClient) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Disabled is the Client used when no Redis URL is configured. Reads miss,
// writes are no-ops, increments fail so the epoch falls back to 1.
type Disabled struct{}

func (Disabled) Get(context.Context, string) ([]byte, error) { return nil, ErrMiss }

func (Disabled) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (Disabled) Del(context.Context, ...string) error { return nil }

func (Disabled) Incr(context.Context, string) (int64, error) { return 0, ErrDisabled }
