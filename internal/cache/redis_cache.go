package cache

import (
	"context"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type RedisTimestampStore struct {
	client *redis.Client
}

func NewRedisTimestampStore(addr string, password string, db int) *RedisTimestampStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisTimestampStore{client: client}
}

func (c *RedisTimestampStore) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisTimestampStore) Close() error {
	return c.client.Close()
}

// Values are unix milliseconds so the entry is readable from redis-cli.
func (c *RedisTimestampStore) Get(ctx context.Context, key string) (time.Time, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}

	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

func (c *RedisTimestampStore) Set(ctx context.Context, key string, at time.Time, ttl time.Duration) error {
	return c.client.Set(ctx, key, strconv.FormatInt(at.UnixMilli(), 10), ttl).Err()
}
