package sequence

import (
	"context"
	"errors"
	"strconv"

	redis "github.com/redis/go-redis/v9"
)

// RedisCounter stores each counter under "seq:<name>" and advances it with INCR,
// which is atomic across every process sharing the Redis instance.
type RedisCounter struct {
	client *redis.Client
	prefix string
}

func NewRedisCounter(addr string, password string, db int) *RedisCounter {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisCounter{client: client, prefix: "seq:"}
}

func (c *RedisCounter) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCounter) Close() error {
	return c.client.Close()
}

func (c *RedisCounter) key(name string) string {
	return c.prefix + name
}

func (c *RedisCounter) IncrementSequence(ctx context.Context, name string) (int64, error) {
	return c.client.Incr(ctx, c.key(name)).Result()
}

func (c *RedisCounter) CurrentSequence(ctx context.Context, name string) (int64, bool, error) {
	val, err := c.client.Get(ctx, c.key(name)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

func (c *RedisCounter) SeedSequence(ctx context.Context, name string, value int64) (int64, error) {
	if _, err := c.client.SetNX(ctx, c.key(name), value, 0).Result(); err != nil {
		return 0, err
	}
	current, _, err := c.CurrentSequence(ctx, name)
	return current, err
}
