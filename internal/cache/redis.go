package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opensource-finance/fraudgen/internal/domain"
)

// keyPrefix namespaces every key this cache writes.
const keyPrefix = "fraudgen:"

// incrWithExpiry increments KEYS[1] and starts its window on first use.
var incrWithExpiry = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return current
`)

// RedisCache implements Cache on Redis. Used on its own or as L2 in
// two-phase caching.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get returns the value at key, or nil when absent.
func (c *RedisCache) Get(ctx context.Context, runID string, key string) ([]byte, error) {
	if runID == "" {
		return nil, ErrRunIDRequired
	}

	val, err := c.client.Get(ctx, c.key(runID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

// Set stores value at key for ttl.
func (c *RedisCache) Set(ctx context.Context, runID string, key string, value []byte, ttl time.Duration) error {
	if runID == "" {
		return ErrRunIDRequired
	}
	return c.client.Set(ctx, c.key(runID, key), value, ttl).Err()
}

// Delete removes key.
func (c *RedisCache) Delete(ctx context.Context, runID string, key string) error {
	if runID == "" {
		return ErrRunIDRequired
	}
	return c.client.Del(ctx, c.key(runID, key)).Err()
}

// GetSignals returns the cached signals of a user, or nil.
func (c *RedisCache) GetSignals(ctx context.Context, runID string, userID string) (*domain.Signals, error) {
	return loadSignals(ctx, c, runID, userID)
}

// SetSignals caches the signals of a user.
func (c *RedisCache) SetSignals(ctx context.Context, runID string, userID string, s *domain.Signals, ttl time.Duration) error {
	return storeSignals(ctx, c, runID, userID, s, ttl)
}

// IncrementCounter atomically increments a windowed counter.
func (c *RedisCache) IncrementCounter(ctx context.Context, runID string, key string, window time.Duration) (int64, error) {
	if runID == "" {
		return 0, ErrRunIDRequired
	}
	return incrWithExpiry.Run(ctx, c.client, []string{c.key(runID, "counter:"+key)}, window.Milliseconds()).Int64()
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) key(runID, key string) string {
	return keyPrefix + runID + ":" + key
}
