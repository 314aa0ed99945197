package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/fraudgen/internal/domain"
)

// New creates a cache from configuration: an LRU for "memory", Redis for
// "redis", or LRU in front of Redis when two-phase caching is enabled.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory", "":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// TwoPhaseCache reads through a local LRU (L1) to Redis (L2) and writes
// to both. Counters live in L2 only.
type TwoPhaseCache struct {
	local  *LRUCache
	remote *RedisCache
	l1TTL  time.Duration
}

// NewTwoPhaseCache connects L2 and creates L1.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}
	return newTwoPhase(NewLRUCache(cfg.LocalMaxSize), remote, cfg.LocalTTL), nil
}

func newTwoPhase(local *LRUCache, remote *RedisCache, l1TTL time.Duration) *TwoPhaseCache {
	if l1TTL <= 0 {
		l1TTL = 5 * time.Minute
	}
	return &TwoPhaseCache{local: local, remote: remote, l1TTL: l1TTL}
}

// Get checks L1, then L2, populating L1 on an L2 hit.
func (c *TwoPhaseCache) Get(ctx context.Context, runID string, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, runID, key)
	if err != nil || val != nil {
		return val, err
	}

	val, err = c.remote.Get(ctx, runID, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		_ = c.local.Set(ctx, runID, key, val, c.l1TTL)
	}
	return val, nil
}

// Set writes L1 with the shorter of ttl and the L1 TTL, and L2 with ttl.
func (c *TwoPhaseCache) Set(ctx context.Context, runID string, key string, value []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, runID, key, value, min(ttl, c.l1TTL)); err != nil {
		return err
	}
	return c.remote.Set(ctx, runID, key, value, ttl)
}

// Delete removes key from both levels.
func (c *TwoPhaseCache) Delete(ctx context.Context, runID string, key string) error {
	if err := c.local.Delete(ctx, runID, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, runID, key)
}

// GetSignals returns the cached signals of a user, or nil.
func (c *TwoPhaseCache) GetSignals(ctx context.Context, runID string, userID string) (*domain.Signals, error) {
	return loadSignals(ctx, c, runID, userID)
}

// SetSignals caches the signals of a user in both levels.
func (c *TwoPhaseCache) SetSignals(ctx context.Context, runID string, userID string, s *domain.Signals, ttl time.Duration) error {
	return storeSignals(ctx, c, runID, userID, s, ttl)
}

// IncrementCounter counts in L2 so every process sees the same value.
func (c *TwoPhaseCache) IncrementCounter(ctx context.Context, runID string, key string, window time.Duration) (int64, error) {
	return c.remote.IncrementCounter(ctx, runID, key, window)
}

// Ping checks both levels.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close closes both levels.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns L1 statistics.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}
