package domain

import (
	"context"
	"time"
)

// Cache defines the interface for the feature cache that generated runs
// can warm up for downstream scorers.
// Supports two-phase caching: local LRU + Redis.
// All methods require runID for isolation between runs.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, runID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, runID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, runID string, key string) error

	// GetSignals retrieves the cached behaviour signals of a user.
	GetSignals(ctx context.Context, runID string, userID string) (*Signals, error)

	// SetSignals caches the behaviour signals of a user.
	SetSignals(ctx context.Context, runID string, userID string, s *Signals, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns new value.
	IncrementCounter(ctx context.Context, runID string, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// Signals are per-user behaviour aggregates over a run.
type Signals struct {
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	TxnCount    int       `json:"txn_count"`
	FraudCount  int       `json:"fraud_count"`
	TotalAmount float64   `json:"total_amount"`
	AvgAmount   float64   `json:"avg_amount"`
	MaxAmount   float64   `json:"max_amount"`
}

// Observe folds one transaction into s.
func (s *Signals) Observe(tx *Transaction) {
	if s.TxnCount == 0 || tx.TransactionTime.Before(s.FirstSeen) {
		s.FirstSeen = tx.TransactionTime
	}
	if s.TxnCount == 0 || tx.TransactionTime.After(s.LastSeen) {
		s.LastSeen = tx.TransactionTime
	}
	s.TxnCount++
	if tx.IsFraud {
		s.FraudCount++
	}
	s.TotalAmount += tx.Amount
	s.AvgAmount = s.TotalAmount / float64(s.TxnCount)
	if tx.Amount > s.MaxAmount {
		s.MaxAmount = tx.Amount
	}
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `json:"type" env:"TYPE"`

	// Local LRU cache settings
	LocalMaxSize int           `json:"localMaxSize" env:"LOCAL_MAX_SIZE"`
	LocalTTL     time.Duration `json:"localTtl" env:"LOCAL_TTL"`

	// Redis settings
	RedisAddr     string `json:"redisAddr" env:"REDIS_ADDR"`
	RedisPassword string `json:"-" env:"REDIS_PASSWORD"`
	RedisDB       int    `json:"redisDb" env:"REDIS_DB"`

	// Two-phase settings
	EnableTwoPhase bool `json:"enableTwoPhase" env:"TWO_PHASE"` // If true, check local first, then Redis

	// SignalsTTL is how long warmed signals live.
	SignalsTTL time.Duration `json:"signalsTtl" env:"SIGNALS_TTL"`
}
