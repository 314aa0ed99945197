package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/fraudgen/internal/domain"
)

// ErrRunIDRequired is returned when a cache call has no run scope.
var ErrRunIDRequired = errors.New("runID is required")

func signalsKey(userID string) string {
	return "signals:" + userID
}

type byteStore interface {
	Get(ctx context.Context, runID string, key string) ([]byte, error)
	Set(ctx context.Context, runID string, key string, value []byte, ttl time.Duration) error
}

func loadSignals(ctx context.Context, s byteStore, runID, userID string) (*domain.Signals, error) {
	data, err := s.Get(ctx, runID, signalsKey(userID))
	if err != nil || data == nil {
		return nil, err
	}

	var sig domain.Signals
	if err := json.Unmarshal(data, &sig); err != nil {
		return nil, fmt.Errorf("failed to decode signals for %s: %w", userID, err)
	}
	return &sig, nil
}

func storeSignals(ctx context.Context, s byteStore, runID, userID string, sig *domain.Signals, ttl time.Duration) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return err
	}
	return s.Set(ctx, runID, signalsKey(userID), data, ttl)
}

// BuildSignals folds a transaction stream into per-user signals.
func BuildSignals(txs []domain.Transaction) map[string]*domain.Signals {
	out := make(map[string]*domain.Signals)
	for i := range txs {
		sig, ok := out[txs[i].UserID]
		if !ok {
			sig = &domain.Signals{}
			out[txs[i].UserID] = sig
		}
		sig.Observe(&txs[i])
	}
	return out
}

// Warm writes the signals of every user in txs and returns how many users
// were written.
func Warm(ctx context.Context, c domain.Cache, runID string, txs []domain.Transaction, ttl time.Duration) (int, error) {
	n := 0
	for userID, sig := range BuildSignals(txs) {
		if err := c.SetSignals(ctx, runID, userID, sig, ttl); err != nil {
			return n, fmt.Errorf("failed to warm signals for %s: %w", userID, err)
		}
		n++
	}
	return n, nil
}
