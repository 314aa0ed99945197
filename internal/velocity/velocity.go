// Package velocity counts card activity within time windows.
package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/fraudgen/internal/domain"
)

// DefaultWindow is the window used when callers pass zero.
const DefaultWindow = time.Hour

// Service calculates transaction velocity for cards.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewService creates a new velocity service. Either dependency may be nil;
// the operations that need it then fail.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// Track bumps the live counter of tx's card and returns the number of
// transactions seen for it in the current window.
func (s *Service) Track(ctx context.Context, runID string, tx *domain.Transaction, window time.Duration) (int64, error) {
	if s.cache == nil {
		return 0, fmt.Errorf("no cache configured")
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return s.cache.IncrementCounter(ctx, runID, counterKey(tx.CardID), window)
}

// CardCount returns how many stored transactions of a card fall in the
// window (at-window, at].
func (s *Service) CardCount(ctx context.Context, runID, cardID string, at time.Time, window time.Duration) (int64, error) {
	if runID == "" || cardID == "" {
		return 0, fmt.Errorf("runID and cardID are required")
	}
	if s.repo == nil {
		return 0, fmt.Errorf("no data source available")
	}
	if window <= 0 {
		window = DefaultWindow
	}

	txs, err := s.repo.ListTransactionsByCard(ctx, runID, cardID)
	if err != nil {
		return 0, fmt.Errorf("failed to get transactions: %w", err)
	}
	return Count(txs, at, window), nil
}

// Count returns the transactions in txs with a timestamp in (at-window, at].
func Count(txs []*domain.Transaction, at time.Time, window time.Duration) int64 {
	since := at.Add(-window)
	var n int64
	for _, tx := range txs {
		if tx.TransactionTime.After(since) && !tx.TransactionTime.After(at) {
			n++
		}
	}
	return n
}

func counterKey(cardID string) string {
	return "velocity:" + cardID
}
