// Package rewards rolls transaction spend up into per-user points.
package rewards

import (
	"math"
	"sort"

	"github.com/opensource-finance/fraudgen/internal/domain"
)

// Points model.
const (
	SpendPerPoint  = 10.0
	RiskMultiplier = 10.0
)

// Options controls aggregation.
type Options struct {
	// Backfill emits a record for users without transactions:
	// total_spent 0 and points floor(risk×10).
	Backfill bool
}

// Points returns floor(floor(total/10) + risk×10).
func Points(totalSpent, riskScore float64) int64 {
	base := math.Floor(totalSpent / SpendPerPoint)
	return int64(math.Floor(base + riskScore*RiskMultiplier))
}

// Aggregate groups txs by user and computes each user's points balance.
// Records are sorted by user id. Transactions for users missing from users
// get a zero risk score.
func Aggregate(users []domain.User, txs []domain.Transaction, opts Options) []domain.PointsRecord {
	risk := make(map[string]float64, len(users))
	for _, u := range users {
		risk[u.UserID] = u.RiskScore
	}

	spent := make(map[string]float64)
	for i := range txs {
		spent[txs[i].UserID] += txs[i].Amount
	}

	if opts.Backfill {
		for _, u := range users {
			if _, ok := spent[u.UserID]; !ok {
				spent[u.UserID] = 0
			}
		}
	}

	records := make([]domain.PointsRecord, 0, len(spent))
	for userID, total := range spent {
		total = math.Round(total*100) / 100
		records = append(records, domain.PointsRecord{
			UserID:     userID,
			TotalSpent: total,
			Points:     Points(total, risk[userID]),
		})
	}

	sort.Slice(records, func(i, j int) bool { return records[i].UserID < records[j].UserID })
	return records
}
