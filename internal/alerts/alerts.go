// Package alerts derives fraud alerts from a finished transaction stream.
package alerts

import (
	"fmt"
	"math/rand/v2"

	"github.com/opensource-finance/fraudgen/internal/domain"
)

// Default thresholds. Both comparisons are strict.
const (
	DefaultThreshold     = 0.5
	DefaultHighThreshold = 0.8
)

// Deriver turns high-probability transactions into alerts.
type Deriver struct {
	// Threshold above which a transaction raises an alert
	Threshold float64

	// HighThreshold above which an alert is graded high
	HighThreshold float64

	rng *rand.Rand
}

// NewDeriver creates a deriver with default thresholds. rng draws the
// alert status.
func NewDeriver(rng *rand.Rand) *Deriver {
	return &Deriver{
		Threshold:     DefaultThreshold,
		HighThreshold: DefaultHighThreshold,
		rng:           rng,
	}
}

// ShouldAlert reports whether tx raises an alert.
func (d *Deriver) ShouldAlert(tx *domain.Transaction) bool {
	return tx.FraudProbability > d.Threshold
}

// Level grades a fraud probability.
func (d *Deriver) Level(p float64) domain.RiskLevel {
	if p > d.HighThreshold {
		return domain.RiskLevelHigh
	}
	return domain.RiskLevelMedium
}

// Derive emits one alert per qualifying transaction, in stream order.
// The status is decorative and independent of the fraud label.
func (d *Deriver) Derive(txs []domain.Transaction) []domain.Alert {
	alerts := make([]domain.Alert, 0)
	for i := range txs {
		tx := &txs[i]
		if !d.ShouldAlert(tx) {
			continue
		}

		level := d.Level(tx.FraudProbability)
		alerts = append(alerts, domain.Alert{
			AlertID:          AlertID(tx.TransactionID),
			TransactionID:    tx.TransactionID,
			UserID:           tx.UserID,
			FraudProbability: tx.FraudProbability,
			RiskLevel:        level,
			AlertType:        domain.AlertTypeAutomatic,
			Description:      Description(level),
			Status:           domain.AlertStatuses[d.rng.IntN(len(domain.AlertStatuses))],
			CreatedAt:        tx.TransactionTime,
		})
	}
	return alerts
}

// AlertID returns the alert id for a transaction id.
func AlertID(txID string) string {
	return "alert_" + txID
}

// Description returns the human-readable alert description.
func Description(level domain.RiskLevel) string {
	return fmt.Sprintf("Transaction flagged as %s risk fraud", level)
}

// CountByLevel tallies alerts per risk level.
func CountByLevel(alerts []domain.Alert) map[domain.RiskLevel]int {
	counts := make(map[domain.RiskLevel]int, 2)
	for _, a := range alerts {
		counts[a.RiskLevel]++
	}
	return counts
}
