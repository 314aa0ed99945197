// Package scoring computes the noisy fraud probability attached to every
// synthesized transaction. It imitates an imperfect detector: labeled fraud
// is never scored below FraudFloor, everything else is additive risk.
package scoring

import (
	"math"
	"time"

	"github.com/opensource-finance/fraudgen/internal/domain"
)

// Score weights.
const (
	TierHigh   = 0.30 // amount > 10000
	TierMedium = 0.20 // amount > 5000
	TierLow    = 0.10 // amount > 1000

	OddHourBonus  = 0.15
	WeekendBonus  = 0.10
	LocationBonus = 0.20

	CategoryWeight = 2.0
	UserRiskWeight = 0.3

	// NoiseAmplitude bounds the symmetric noise term: noise is in [-A, A].
	NoiseAmplitude = 0.10

	// FraudFloor is the minimum score of a transaction labeled as fraud.
	FraudFloor = 0.5
)

// Input is the transaction context the scorer sees.
type Input struct {
	Amount            float64
	Time              time.Time
	Location          domain.Location
	CategoryFraudRate float64
	UserRiskScore     float64
	IsFraud           bool
}

// Score returns a fraud probability in [0,1]. The caller draws noise from
// U[-NoiseAmplitude, NoiseAmplitude]; Score itself holds no state.
func Score(in Input, noise float64) float64 {
	p := amountTier(in.Amount)

	if IsOddHour(in.Time) {
		p += OddHourBonus
	}
	if IsWeekend(in.Time) {
		p += WeekendBonus
	}
	if in.Location.IsHighRisk() {
		p += LocationBonus
	}

	p += in.CategoryFraudRate * CategoryWeight
	p += in.UserRiskScore * UserRiskWeight
	p += noise

	p = math.Max(0, math.Min(1, p))

	if in.IsFraud && p < FraudFloor {
		p = FraudFloor
	}
	return p
}

// Round4 rounds a score to four decimal places, the precision stored on
// transactions.
func Round4(p float64) float64 {
	return math.Round(p*10000) / 10000
}

// Thresholds are strict.
func amountTier(amount float64) float64 {
	switch {
	case amount > 10000:
		return TierHigh
	case amount > 5000:
		return TierMedium
	case amount > 1000:
		return TierLow
	default:
		return 0
	}
}

// IsOddHour reports whether t falls between 22:00 and 05:59 local time.
func IsOddHour(t time.Time) bool {
	h := t.Hour()
	return h >= 22 || h < 6
}

// IsWeekend reports whether t is a Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	d := t.Weekday()
	return d == time.Saturday || d == time.Sunday
}
