// Package synth is the transaction generation engine. It draws
// user/card/merchant triples from an entity pool and assembles transactions
// whose amount, time, location and fraud label follow one probabilistic
// model.
package synth

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/opensource-finance/fraudgen/internal/domain"
	"github.com/opensource-finance/fraudgen/internal/entity"
	"github.com/opensource-finance/fraudgen/internal/risk"
	"github.com/opensource-finance/fraudgen/internal/scoring"
)

// DefaultAttemptMultiplier sets the attempt cap to 3× the target.
const DefaultAttemptMultiplier = 3

// Fraud rate multipliers.
const (
	OddHourMultiplier      = 1.5
	WeekendMultiplier      = 1.2
	HighRiskCityMultiplier = 1.3
)

// Amount model.
const (
	FraudSigma     = 0.8
	FraudAmountCap = 50000.0
	FraudMeanScale = 2.0

	NormalSigma     = 0.6
	NormalAmountCap = 5000.0

	// HighRiskLocationRate is the chance a fraudulent transaction lands in
	// a high-risk location.
	HighRiskLocationRate = 0.3

	// coordJitter spreads coordinates around the location's center, in degrees.
	coordJitter = 0.05
)

var (
	ErrInvalidParams = errors.New("invalid generation parameters")
	ErrNoPool        = errors.New("entity pool is nil")
)

// Params describes one generation run.
type Params struct {
	Target            int
	Window            domain.Window
	AttemptMultiplier int

	// Chronological recomputes gaps in time order per card after generation.
	// By default gaps follow generation order and may be negative.
	Chronological bool
}

func (p Params) validate() error {
	if p.Target < 0 {
		return fmt.Errorf("%w: target %d is negative", ErrInvalidParams, p.Target)
	}
	if p.AttemptMultiplier < 0 {
		return fmt.Errorf("%w: attempt multiplier %d is negative", ErrInvalidParams, p.AttemptMultiplier)
	}
	if p.Window.End.Before(p.Window.Start) {
		return fmt.Errorf("%w: window end %s before start %s", ErrInvalidParams,
			p.Window.End.Format(time.RFC3339), p.Window.Start.Format(time.RFC3339))
	}
	return nil
}

// Result is the outcome of a run. A short result is not an error: callers
// decide whether under-delivery is acceptable.
type Result struct {
	Transactions []domain.Transaction
	Requested    int
	Accepted     int
	Attempts     int
	Discarded    int
}

// Short reports whether the attempt cap stopped generation early.
func (r *Result) Short() bool {
	return r.Accepted < r.Requested
}

// FraudCount returns the number of transactions labeled as fraud.
func (r *Result) FraudCount() int {
	n := 0
	for i := range r.Transactions {
		if r.Transactions[i].IsFraud {
			n++
		}
	}
	return n
}

// Synthesizer generates transactions. It owns the per-card last-seen state
// and is not safe for concurrent use; run one per goroutine.
type Synthesizer struct {
	table risk.Table
	rng   *rand.Rand

	noise    distuv.Uniform
	lastSeen map[string]time.Time

	highRisk []domain.Location
	normal   []domain.Location
}

// New creates a synthesizer drawing from rng with the given risk table.
func New(table risk.Table, rng *rand.Rand) *Synthesizer {
	return &Synthesizer{
		table:    table,
		rng:      rng,
		noise:    distuv.Uniform{Min: -scoring.NoiseAmplitude, Max: scoring.NoiseAmplitude, Src: rng},
		lastSeen: make(map[string]time.Time),
		highRisk: domain.HighRiskLocations(),
		normal:   domain.NormalLocations(),
	}
}

// Generate runs the generation loop until params.Target transactions are
// accepted or the attempt cap is spent.
func (s *Synthesizer) Generate(pool *entity.Pool, params Params) (*Result, error) {
	if params.AttemptMultiplier == 0 {
		params.AttemptMultiplier = DefaultAttemptMultiplier
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	return s.GenerateWithBudget(pool, params, NewBudget(params.Target, params.AttemptMultiplier))
}

// GenerateWithBudget runs the loop against a caller-owned budget, which may
// be shared between synthesizers. Result counts cover this synthesizer only.
func (s *Synthesizer) GenerateWithBudget(pool *entity.Pool, params Params, budget *Budget) (*Result, error) {
	if pool == nil {
		return nil, ErrNoPool
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	if err := s.checkTable(pool); err != nil {
		return nil, err
	}

	clear(s.lastSeen)

	res := &Result{
		Requested:    budget.Target(),
		Transactions: make([]domain.Transaction, 0, budget.Target()),
	}

	for budget.Attempt() {
		res.Attempts++

		tx, ok := s.attempt(pool, params.Window)
		if !ok || !budget.Accept() {
			res.Discarded++
			continue
		}

		tx.TransactionID = TransactionID(len(res.Transactions) + 1)
		res.Transactions = append(res.Transactions, tx)
	}

	res.Accepted = len(res.Transactions)

	if params.Chronological {
		ChronologicalGaps(res.Transactions)
	}
	return res, nil
}

// attempt makes one candidate draw. It reports false when the chosen user
// has no active card.
func (s *Synthesizer) attempt(pool *entity.Pool, window domain.Window) (domain.Transaction, bool) {
	user := pool.UserAt(s.rng.IntN(pool.UserCount()))
	cards := pool.ActiveCards(user.UserID)
	if len(cards) == 0 {
		return domain.Transaction{}, false
	}
	card := cards[s.rng.IntN(len(cards))]
	merchant := pool.MerchantAt(s.rng.IntN(pool.MerchantCount()))
	profile := s.table[merchant.Category]

	txTime := s.drawTime(window)

	rate := EffectiveFraudRate(profile.FraudRate, user.RiskScore, txTime, merchant.City)
	isFraud := distuv.Bernoulli{P: rate, Src: s.rng}.Rand() == 1

	amount := s.drawAmount(profile.AvgAmount, isFraud)
	location := s.drawLocation(isFraud)
	deviceType := pick(s.rng, domain.DeviceTypes)
	deviceID := fmt.Sprintf("device_%d", 1000+s.rng.IntN(9000))

	var gap *float64
	if prev, ok := s.lastSeen[card.CardID]; ok {
		d := txTime.Sub(prev).Seconds()
		gap = &d
	}
	s.lastSeen[card.CardID] = txTime

	probability := scoring.Round4(scoring.Score(scoring.Input{
		Amount:            amount,
		Time:              txTime,
		Location:          location,
		CategoryFraudRate: profile.FraudRate,
		UserRiskScore:     user.RiskScore,
		IsFraud:           isFraud,
	}, s.noise.Rand()))

	lat, lon := s.drawCoordinates(location)

	return domain.Transaction{
		CardID:             card.CardID,
		CardNumber:         card.CardNumber,
		UserID:             user.UserID,
		MerchantID:         merchant.MerchantID,
		MerchantName:       merchant.MerchantName,
		MerchantCategory:   merchant.Category,
		Amount:             amount,
		Currency:           domain.DefaultCurrency,
		TransactionTime:    txTime,
		Location:           location,
		Latitude:           lat,
		Longitude:          lon,
		DeviceID:           deviceID,
		DeviceType:         deviceType,
		SourceSystem:       pick(s.rng, domain.SourceSystems),
		SecondsSincePrevTx: gap,
		IsFraud:            isFraud,
		FraudProbability:   probability,
		CreatedAt:          txTime,
	}, true
}

// EffectiveFraudRate scales a category's base rate by user risk, time of
// day, weekday and merchant city.
func EffectiveFraudRate(base, userRisk float64, t time.Time, merchantCity string) float64 {
	rate := base * (1 + userRisk)
	if scoring.IsOddHour(t) {
		rate *= OddHourMultiplier
	}
	if scoring.IsWeekend(t) {
		rate *= WeekendMultiplier
	}
	if domain.IsHighRiskCity(merchantCity) {
		rate *= HighRiskCityMultiplier
	}
	return math.Min(rate, 1)
}

// drawTime returns a second-resolution time uniform in the window,
// independent of any earlier draw for the same card.
func (s *Synthesizer) drawTime(w domain.Window) time.Time {
	span := int64(w.End.Sub(w.Start) / time.Second)
	if span <= 0 {
		return w.Start
	}
	return w.Start.Add(time.Duration(s.rng.Int64N(span+1)) * time.Second)
}

func (s *Synthesizer) drawAmount(avg float64, isFraud bool) float64 {
	dist := distuv.LogNormal{Mu: math.Log(avg), Sigma: NormalSigma, Src: s.rng}
	limit := NormalAmountCap
	if isFraud {
		dist = distuv.LogNormal{Mu: math.Log(avg * FraudMeanScale), Sigma: FraudSigma, Src: s.rng}
		limit = FraudAmountCap
	}
	amount := math.Round(math.Min(dist.Rand(), limit)*100) / 100
	if amount <= 0 {
		amount = 0.01
	}
	return amount
}

func (s *Synthesizer) drawLocation(isFraud bool) domain.Location {
	if isFraud && s.rng.Float64() < HighRiskLocationRate {
		return pick(s.rng, s.highRisk)
	}
	return pick(s.rng, s.normal)
}

func (s *Synthesizer) drawCoordinates(loc domain.Location) (float64, float64) {
	c, _ := loc.Coordinates()
	lat := c.Latitude + (s.rng.Float64()*2-1)*coordJitter
	lon := c.Longitude + (s.rng.Float64()*2-1)*coordJitter
	return round6(lat), round6(lon)
}

func (s *Synthesizer) checkTable(pool *entity.Pool) error {
	for _, m := range pool.Merchants() {
		if _, ok := s.table[m.Category]; !ok {
			return fmt.Errorf("%w: merchant %s category %q", risk.ErrMissingCategory, m.MerchantID, m.Category)
		}
	}
	return nil
}

// ChronologicalGaps rewrites SecondsSincePrevTx so that, per card, gaps are
// measured between consecutive transactions in time order. The earliest
// transaction of each card gets a nil gap. Slice order is unchanged.
func ChronologicalGaps(txs []domain.Transaction) {
	byCard := make(map[string][]int)
	for i := range txs {
		byCard[txs[i].CardID] = append(byCard[txs[i].CardID], i)
	}
	for _, idx := range byCard {
		sort.SliceStable(idx, func(a, b int) bool {
			return txs[idx[a]].TransactionTime.Before(txs[idx[b]].TransactionTime)
		})
		for k, i := range idx {
			if k == 0 {
				txs[i].SecondsSincePrevTx = nil
				continue
			}
			d := txs[i].TransactionTime.Sub(txs[idx[k-1]].TransactionTime).Seconds()
			txs[i].SecondsSincePrevTx = &d
		}
	}
}

// TransactionID formats the n-th accepted transaction's id.
func TransactionID(n int) string {
	return fmt.Sprintf("txn_%07d", n)
}

func pick[T any](rng *rand.Rand, xs []T) T {
	return xs[rng.IntN(len(xs))]
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
