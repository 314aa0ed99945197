package synth

import (
	"errors"
	"math/rand/v2"
	"reflect"
	"testing"
	"time"

	"github.com/opensource-finance/fraudgen/internal/domain"
	"github.com/opensource-finance/fraudgen/internal/entity"
	"github.com/opensource-finance/fraudgen/internal/risk"
)

var (
	clock  = time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	window = domain.DefaultWindow(clock)
)

func newPool(t *testing.T, seed int64, users, merchants int) *entity.Pool {
	t.Helper()
	g := entity.NewGenerator(seed, clock)
	us := g.Users(users)
	pool, err := entity.NewPool(us, g.Cards(us), g.Merchants(merchants))
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	return pool
}

func run(t *testing.T, seed int64, pool *entity.Pool, params Params) *Result {
	t.Helper()
	s := New(risk.Default(), rand.New(rand.NewPCG(uint64(seed), 1)))
	res, err := s.Generate(pool, params)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	return res
}

func TestGenerate_Seed42Scenario(t *testing.T) {
	pool := newPool(t, 42, 100, 50)
	res := run(t, 42, pool, Params{Target: 1000, Window: window, AttemptMultiplier: 3})

	if res.Accepted > 1000 {
		t.Errorf("accepted %d exceeds target", res.Accepted)
	}
	if res.Attempts > 3000 {
		t.Errorf("attempts %d exceed cap", res.Attempts)
	}
	if res.Accepted+res.Discarded != res.Attempts {
		t.Errorf("accepted %d + discarded %d != attempts %d", res.Accepted, res.Discarded, res.Attempts)
	}
	if len(res.Transactions) != res.Accepted {
		t.Errorf("stream length %d != accepted %d", len(res.Transactions), res.Accepted)
	}

	for _, tx := range res.Transactions {
		card, ok := pool.Card(tx.CardID)
		if !ok {
			t.Fatalf("%s: card %s does not resolve", tx.TransactionID, tx.CardID)
		}
		if !card.IsActive {
			t.Errorf("%s: card %s is inactive", tx.TransactionID, tx.CardID)
		}
		if card.UserID != tx.UserID {
			t.Errorf("%s: card owner %s != user %s", tx.TransactionID, card.UserID, tx.UserID)
		}
		if _, ok := pool.User(tx.UserID); !ok {
			t.Errorf("%s: user %s does not resolve", tx.TransactionID, tx.UserID)
		}
		if tx.TransactionTime.Before(window.Start) || tx.TransactionTime.After(window.End) {
			t.Errorf("%s: time %v outside window", tx.TransactionID, tx.TransactionTime)
		}
		if tx.Amount <= 0 {
			t.Errorf("%s: non-positive amount %v", tx.TransactionID, tx.Amount)
		}
	}
}

func TestGenerate_ProbabilityBounds(t *testing.T) {
	pool := newPool(t, 3, 200, 100)
	res := run(t, 3, pool, Params{Target: 5000, Window: window})

	for _, tx := range res.Transactions {
		if tx.FraudProbability < 0 || tx.FraudProbability > 1 {
			t.Errorf("%s: probability %v out of [0,1]", tx.TransactionID, tx.FraudProbability)
		}
		if tx.IsFraud && tx.FraudProbability < 0.5 {
			t.Errorf("%s: fraud scored %v below floor", tx.TransactionID, tx.FraudProbability)
		}
		if tx.IsFraud && tx.Amount > FraudAmountCap {
			t.Errorf("%s: fraud amount %v above cap", tx.TransactionID, tx.Amount)
		}
		if !tx.IsFraud && tx.Amount > NormalAmountCap {
			t.Errorf("%s: amount %v above cap", tx.TransactionID, tx.Amount)
		}
		if !tx.IsFraud && tx.Location.IsHighRisk() {
			t.Errorf("%s: non-fraud transaction in high-risk location %s", tx.TransactionID, tx.Location)
		}
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	params := Params{Target: 2000, Window: window}

	a := run(t, 42, newPool(t, 42, 100, 50), params)
	b := run(t, 42, newPool(t, 42, 100, 50), params)

	if !reflect.DeepEqual(a, b) {
		t.Fatal("two runs with the same seed produced different results")
	}

	c := run(t, 43, newPool(t, 42, 100, 50), params)
	if reflect.DeepEqual(a.Transactions, c.Transactions) {
		t.Error("different seeds produced identical streams")
	}
}

func TestGenerate_GapsPerCard(t *testing.T) {
	check := func(t *testing.T, res *Result) {
		t.Helper()
		seen := make(map[string]bool)
		nils := make(map[string]int)
		for _, tx := range res.Transactions {
			if tx.SecondsSincePrevTx == nil {
				nils[tx.CardID]++
			}
			seen[tx.CardID] = true
		}
		for card := range seen {
			if nils[card] != 1 {
				t.Errorf("card %s has %d nil gaps, want 1", card, nils[card])
			}
		}
	}

	t.Run("GenerationOrder", func(t *testing.T) {
		res := run(t, 5, newPool(t, 5, 50, 20), Params{Target: 1500, Window: window})
		check(t, res)

		first := make(map[string]bool)
		for _, tx := range res.Transactions {
			if !first[tx.CardID] {
				first[tx.CardID] = true
				if tx.SecondsSincePrevTx != nil {
					t.Errorf("%s: first transaction of %s has a gap", tx.TransactionID, tx.CardID)
				}
			}
		}
	})

	t.Run("Chronological", func(t *testing.T) {
		res := run(t, 5, newPool(t, 5, 50, 20), Params{Target: 1500, Window: window, Chronological: true})
		check(t, res)

		for _, tx := range res.Transactions {
			if tx.SecondsSincePrevTx != nil && *tx.SecondsSincePrevTx < 0 {
				t.Errorf("%s: negative gap %v under chronological policy", tx.TransactionID, *tx.SecondsSincePrevTx)
			}
		}
	})
}

func TestGenerate_FraudAmountsLarger(t *testing.T) {
	// Single-category merchant pool so the comparison is at fixed category.
	g := entity.NewGenerator(11, clock)
	users := g.Users(300)
	merchants := g.Merchants(10)
	for i := range merchants {
		merchants[i].Category = domain.CategoryMoneyTransfer
	}
	pool, err := entity.NewPool(users, g.Cards(users), merchants)
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}

	res := run(t, 11, pool, Params{Target: 20000, Window: window})

	var fraudSum, normalSum float64
	var fraudN, normalN int
	for _, tx := range res.Transactions {
		if tx.IsFraud {
			fraudSum += tx.Amount
			fraudN++
		} else {
			normalSum += tx.Amount
			normalN++
		}
	}
	if fraudN == 0 || normalN == 0 {
		t.Fatalf("need both labels, got fraud=%d normal=%d", fraudN, normalN)
	}
	if fraudSum/float64(fraudN) <= normalSum/float64(normalN) {
		t.Errorf("fraud mean %v should exceed normal mean %v",
			fraudSum/float64(fraudN), normalSum/float64(normalN))
	}
}

func TestGenerate_ShortDelivery(t *testing.T) {
	users := []domain.User{{UserID: "user_00001"}, {UserID: "user_00002"}, {UserID: "user_00003"}, {UserID: "user_00004"}}
	cards := []domain.Card{
		{CardID: "card_user_00001_01", UserID: "user_00001", IsActive: true},
		{CardID: "card_user_00002_01", UserID: "user_00002", IsActive: false},
		{CardID: "card_user_00003_01", UserID: "user_00003", IsActive: false},
		{CardID: "card_user_00004_01", UserID: "user_00004", IsActive: false},
	}
	merchants := []domain.Merchant{{MerchantID: "merchant_00001", Category: domain.CategoryGrocery, City: "Boise"}}
	pool, err := entity.NewPool(users, cards, merchants)
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}

	res := run(t, 1, pool, Params{Target: 1000, Window: window, AttemptMultiplier: 1})

	if !res.Short() {
		t.Fatalf("expected short delivery, accepted %d of %d", res.Accepted, res.Requested)
	}
	if res.Attempts != 1000 {
		t.Errorf("expected all 1000 attempts spent, got %d", res.Attempts)
	}
	if res.Discarded == 0 {
		t.Error("expected discarded attempts")
	}
	for _, tx := range res.Transactions {
		if tx.CardID != "card_user_00001_01" {
			t.Errorf("transaction on ineligible card %s", tx.CardID)
		}
	}
}

func TestGenerate_Errors(t *testing.T) {
	pool := newPool(t, 1, 10, 5)

	t.Run("NilPool", func(t *testing.T) {
		s := New(risk.Default(), rand.New(rand.NewPCG(1, 1)))
		if _, err := s.Generate(nil, Params{Target: 1, Window: window}); !errors.Is(err, ErrNoPool) {
			t.Errorf("expected ErrNoPool, got %v", err)
		}
	})

	t.Run("NegativeTarget", func(t *testing.T) {
		s := New(risk.Default(), rand.New(rand.NewPCG(1, 1)))
		if _, err := s.Generate(pool, Params{Target: -1, Window: window}); !errors.Is(err, ErrInvalidParams) {
			t.Errorf("expected ErrInvalidParams, got %v", err)
		}
	})

	t.Run("InvertedWindow", func(t *testing.T) {
		s := New(risk.Default(), rand.New(rand.NewPCG(1, 1)))
		bad := domain.Window{Start: window.End, End: window.Start}
		if _, err := s.Generate(pool, Params{Target: 1, Window: bad}); !errors.Is(err, ErrInvalidParams) {
			t.Errorf("expected ErrInvalidParams, got %v", err)
		}
	})

	t.Run("IncompleteTable", func(t *testing.T) {
		table := risk.Default()
		for c := range table {
			delete(table, c)
		}
		s := New(table, rand.New(rand.NewPCG(1, 1)))
		if _, err := s.Generate(pool, Params{Target: 1, Window: window}); !errors.Is(err, risk.ErrMissingCategory) {
			t.Errorf("expected ErrMissingCategory, got %v", err)
		}
	})

	t.Run("ZeroTarget", func(t *testing.T) {
		res := run(t, 1, pool, Params{Target: 0, Window: window})
		if res.Accepted != 0 || res.Attempts != 0 || res.Short() {
			t.Errorf("unexpected result for zero target: %+v", res)
		}
	})
}

func TestEffectiveFraudRate(t *testing.T) {
	weekdayNoon := time.Date(2025, 6, 11, 12, 0, 0, 0, time.UTC)
	saturdayNight := time.Date(2025, 6, 14, 23, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		t    time.Time
		city string
		want float64
	}{
		{"Baseline", weekdayNoon, "Boise", 0.1 * 1.5},
		{"HighRiskCity", weekdayNoon, "Miami", 0.1 * 1.5 * 1.3},
		{"OddHourWeekend", saturdayNight, "Boise", 0.1 * 1.5 * 1.5 * 1.2},
		{"Everything", saturdayNight, "Las Vegas", 0.1 * 1.5 * 1.5 * 1.2 * 1.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EffectiveFraudRate(0.1, 0.5, tt.t, tt.city)
			if diff := got - tt.want; diff > 1e-12 || diff < -1e-12 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBudget(t *testing.T) {
	b := NewBudget(2, 2)

	for i := 0; i < 4; i++ {
		if !b.Attempt() {
			t.Fatalf("attempt %d denied", i+1)
		}
	}
	if b.Attempt() {
		t.Error("attempt beyond cap allowed")
	}

	b = NewBudget(1, 10)
	if !b.Attempt() || !b.Accept() {
		t.Fatal("first attempt/accept denied")
	}
	if b.Accept() {
		t.Error("accept beyond target allowed")
	}
	if b.Attempt() {
		t.Error("attempt allowed after target reached")
	}
}

func TestDrawLocation(t *testing.T) {
	s := New(risk.Default(), rand.New(rand.NewPCG(42, 1)))

	t.Run("Partition", func(t *testing.T) {
		for range 1000 {
			if loc := s.drawLocation(false); loc.IsHighRisk() {
				t.Fatalf("non-fraud drew high-risk location %s", loc)
			}
		}
		var high int
		for range 1000 {
			if s.drawLocation(true).IsHighRisk() {
				high++
			}
		}
		if high == 0 || high == 1000 {
			t.Errorf("fraud draws should mix location sets, got %d/1000 high-risk", high)
		}
	})

	t.Run("NoAllocations", func(t *testing.T) {
		allocs := testing.AllocsPerRun(100, func() {
			s.drawLocation(true)
			s.drawLocation(false)
		})
		if allocs != 0 {
			t.Errorf("expected no allocations per draw, got %.1f", allocs)
		}
	})
}
