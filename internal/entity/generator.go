// Package entity generates the user, card and merchant populations the
// transaction synthesizer draws from.
package entity

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/opensource-finance/fraudgen/internal/domain"
)

// Population shape.
const (
	// MerchantHighRiskCityRate is the share of merchants placed in a
	// high-risk city.
	MerchantHighRiskCityRate = 0.10

	minAge = 18
	maxAge = 80
)

var (
	cardCounts  = []int{1, 2, 3}
	cardWeights = []float64{0.6, 0.3, 0.1}

	emailDomains = []string{"example.com", "example.org", "example.net"}
)

// Generator produces entity records. All randomness comes from the run seed,
// so two generators with the same seed and clock produce identical pools.
type Generator struct {
	rng   *rand.Rand
	faker *gofakeit.Faker
	beta  distuv.Beta
	now   time.Time
}

// NewGenerator creates a generator seeded with seed. now anchors relative
// dates (birth dates, registration, expiry).
func NewGenerator(seed int64, now time.Time) *Generator {
	rng := rand.New(rand.NewPCG(uint64(seed), 0x656e74697479))
	return &Generator{
		rng:   rng,
		faker: gofakeit.New(uint64(seed)),
		beta:  distuv.Beta{Alpha: 2, Beta: 5, Src: rng},
		now:   now.Truncate(time.Second),
	}
}

// Users generates n users with ids user_00001.. in order.
func (g *Generator) Users(n int) []domain.User {
	users := make([]domain.User, 0, n)
	for i := 0; i < n; i++ {
		first := g.faker.FirstName()
		last := g.faker.LastName()
		users = append(users, domain.User{
			UserID:           fmt.Sprintf("user_%05d", i+1),
			FirstName:        first,
			LastName:         last,
			Email:            g.email(first, last),
			Phone:            g.faker.Phone(),
			DateOfBirth:      g.birthDate(),
			Address:          g.faker.Street(),
			City:             g.faker.City(),
			State:            g.faker.State(),
			Country:          domain.DefaultCountry,
			PostalCode:       g.faker.Zip(),
			RegistrationDate: g.between(g.now.AddDate(-2, 0, 0), g.now),
			IsActive:         g.threeInFour(),
			RiskScore:        g.beta.Rand(),
		})
	}
	return users
}

// Cards generates one to three cards per user.
func (g *Generator) Cards(users []domain.User) []domain.Card {
	cards := make([]domain.Card, 0, len(users)*3/2)
	for _, u := range users {
		n := cardCounts[g.weighted(cardWeights)]
		for c := 0; c < n; c++ {
			limit := domain.CreditLimits[g.rng.IntN(len(domain.CreditLimits))]
			cards = append(cards, domain.Card{
				CardID:         fmt.Sprintf("card_%s_%02d", u.UserID, c+1),
				UserID:         u.UserID,
				CardNumber:     fmt.Sprintf("****%d", 1000+g.rng.IntN(9000)),
				CardType:       pick(g.rng, domain.CardTypes),
				Issuer:         pick(g.rng, domain.CardIssuers),
				ExpiryDate:     g.futureDate(5),
				IsActive:       g.threeInFour(),
				CreditLimit:    limit,
				CurrentBalance: roundCents(g.rng.Float64() * 0.8 * limit),
			})
		}
	}
	return cards
}

// Merchants generates n merchants with uniformly drawn categories.
func (g *Generator) Merchants(n int) []domain.Merchant {
	categories := domain.AllCategories()
	merchants := make([]domain.Merchant, 0, n)
	for i := 0; i < n; i++ {
		city := g.faker.City()
		if g.rng.Float64() < MerchantHighRiskCityRate {
			city = pick(g.rng, domain.HighRiskCities)
		}
		merchants = append(merchants, domain.Merchant{
			MerchantID:   fmt.Sprintf("merchant_%05d", i+1),
			MerchantName: g.faker.Company(),
			Category:     pick(g.rng, categories),
			CategoryCode: fmt.Sprintf("MCC_%d", 1000+g.rng.IntN(9000)),
			Address:      g.faker.Street(),
			City:         city,
			State:        g.faker.State(),
			Country:      domain.DefaultCountry,
			PostalCode:   g.faker.Zip(),
			IsActive:     g.threeInFour(),
			RiskScore:    g.beta.Rand(),
		})
	}
	return merchants
}

func (g *Generator) email(first, last string) string {
	local := strings.ToLower(first + "." + last)
	local = strings.ReplaceAll(local, " ", "")
	return local + "@" + pick(g.rng, emailDomains)
}

func (g *Generator) birthDate() time.Time {
	latest := g.now.AddDate(-minAge, 0, 0)
	earliest := g.now.AddDate(-maxAge-1, 0, 1)
	return g.between(earliest, latest).Truncate(24 * time.Hour)
}

func (g *Generator) futureDate(years int) time.Time {
	days := 1 + g.rng.IntN(years*365)
	return g.now.AddDate(0, 0, days).Truncate(24 * time.Hour)
}

// between returns a second-resolution time in [start, end].
func (g *Generator) between(start, end time.Time) time.Time {
	span := int64(end.Sub(start) / time.Second)
	if span <= 0 {
		return start
	}
	return start.Add(time.Duration(g.rng.Int64N(span+1)) * time.Second)
}

func (g *Generator) threeInFour() bool {
	return g.rng.IntN(4) != 0
}

func (g *Generator) weighted(weights []float64) int {
	r := g.rng.Float64()
	for i, w := range weights {
		if r < w {
			return i
		}
		r -= w
	}
	return len(weights) - 1
}

func pick[T any](rng *rand.Rand, xs []T) T {
	return xs[rng.IntN(len(xs))]
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
