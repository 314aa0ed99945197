// Package risk holds the merchant-category risk model: a static table of
// base fraud rates and typical amounts per category.
package risk

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/opensource-finance/fraudgen/internal/domain"
)

var (
	ErrMissingCategory = errors.New("risk table is missing a category")
	ErrInvalidProfile  = errors.New("invalid risk profile")
)

// Profile is the risk profile of one merchant category.
type Profile struct {
	FraudRate float64 `json:"fraud_rate"`
	AvgAmount float64 `json:"avg_amount"`
}

// Table maps every merchant category to its profile.
type Table map[domain.Category]Profile

// Default returns the built-in risk table.
func Default() Table {
	return Table{
		domain.CategoryGrocery:            {FraudRate: 0.01, AvgAmount: 85.50},
		domain.CategoryGasStation:         {FraudRate: 0.02, AvgAmount: 45.20},
		domain.CategoryRestaurant:         {FraudRate: 0.015, AvgAmount: 32.80},
		domain.CategoryRetail:             {FraudRate: 0.025, AvgAmount: 125.40},
		domain.CategoryElectronics:        {FraudRate: 0.035, AvgAmount: 450.75},
		domain.CategoryOnlineShopping:     {FraudRate: 0.04, AvgAmount: 89.30},
		domain.CategoryTravel:             {FraudRate: 0.03, AvgAmount: 850.20},
		domain.CategoryEntertainment:      {FraudRate: 0.02, AvgAmount: 65.80},
		domain.CategoryHealthcare:         {FraudRate: 0.01, AvgAmount: 180.50},
		domain.CategoryUtilities:          {FraudRate: 0.005, AvgAmount: 120.30},
		domain.CategoryLuxuryGoods:        {FraudRate: 0.08, AvgAmount: 2500.00},
		domain.CategoryCryptocurrency:     {FraudRate: 0.12, AvgAmount: 500.00},
		domain.CategoryMoneyTransfer:      {FraudRate: 0.15, AvgAmount: 300.00},
		domain.CategoryAdultEntertainment: {FraudRate: 0.06, AvgAmount: 75.00},
		domain.CategoryGambling:           {FraudRate: 0.10, AvgAmount: 200.00},
	}
}

// Load reads a risk table from a JSON file keyed by category name.
// The file must cover every category.
func Load(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read risk table: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a JSON risk table.
func Parse(data []byte) (Table, error) {
	var raw map[string]Profile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse risk table: %w", err)
	}

	t := make(Table, len(raw))
	for name, p := range raw {
		c, err := domain.ParseCategory(name)
		if err != nil {
			return nil, err
		}
		t[c] = p
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks that the table is exhaustive and every profile is usable.
func (t Table) Validate() error {
	for _, c := range domain.AllCategories() {
		p, ok := t[c]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingCategory, c)
		}
		if p.FraudRate <= 0 || p.FraudRate >= 1 {
			return fmt.Errorf("%w: %s fraud_rate %v must be in (0,1)", ErrInvalidProfile, c, p.FraudRate)
		}
		if p.AvgAmount <= 0 {
			return fmt.Errorf("%w: %s avg_amount %v must be positive", ErrInvalidProfile, c, p.AvgAmount)
		}
	}
	for c := range t {
		if !c.Valid() {
			return fmt.Errorf("%w: %q", domain.ErrUnknownCategory, c)
		}
	}
	return nil
}

// Profile returns the profile of c.
func (t Table) Profile(c domain.Category) (Profile, bool) {
	p, ok := t[c]
	return p, ok
}

// Categories returns the table's categories sorted by name.
func (t Table) Categories() []domain.Category {
	out := make([]domain.Category, 0, len(t))
	for c := range t {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
