package risk

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/opensource-finance/fraudgen/internal/domain"
)

func TestDefaultTable(t *testing.T) {
	table := Default()

	if err := table.Validate(); err != nil {
		t.Fatalf("default table invalid: %v", err)
	}
	if len(table) != len(domain.AllCategories()) {
		t.Errorf("expected %d categories, got %d", len(domain.AllCategories()), len(table))
	}

	p, ok := table.Profile(domain.CategoryMoneyTransfer)
	if !ok {
		t.Fatal("money_transfer missing")
	}
	if p.FraudRate != 0.15 || p.AvgAmount != 300.00 {
		t.Errorf("unexpected money_transfer profile: %+v", p)
	}
}

func TestValidate(t *testing.T) {
	t.Run("MissingCategory", func(t *testing.T) {
		table := Default()
		delete(table, domain.CategoryGambling)

		err := table.Validate()
		if !errors.Is(err, ErrMissingCategory) {
			t.Errorf("expected ErrMissingCategory, got %v", err)
		}
	})

	t.Run("RateOutOfRange", func(t *testing.T) {
		table := Default()
		table[domain.CategoryRetail] = Profile{FraudRate: 1.0, AvgAmount: 10}

		err := table.Validate()
		if !errors.Is(err, ErrInvalidProfile) {
			t.Errorf("expected ErrInvalidProfile, got %v", err)
		}
	})

	t.Run("NonPositiveAmount", func(t *testing.T) {
		table := Default()
		table[domain.CategoryRetail] = Profile{FraudRate: 0.1, AvgAmount: 0}

		if err := table.Validate(); !errors.Is(err, ErrInvalidProfile) {
			t.Errorf("expected ErrInvalidProfile, got %v", err)
		}
	})

	t.Run("UnknownCategory", func(t *testing.T) {
		table := Default()
		table["pawn_shop"] = Profile{FraudRate: 0.1, AvgAmount: 10}

		if err := table.Validate(); !errors.Is(err, domain.ErrUnknownCategory) {
			t.Errorf("expected ErrUnknownCategory, got %v", err)
		}
	})
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("ValidFile", func(t *testing.T) {
		data := `{
			"grocery": {"fraud_rate": 0.02, "avg_amount": 90},
			"gas_station": {"fraud_rate": 0.02, "avg_amount": 45.2},
			"restaurant": {"fraud_rate": 0.015, "avg_amount": 32.8},
			"retail": {"fraud_rate": 0.025, "avg_amount": 125.4},
			"electronics": {"fraud_rate": 0.035, "avg_amount": 450.75},
			"online_shopping": {"fraud_rate": 0.04, "avg_amount": 89.3},
			"travel": {"fraud_rate": 0.03, "avg_amount": 850.2},
			"entertainment": {"fraud_rate": 0.02, "avg_amount": 65.8},
			"healthcare": {"fraud_rate": 0.01, "avg_amount": 180.5},
			"utilities": {"fraud_rate": 0.005, "avg_amount": 120.3},
			"luxury_goods": {"fraud_rate": 0.08, "avg_amount": 2500},
			"cryptocurrency": {"fraud_rate": 0.12, "avg_amount": 500},
			"money_transfer": {"fraud_rate": 0.15, "avg_amount": 300},
			"adult_entertainment": {"fraud_rate": 0.06, "avg_amount": 75},
			"gambling": {"fraud_rate": 0.1, "avg_amount": 200}
		}`
		path := filepath.Join(dir, "risk.json")
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatalf("write failed: %v", err)
		}

		table, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if got := table[domain.CategoryGrocery].AvgAmount; got != 90 {
			t.Errorf("expected grocery avg 90, got %v", got)
		}
	})

	t.Run("Incomplete", func(t *testing.T) {
		_, err := Parse([]byte(`{"grocery": {"fraud_rate": 0.02, "avg_amount": 90}}`))
		if !errors.Is(err, ErrMissingCategory) {
			t.Errorf("expected ErrMissingCategory, got %v", err)
		}
	})

	t.Run("UnknownName", func(t *testing.T) {
		_, err := Parse([]byte(`{"casino": {"fraud_rate": 0.02, "avg_amount": 90}}`))
		if !errors.Is(err, domain.ErrUnknownCategory) {
			t.Errorf("expected ErrUnknownCategory, got %v", err)
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		if _, err := Load(filepath.Join(dir, "nope.json")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}
