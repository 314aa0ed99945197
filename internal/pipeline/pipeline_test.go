package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/opensource-finance/fraudgen/internal/domain"
	"github.com/opensource-finance/fraudgen/internal/metrics"
	"github.com/opensource-finance/fraudgen/internal/synth"
)

var clock = time.Date(2025, 10, 1, 9, 30, 0, 0, time.UTC)

func fixedNow() time.Time { return clock }

func smallConfig() domain.GenerationConfig {
	cfg := domain.DefaultConfig().Generation
	cfg.Users = 100
	cfg.Merchants = 50
	cfg.Transactions = 1000
	return cfg
}

func TestRun_Seed42(t *testing.T) {
	cfg := smallConfig()
	cfg.Checks = true

	ds, err := New(WithClock(fixedNow), WithRunID("run-42")).Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	s := ds.Summary
	if ds.RunID != "run-42" || ds.Seed != 42 {
		t.Errorf("unexpected run metadata: %s/%d", ds.RunID, ds.Seed)
	}
	if s.Users != 100 || s.Merchants != 50 {
		t.Errorf("unexpected pool sizes: %+v", s)
	}
	if s.Accepted > 1000 || s.Attempts > 3000 {
		t.Errorf("budget violated: %+v", s)
	}
	if s.Short != (s.Accepted < s.Requested) {
		t.Errorf("short flag inconsistent: %+v", s)
	}
	if s.ChecksFailed != 0 {
		t.Errorf("expected all checks to pass, %d failed", s.ChecksFailed)
	}
	if s.AlertCount != len(ds.Alerts) || s.PointsCount != len(ds.Points) {
		t.Errorf("summary counts disagree with records: %+v", s)
	}
	var high int
	for _, a := range ds.Alerts {
		if a.FraudProbability > 0.8 {
			high++
		}
	}
	if s.HighAlerts != high || s.HighAlerts+s.MediumAlerts != s.AlertCount {
		t.Errorf("alert levels disagree: high %d (want %d), medium %d, total %d",
			s.HighAlerts, high, s.MediumAlerts, s.AlertCount)
	}

	txIDs := make(map[string]bool, len(ds.Transactions))
	for _, tx := range ds.Transactions {
		txIDs[tx.TransactionID] = true
		if tx.TransactionTime.Before(clock.Add(-90*24*time.Hour)) || tx.TransactionTime.After(clock) {
			t.Fatalf("transaction %s outside default window: %v", tx.TransactionID, tx.TransactionTime)
		}
	}
	for _, a := range ds.Alerts {
		if !txIDs[a.TransactionID] {
			t.Fatalf("alert %s references unknown transaction", a.AlertID)
		}
		if a.FraudProbability <= 0.5 {
			t.Errorf("alert %s below threshold: %v", a.AlertID, a.FraudProbability)
		}
	}
}

func TestRun_Deterministic(t *testing.T) {
	cfg := smallConfig()
	cfg.Transactions = 300

	p := New(WithClock(fixedNow), WithRunID("fixed"))
	a, err := p.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	b, err := p.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("same seed and clock produced different datasets")
	}

	cfg.Seed = 43
	c, err := p.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("third Run failed: %v", err)
	}
	if reflect.DeepEqual(a.Transactions, c.Transactions) {
		t.Error("different seeds produced identical transactions")
	}
}

func TestRun_Parallel(t *testing.T) {
	cfg := smallConfig()
	cfg.Workers = 4
	cfg.Chronological = true
	cfg.Checks = true

	ds, err := New(WithClock(fixedNow)).Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if ds.Summary.Accepted > cfg.Transactions {
		t.Errorf("accepted %d exceeds target", ds.Summary.Accepted)
	}
	if ds.Summary.ChecksFailed != 0 {
		t.Errorf("expected checks to pass, %d failed", ds.Summary.ChecksFailed)
	}
	for _, tx := range ds.Transactions {
		if tx.SecondsSincePrevTx != nil && *tx.SecondsSincePrevTx < 0 {
			t.Fatalf("chronological gap is negative on %s", tx.TransactionID)
		}
	}
}

func TestRun_Backfill(t *testing.T) {
	cfg := smallConfig()
	cfg.Transactions = 20
	cfg.BackfillPoints = true

	ds, err := New(WithClock(fixedNow)).Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(ds.Points) != cfg.Users {
		t.Errorf("expected a points record per user, got %d", len(ds.Points))
	}
}

func TestRun_Metrics(t *testing.T) {
	m := metrics.New()
	cfg := smallConfig()
	cfg.Transactions = 50

	if _, err := New(WithClock(fixedNow), WithMetrics(m)).Run(context.Background(), cfg); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	cfg.Users = 0
	if _, err := New(WithClock(fixedNow), WithMetrics(m)).Run(context.Background(), cfg); err == nil {
		t.Fatal("expected error without users")
	}

	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("complete")); got != 1 {
		t.Errorf("expected 1 complete run, got %v", got)
	}
	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("failed")); got != 1 {
		t.Errorf("expected 1 failed run, got %v", got)
	}
}

func TestRun_Errors(t *testing.T) {
	ctx := context.Background()
	p := New(WithClock(fixedNow))

	t.Run("NoUsers", func(t *testing.T) {
		cfg := smallConfig()
		cfg.Users = 0
		if _, err := p.Run(ctx, cfg); !errors.Is(err, domain.ErrNoUsers) {
			t.Errorf("expected ErrNoUsers, got %v", err)
		}
	})

	t.Run("NoMerchants", func(t *testing.T) {
		cfg := smallConfig()
		cfg.Merchants = 0
		if _, err := p.Run(ctx, cfg); !errors.Is(err, domain.ErrNoMerchants) {
			t.Errorf("expected ErrNoMerchants, got %v", err)
		}
	})

	t.Run("BadWindow", func(t *testing.T) {
		cfg := smallConfig()
		cfg.Start = "2025-05-01"
		cfg.End = "2025-04-01"
		if _, err := p.Run(ctx, cfg); !errors.Is(err, synth.ErrInvalidParams) {
			t.Errorf("expected ErrInvalidParams, got %v", err)
		}
	})

	t.Run("BadRiskTable", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "risk.json")
		if err := os.WriteFile(path, []byte(`{"grocery":{"fraud_rate":0.01,"avg_amount":80}}`), 0o600); err != nil {
			t.Fatal(err)
		}
		cfg := smallConfig()
		cfg.RiskTablePath = path
		if _, err := p.Run(ctx, cfg); err == nil {
			t.Error("expected error for incomplete risk table")
		}
	})
}

func TestParseWindow(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		wantStart  time.Time
		wantEnd    time.Time
		wantErr    bool
	}{
		{"Default", "", "", clock.Add(-90 * 24 * time.Hour), clock, false},
		{"Dates", "2025-01-01", "2025-02-01", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), false},
		{"RFC3339", "2025-01-01T10:00:00+02:00", "2025-01-02T00:00:00Z", time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC), time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), false},
		{"EndOnly", "", "2025-04-01", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), false},
		{"Garbage", "yesterday", "", time.Time{}, time.Time{}, true},
		{"Reversed", "2025-03-01", "2025-02-01", time.Time{}, time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := ParseWindow(tt.start, tt.end, clock)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !w.Start.Equal(tt.wantStart) || !w.End.Equal(tt.wantEnd) {
				t.Errorf("got [%v, %v], want [%v, %v]", w.Start, w.End, tt.wantStart, tt.wantEnd)
			}
		})
	}
}
