package rules

import (
	"testing"

	"github.com/opensource-finance/fraudgen/internal/domain"
)

func TestSummaryEngine(t *testing.T) {
	engine, err := NewSummaryEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if err := engine.LoadChecks(BuiltinSummaryChecks()); err != nil {
		t.Fatalf("failed to load checks: %v", err)
	}
	if engine.ChecksCount() != len(BuiltinSummaryChecks()) {
		t.Errorf("expected %d checks, got %d", len(BuiltinSummaryChecks()), engine.ChecksCount())
	}

	good := domain.Summary{
		Users: 100, Cards: 150, Merchants: 50,
		Requested: 1000, Accepted: 1000, Attempts: 1400, Discarded: 400,
		FraudCount: 60, AlertCount: 200, PointsCount: 90,
	}

	tests := []struct {
		name   string
		mutate func(*domain.Summary)
		failed []string
	}{
		{"Consistent", func(*domain.Summary) {}, nil},
		{"ShortConsistent", func(s *domain.Summary) { s.Accepted = 900; s.Discarded = 500; s.Short = true }, nil},
		{"OverDelivered", func(s *domain.Summary) { s.Accepted = 1100; s.Discarded = 300 }, []string{"accepted-within-target"}},
		{"LostAttempts", func(s *domain.Summary) { s.Discarded = 10 }, []string{"attempts-accounted"}},
		{"ShortUnflagged", func(s *domain.Summary) { s.Accepted = 900; s.Discarded = 500 }, []string{"short-flag"}},
		{"TooManyPoints", func(s *domain.Summary) { s.PointsCount = 101 }, []string{"points-within-users"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := good
			tt.mutate(&s)

			failed := Failed(engine.Evaluate(s))
			if len(failed) != len(tt.failed) {
				t.Fatalf("expected failures %v, got %+v", tt.failed, failed)
			}
			for i, r := range failed {
				if r.CheckID != tt.failed[i] {
					t.Errorf("failure %d: expected %s, got %s", i, tt.failed[i], r.CheckID)
				}
			}
		})
	}
}

func TestSummaryActivation_FraudRate(t *testing.T) {
	a := SummaryActivation(domain.Summary{Accepted: 200, FraudCount: 10})
	if rate := a["fraud_rate"].(float64); rate != 0.05 {
		t.Errorf("expected fraud_rate 0.05, got %v", rate)
	}

	a = SummaryActivation(domain.Summary{})
	if rate := a["fraud_rate"].(float64); rate != 0 {
		t.Errorf("expected fraud_rate 0 for empty run, got %v", rate)
	}
}

func TestSummaryEngine_RejectsNonBool(t *testing.T) {
	engine, _ := NewSummaryEngine()
	err := engine.LoadChecks([]*Check{{ID: "count", Expression: "accepted + 1", Enabled: true}})
	if err == nil {
		t.Error("expected error for non-bool expression")
	}
}
