package alerts

import (
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/opensource-finance/fraudgen/internal/domain"
)

func newDeriver() *Deriver {
	return NewDeriver(rand.New(rand.NewPCG(42, 7)))
}

func TestDerive(t *testing.T) {
	probabilities := []float64{0, 0.3, 0.5, 0.5001, 0.65, 0.8, 0.8001, 0.95, 1}
	txs := make([]domain.Transaction, len(probabilities))
	for i, p := range probabilities {
		txs[i] = domain.Transaction{
			TransactionID:    fmt.Sprintf("txn_%07d", i+1),
			UserID:           "user_00001",
			FraudProbability: p,
			TransactionTime:  time.Date(2025, 5, 1, 10, i, 0, 0, time.UTC),
		}
	}

	alerts := newDeriver().Derive(txs)

	// Exactly the transactions strictly above 0.5.
	want := map[string]domain.RiskLevel{
		"txn_0000004": domain.RiskLevelMedium,
		"txn_0000005": domain.RiskLevelMedium,
		"txn_0000006": domain.RiskLevelMedium,
		"txn_0000007": domain.RiskLevelHigh,
		"txn_0000008": domain.RiskLevelHigh,
		"txn_0000009": domain.RiskLevelHigh,
	}
	if len(alerts) != len(want) {
		t.Fatalf("expected %d alerts, got %d", len(want), len(alerts))
	}

	for i, a := range alerts {
		level, ok := want[a.TransactionID]
		if !ok {
			t.Errorf("unexpected alert for %s", a.TransactionID)
			continue
		}
		if a.RiskLevel != level {
			t.Errorf("%s: expected %s, got %s", a.TransactionID, level, a.RiskLevel)
		}
		if a.AlertID != "alert_"+a.TransactionID {
			t.Errorf("unexpected alert id %s", a.AlertID)
		}
		if a.AlertType != domain.AlertTypeAutomatic {
			t.Errorf("unexpected type %s", a.AlertType)
		}
		if a.Description != fmt.Sprintf("Transaction flagged as %s risk fraud", level) {
			t.Errorf("unexpected description %q", a.Description)
		}
		if i > 0 && alerts[i-1].TransactionID >= a.TransactionID {
			t.Error("alerts not in stream order")
		}
	}

	if got := alerts[0].CreatedAt; !got.Equal(txs[3].TransactionTime) {
		t.Errorf("created_at %v should equal transaction time %v", got, txs[3].TransactionTime)
	}
}

func TestDerive_StatusDistribution(t *testing.T) {
	txs := make([]domain.Transaction, 3000)
	for i := range txs {
		txs[i] = domain.Transaction{TransactionID: fmt.Sprintf("txn_%07d", i+1), FraudProbability: 0.9}
	}

	counts := make(map[string]int)
	for _, a := range newDeriver().Derive(txs) {
		counts[a.Status]++
	}

	for _, s := range domain.AlertStatuses {
		if counts[s] < 800 || counts[s] > 1200 {
			t.Errorf("status %s drawn %d times out of 3000", s, counts[s])
		}
	}
	if len(counts) != len(domain.AlertStatuses) {
		t.Errorf("unexpected statuses: %v", counts)
	}
}

func TestDerive_Empty(t *testing.T) {
	alerts := newDeriver().Derive(nil)
	if alerts == nil || len(alerts) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", alerts)
	}
}

func TestCountByLevel(t *testing.T) {
	counts := CountByLevel([]domain.Alert{
		{RiskLevel: domain.RiskLevelHigh},
		{RiskLevel: domain.RiskLevelMedium},
		{RiskLevel: domain.RiskLevelHigh},
	})
	if counts[domain.RiskLevelHigh] != 2 || counts[domain.RiskLevelMedium] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}
