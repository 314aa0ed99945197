package rules

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/opensource-finance/fraudgen/internal/domain"
)

// SummaryEngine evaluates dataset-level checks against a run summary.
type SummaryEngine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]*CompiledCheck
}

// NewSummaryEngine creates a summary check engine.
func NewSummaryEngine() (*SummaryEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("users", cel.IntType),
		cel.Variable("cards", cel.IntType),
		cel.Variable("merchants", cel.IntType),
		cel.Variable("requested", cel.IntType),
		cel.Variable("accepted", cel.IntType),
		cel.Variable("attempts", cel.IntType),
		cel.Variable("discarded", cel.IntType),
		cel.Variable("fraud_count", cel.IntType),
		cel.Variable("alert_count", cel.IntType),
		cel.Variable("points_count", cel.IntType),
		cel.Variable("fraud_rate", cel.DoubleType),
		cel.Variable("short", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &SummaryEngine{env: env, compiled: make(map[string]*CompiledCheck)}, nil
}

// LoadChecks compiles and loads every enabled summary check, replacing
// the current set.
func (e *SummaryEngine) LoadChecks(checks []*Check) error {
	next := make(map[string]*CompiledCheck)
	for _, c := range checks {
		if !c.Enabled {
			continue
		}
		program, err := compileBool(e.env, c)
		if err != nil {
			return err
		}
		next[c.ID] = &CompiledCheck{Check: c, Program: program}
	}

	e.mu.Lock()
	e.compiled = next
	e.mu.Unlock()
	return nil
}

// ChecksCount returns the number of loaded checks.
func (e *SummaryEngine) ChecksCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// Evaluate runs every loaded check against s, sorted by check id.
func (e *SummaryEngine) Evaluate(s domain.Summary) []CheckResult {
	e.mu.RLock()
	checks := make([]*CompiledCheck, 0, len(e.compiled))
	for _, c := range e.compiled {
		checks = append(checks, c)
	}
	e.mu.RUnlock()

	sort.Slice(checks, func(i, j int) bool { return checks[i].Check.ID < checks[j].Check.ID })

	activation := SummaryActivation(s)
	results := make([]CheckResult, 0, len(checks))
	for _, c := range checks {
		results = append(results, evaluate(c, activation, ""))
	}
	return results
}

// Failed returns only the failing results.
func Failed(results []CheckResult) []CheckResult {
	out := make([]CheckResult, 0)
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// SummaryActivation builds the CEL variables for a summary.
func SummaryActivation(s domain.Summary) map[string]any {
	rate := 0.0
	if s.Accepted > 0 {
		rate = float64(s.FraudCount) / float64(s.Accepted)
	}
	return map[string]any{
		"users":        int64(s.Users),
		"cards":        int64(s.Cards),
		"merchants":    int64(s.Merchants),
		"requested":    int64(s.Requested),
		"accepted":     int64(s.Accepted),
		"attempts":     int64(s.Attempts),
		"discarded":    int64(s.Discarded),
		"fraud_count":  int64(s.FraudCount),
		"alert_count":  int64(s.AlertCount),
		"points_count": int64(s.PointsCount),
		"fraud_rate":   rate,
		"short":        s.Short,
	}
}

// BuiltinSummaryChecks returns the invariants every run summary holds.
func BuiltinSummaryChecks() []*Check {
	return []*Check{
		{ID: "accepted-within-target", Name: "Accepted never exceeds requested", Expression: "accepted <= requested", Enabled: true},
		{ID: "attempts-accounted", Name: "Every attempt accepted or discarded", Expression: "accepted + discarded == attempts", Enabled: true},
		{ID: "short-flag", Name: "Short flag matches counts", Expression: "short == (accepted < requested)", Enabled: true},
		{ID: "alerts-within-stream", Name: "Alerts never exceed transactions", Expression: "alert_count <= accepted", Enabled: true},
		{ID: "points-within-users", Name: "At most one points record per user", Expression: "points_count <= users", Enabled: true},
	}
}
