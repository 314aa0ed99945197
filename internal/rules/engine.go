// Package rules provides CEL-Go quality checks over generated datasets.
package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/opensource-finance/fraudgen/internal/domain"
)

// maxSamples bounds the failing results kept in a Report.
const maxSamples = 20

// Check is a named CEL expression that must hold for every transaction.
type Check struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Enabled     bool   `json:"enabled"`
}

// CheckResult is the outcome of one check against one record.
type CheckResult struct {
	CheckID string `json:"checkId"`
	TxID    string `json:"txId,omitempty"`
	Passed  bool   `json:"passed"`
	Reason  string `json:"reason,omitempty"`
}

// Report aggregates check outcomes over a transaction stream.
type Report struct {
	Checked  int            `json:"checked"`
	Failed   int            `json:"failed"`
	Failures map[string]int `json:"failures"`
	Samples  []CheckResult  `json:"samples,omitempty"`
}

// OK reports whether every check passed on every transaction.
func (r *Report) OK() bool { return r.Failed == 0 }

// Engine is the CEL-based transaction check engine.
type Engine struct {
	mu         sync.RWMutex
	env        *cel.Env
	compiled   map[string]*CompiledCheck
	maxWorkers int
}

// CompiledCheck holds a pre-compiled CEL program.
type CompiledCheck struct {
	Check   *Check
	Program cel.Program
}

// NewEngine creates a check engine that evaluates streams with up to
// maxWorkers goroutines.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	env, err := cel.NewEnv(
		cel.Variable("tx", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("currency", cel.StringType),
		cel.Variable("fraud_probability", cel.DoubleType),
		cel.Variable("is_fraud", cel.BoolType),
		cel.Variable("has_gap", cel.BoolType),
		cel.Variable("gap_seconds", cel.DoubleType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("weekday", cel.IntType),
		cel.Variable("location", cel.StringType),
		cel.Variable("location_high_risk", cel.BoolType),
		cel.Variable("category", cel.StringType),
		cel.Variable("device_type", cel.StringType),
		cel.Variable("source_system", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:        env,
		compiled:   make(map[string]*CompiledCheck),
		maxWorkers: maxWorkers,
	}, nil
}

// ValidateCheck compiles a check without loading it.
func (e *Engine) ValidateCheck(c *Check) error {
	if c == nil {
		return fmt.Errorf("check is required")
	}
	_, err := e.compile(c)
	return err
}

// LoadCheck compiles and loads a check.
func (e *Engine) LoadCheck(c *Check) error {
	compiled, err := e.compile(c)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.compiled[c.ID] = compiled
	e.mu.Unlock()
	return nil
}

// LoadChecks compiles and loads every enabled check.
func (e *Engine) LoadChecks(checks []*Check) error {
	for _, c := range checks {
		if !c.Enabled {
			continue
		}
		if err := e.LoadCheck(c); err != nil {
			return err
		}
	}
	return nil
}

// ReloadChecks replaces the loaded checks. On error the old set stays.
func (e *Engine) ReloadChecks(checks []*Check) error {
	next := make(map[string]*CompiledCheck)
	for _, c := range checks {
		if !c.Enabled {
			continue
		}
		compiled, err := e.compile(c)
		if err != nil {
			return err
		}
		next[c.ID] = compiled
	}

	e.mu.Lock()
	e.compiled = next
	e.mu.Unlock()
	return nil
}

// Checks returns the loaded checks sorted by id.
func (e *Engine) Checks() []*Check {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*Check, 0, len(e.compiled))
	for _, c := range e.compiled {
		out = append(out, c.Check)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ChecksCount returns the number of loaded checks.
func (e *Engine) ChecksCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// Evaluate runs every loaded check against one transaction.
func (e *Engine) Evaluate(tx *domain.Transaction) []CheckResult {
	checks := e.snapshot()
	activation := Activation(tx)

	results := make([]CheckResult, 0, len(checks))
	for _, c := range checks {
		results = append(results, evaluate(c, activation, tx.TransactionID))
	}
	return results
}

// Run evaluates every check over txs in parallel chunks and aggregates the
// failures. It stops early when ctx is cancelled.
func (e *Engine) Run(ctx context.Context, txs []domain.Transaction) (*Report, error) {
	checks := e.snapshot()
	report := &Report{Checked: len(txs), Failures: make(map[string]int)}
	if len(checks) == 0 || len(txs) == 0 {
		return report, nil
	}

	chunk := (len(txs) + e.maxWorkers - 1) / e.maxWorkers

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for from := 0; from < len(txs); from += chunk {
		to := min(from+chunk, len(txs))

		wg.Add(1)
		go func(part []domain.Transaction) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			var failed []CheckResult
			for i := range part {
				if ctx.Err() != nil {
					return
				}
				activation := Activation(&part[i])
				for _, c := range checks {
					if r := evaluate(c, activation, part[i].TransactionID); !r.Passed {
						failed = append(failed, r)
					}
				}
			}

			mu.Lock()
			defer mu.Unlock()
			for _, r := range failed {
				report.Failed++
				report.Failures[r.CheckID]++
				if len(report.Samples) < maxSamples {
					report.Samples = append(report.Samples, r)
				}
			}
		}(txs[from:to])
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Slice(report.Samples, func(i, j int) bool {
		return report.Samples[i].TxID < report.Samples[j].TxID
	})
	return report, nil
}

// Activation builds the CEL variables for a transaction.
func Activation(tx *domain.Transaction) map[string]any {
	gap := 0.0
	if tx.SecondsSincePrevTx != nil {
		gap = *tx.SecondsSincePrevTx
	}

	return map[string]any{
		"tx": map[string]any{
			"id":          tx.TransactionID,
			"card_id":     tx.CardID,
			"user_id":     tx.UserID,
			"merchant_id": tx.MerchantID,
			"amount":      tx.Amount,
		},
		"amount":             tx.Amount,
		"currency":           tx.Currency,
		"fraud_probability":  tx.FraudProbability,
		"is_fraud":           tx.IsFraud,
		"has_gap":            tx.SecondsSincePrevTx != nil,
		"gap_seconds":        gap,
		"hour":               int64(tx.TransactionTime.Hour()),
		"weekday":            int64(tx.TransactionTime.Weekday()),
		"location":           string(tx.Location),
		"location_high_risk": tx.Location.IsHighRisk(),
		"category":           string(tx.MerchantCategory),
		"device_type":        tx.DeviceType,
		"source_system":      tx.SourceSystem,
	}
}

// Close drops the loaded checks.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = make(map[string]*CompiledCheck)
	return nil
}

func (e *Engine) snapshot() []*CompiledCheck {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*CompiledCheck, 0, len(e.compiled))
	for _, c := range e.compiled {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Check.ID < out[j].Check.ID })
	return out
}

func (e *Engine) compile(c *Check) (*CompiledCheck, error) {
	program, err := compileBool(e.env, c)
	if err != nil {
		return nil, err
	}
	return &CompiledCheck{Check: c, Program: program}, nil
}

func compileBool(env *cel.Env, c *Check) (cel.Program, error) {
	ast, issues := env.Compile(c.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile check %s: %w", c.ID, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("check %s: expression must return bool, got %s", c.ID, ast.OutputType())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for check %s: %w", c.ID, err)
	}
	return program, nil
}

func evaluate(c *CompiledCheck, activation map[string]any, txID string) CheckResult {
	result := CheckResult{CheckID: c.Check.ID, TxID: txID}

	out, _, err := c.Program.Eval(activation)
	if err != nil {
		result.Reason = fmt.Sprintf("evaluation error: %v", err)
		return result
	}

	result.Passed = toBool(out)
	if !result.Passed {
		result.Reason = c.Check.Name
	}
	return result
}

func toBool(val ref.Val) bool {
	b, ok := val.(types.Bool)
	return ok && bool(b)
}
