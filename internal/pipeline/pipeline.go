// Package pipeline runs one end-to-end generation: entity pools, the
// transaction stream, alerts and points.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/fraudgen/internal/alerts"
	"github.com/opensource-finance/fraudgen/internal/domain"
	"github.com/opensource-finance/fraudgen/internal/entity"
	"github.com/opensource-finance/fraudgen/internal/metrics"
	"github.com/opensource-finance/fraudgen/internal/rewards"
	"github.com/opensource-finance/fraudgen/internal/risk"
	"github.com/opensource-finance/fraudgen/internal/rules"
	"github.com/opensource-finance/fraudgen/internal/synth"
	"github.com/opensource-finance/fraudgen/internal/worker"
)

// AlertStream is the PCG stream id alert statuses are drawn from.
const AlertStream = 0x616c657274

// Pipeline generates datasets. A zero Pipeline is not usable; call New.
type Pipeline struct {
	metrics *metrics.Metrics
	now     func() time.Time
	newID   func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetrics records every run on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithClock replaces time.Now, which anchors entity dates and the default
// window.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithRunID fixes the run id instead of generating a UUID.
func WithRunID(id string) Option {
	return func(p *Pipeline) { p.newID = func() string { return id } }
}

// New creates a pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run generates a dataset with a default pipeline.
func Run(ctx context.Context, cfg domain.GenerationConfig) (*domain.Dataset, error) {
	return New().Run(ctx, cfg)
}

// Run generates one dataset. Falling short of the requested transaction
// count is not an error; it is reported in the summary.
func (p *Pipeline) Run(ctx context.Context, cfg domain.GenerationConfig) (*domain.Dataset, error) {
	start := time.Now()
	ds, err := p.run(ctx, cfg)
	if err != nil {
		if p.metrics != nil {
			p.metrics.ObserveFailedRun()
		}
		return nil, err
	}
	if p.metrics != nil {
		p.metrics.ObserveRun(ds, time.Since(start))
	}

	slog.Info("dataset generated",
		"run_id", ds.RunID,
		"seed", ds.Seed,
		"users", ds.Summary.Users,
		"cards", ds.Summary.Cards,
		"merchants", ds.Summary.Merchants,
		"accepted", ds.Summary.Accepted,
		"requested", ds.Summary.Requested,
		"fraud", ds.Summary.FraudCount,
		"alerts", ds.Summary.AlertCount,
		"high_alerts", ds.Summary.HighAlerts,
		"medium_alerts", ds.Summary.MediumAlerts,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return ds, nil
}

func (p *Pipeline) run(ctx context.Context, cfg domain.GenerationConfig) (*domain.Dataset, error) {
	now := p.now().UTC().Truncate(time.Second)

	window, err := ParseWindow(cfg.Start, cfg.End, now)
	if err != nil {
		return nil, err
	}

	table := risk.Default()
	if cfg.RiskTablePath != "" {
		table, err = risk.Load(cfg.RiskTablePath)
		if err != nil {
			return nil, err
		}
	}

	gen := entity.NewGenerator(cfg.Seed, now)
	users := gen.Users(cfg.Users)
	cards := gen.Cards(users)
	merchants := gen.Merchants(cfg.Merchants)

	pool, err := entity.NewPool(users, cards, merchants)
	if err != nil {
		return nil, err
	}

	params := synth.Params{
		Target:            cfg.Transactions,
		Window:            window,
		AttemptMultiplier: cfg.AttemptMultiplier,
		Chronological:     cfg.Chronological,
	}
	res, err := worker.NewShardPool(table, cfg.Seed, cfg.Workers).Generate(ctx, pool, params)
	if err != nil {
		return nil, err
	}
	if res.Short() {
		slog.Warn("attempt budget exhausted before target",
			"accepted", res.Accepted,
			"requested", res.Requested,
			"attempts", res.Attempts,
		)
	}

	deriver := alerts.NewDeriver(rand.New(rand.NewPCG(uint64(cfg.Seed), AlertStream)))
	ds := &domain.Dataset{
		RunID:        p.newID(),
		Seed:         cfg.Seed,
		CreatedAt:    now,
		Users:        users,
		Cards:        cards,
		Merchants:    merchants,
		Transactions: res.Transactions,
		Alerts:       deriver.Derive(res.Transactions),
		Points:       rewards.Aggregate(users, res.Transactions, rewards.Options{Backfill: cfg.BackfillPoints}),
	}
	ds.Summary = domain.Summary{
		Users:       len(users),
		Cards:       len(cards),
		Merchants:   len(merchants),
		Requested:   res.Requested,
		Accepted:    res.Accepted,
		Attempts:    res.Attempts,
		Discarded:   res.Discarded,
		FraudCount:  res.FraudCount(),
		AlertCount:  len(ds.Alerts),
		PointsCount: len(ds.Points),
		Short:       res.Short(),
	}
	levels := alerts.CountByLevel(ds.Alerts)
	ds.Summary.HighAlerts = levels[domain.RiskLevelHigh]
	ds.Summary.MediumAlerts = levels[domain.RiskLevelMedium]

	if cfg.Checks {
		if err := p.check(ctx, ds, cfg.Workers); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// check runs the built-in transaction and summary checks and records the
// failures on ds.Summary.
func (p *Pipeline) check(ctx context.Context, ds *domain.Dataset, workers int) error {
	engine, err := rules.NewEngine(max(workers, 4))
	if err != nil {
		return err
	}
	defer engine.Close()
	if err := engine.LoadChecks(rules.BuiltinChecks()); err != nil {
		return err
	}

	report, err := engine.Run(ctx, ds.Transactions)
	if err != nil {
		return fmt.Errorf("quality checks: %w", err)
	}
	ds.Summary.ChecksFailed = report.Failed

	summaryEngine, err := rules.NewSummaryEngine()
	if err != nil {
		return err
	}
	if err := summaryEngine.LoadChecks(rules.BuiltinSummaryChecks()); err != nil {
		return err
	}
	for _, r := range rules.Failed(summaryEngine.Evaluate(ds.Summary)) {
		report.Failures[r.CheckID]++
		ds.Summary.ChecksFailed++
		slog.Warn("summary check failed", "run_id", ds.RunID, "check_id", r.CheckID, "reason", r.Reason)
	}

	for _, s := range report.Samples {
		slog.Warn("transaction check failed", "run_id", ds.RunID, "check_id", s.CheckID, "tx_id", s.TxID)
	}
	if p.metrics != nil {
		p.metrics.ObserveCheckFailures(report.Failures)
	}
	return nil
}

// ParseWindow parses start and end as RFC3339 timestamps or YYYY-MM-DD
// dates. An empty start defaults to 90 days before end; an empty end
// defaults to now.
func ParseWindow(start, end string, now time.Time) (domain.Window, error) {
	w := domain.DefaultWindow(now)

	if end != "" {
		t, err := parseTime(end)
		if err != nil {
			return w, fmt.Errorf("%w: invalid end %q: %v", synth.ErrInvalidParams, end, err)
		}
		w.End = t
		w.Start = domain.DefaultWindow(t).Start
	}
	if start != "" {
		t, err := parseTime(start)
		if err != nil {
			return w, fmt.Errorf("%w: invalid start %q: %v", synth.ErrInvalidParams, start, err)
		}
		w.Start = t
	}

	if w.End.Before(w.Start) {
		return w, fmt.Errorf("%w: window end %s before start %s", synth.ErrInvalidParams,
			w.End.Format(time.RFC3339), w.Start.Format(time.RFC3339))
	}
	return w, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, s)
}
