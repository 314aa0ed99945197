// Package worker runs the parallel transaction generator and the stream
// consumer that turns published transactions into cached feature signals.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/fraudgen/internal/domain"
	"github.com/opensource-finance/fraudgen/internal/rules"
	"github.com/opensource-finance/fraudgen/internal/velocity"
)

// Worker consumes generated transactions from the EventBus. For every
// transaction it folds the amount into the user's cached Signals, bumps the
// card velocity counter and, when an engine is set, runs the quality checks.
type Worker struct {
	bus      domain.EventBus
	cache    domain.Cache
	engine   *rules.Engine
	velocity *velocity.Service

	signalsTTL time.Duration
	window     time.Duration

	// mu serializes read-modify-write of cached signals.
	mu sync.Mutex

	subsMu        sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc

	processed    atomic.Int64
	failedChecks atomic.Int64
	errors       atomic.Int64
}

// Config holds worker configuration.
type Config struct {
	// RunIDs are the runs to follow.
	RunIDs []string

	// SignalsTTL is how long updated signals live in the cache.
	SignalsTTL time.Duration

	// VelocityWindow is the card velocity counter window.
	VelocityWindow time.Duration
}

// NewWorker creates a new consumer. engine may be nil.
func NewWorker(bus domain.EventBus, cache domain.Cache, engine *rules.Engine) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		cache:    cache,
		engine:   engine,
		velocity: velocity.NewService(nil, cache),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to the generated-transaction topic of every run in cfg.
func (w *Worker) Start(cfg Config) error {
	w.signalsTTL = cfg.SignalsTTL
	if w.signalsTTL <= 0 {
		w.signalsTTL = 24 * time.Hour
	}
	w.window = cfg.VelocityWindow
	if w.window <= 0 {
		w.window = velocity.DefaultWindow
	}

	for _, runID := range cfg.RunIDs {
		if err := w.Follow(runID); err != nil {
			slog.Error("failed to start worker for run",
				"run_id", runID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"run_count", len(cfg.RunIDs),
	)
	return nil
}

// Follow subscribes to one more run.
func (w *Worker) Follow(runID string) error {
	sub, err := w.bus.Subscribe(w.ctx, runID, domain.TopicTransactionGenerated, func(ctx context.Context, msg *domain.Message) error {
		return w.processTransaction(ctx, runID, msg)
	})
	if err != nil {
		return err
	}

	w.subsMu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.subsMu.Unlock()

	slog.Debug("run worker started",
		"run_id", runID,
		"topic", domain.TopicTransactionGenerated,
	)
	return nil
}

// processTransaction folds one published transaction into the cache.
func (w *Worker) processTransaction(ctx context.Context, runID string, msg *domain.Message) error {
	var tx domain.Transaction
	if err := json.Unmarshal(msg.Payload, &tx); err != nil {
		w.errors.Add(1)
		slog.Error("failed to parse transaction message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if w.engine != nil {
		for _, r := range w.engine.Evaluate(&tx) {
			if r.Passed {
				continue
			}
			w.failedChecks.Add(1)
			slog.Warn("transaction failed check",
				"run_id", runID,
				"tx_id", tx.TransactionID,
				"check_id", r.CheckID,
				"reason", r.Reason,
			)
		}
	}

	if err := w.observe(ctx, runID, &tx); err != nil {
		w.errors.Add(1)
		slog.Error("failed to update signals",
			"run_id", runID,
			"tx_id", tx.TransactionID,
			"error", err,
		)
		return err
	}

	count, err := w.velocity.Track(ctx, runID, &tx, w.window)
	if err != nil {
		w.errors.Add(1)
		return err
	}

	w.processed.Add(1)
	slog.Debug("transaction processed",
		"run_id", runID,
		"tx_id", tx.TransactionID,
		"card_velocity", count,
	)
	return nil
}

func (w *Worker) observe(ctx context.Context, runID string, tx *domain.Transaction) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	sig, err := w.cache.GetSignals(ctx, runID, tx.UserID)
	if err != nil {
		return err
	}
	if sig == nil {
		sig = &domain.Signals{}
	}
	sig.Observe(tx)
	return w.cache.SetSignals(ctx, runID, tx.UserID, sig, w.signalsTTL)
}

// Stop gracefully stops all subscriptions.
func (w *Worker) Stop() error {
	w.cancel()

	w.subsMu.Lock()
	subs := w.subscriptions
	w.subscriptions = nil
	w.subsMu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}

	slog.Info("workers stopped",
		"processed", w.processed.Load(),
		"failed_checks", w.failedChecks.Load(),
	)
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	FailedChecks      int64    `json:"failedChecks"`
	Errors            int64    `json:"errors"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.subsMu.Lock()
	defer w.subsMu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		FailedChecks:      w.failedChecks.Load(),
		Errors:            w.errors.Load(),
	}
}
