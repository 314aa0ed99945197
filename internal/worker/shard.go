package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/opensource-finance/fraudgen/internal/domain"
	"github.com/opensource-finance/fraudgen/internal/entity"
	"github.com/opensource-finance/fraudgen/internal/risk"
	"github.com/opensource-finance/fraudgen/internal/synth"
)

// SynthStream is the PCG stream id the synthesizer draws from. Shard i uses
// SynthStream+i, so a single shard reproduces a sequential run.
const SynthStream = 0x73796e7468

// ShardPool generates transactions in parallel. Users are split into
// contiguous shards; each shard runs its own synthesizer, so a card's
// last-seen state lives in exactly one goroutine. All shards share one
// budget, keeping the attempt cap global.
//
// Output is only reproducible with a single worker: with more, the interleaving
// of budget claims decides which shard gets the last slots.
type ShardPool struct {
	table   risk.Table
	seed    int64
	workers int
}

// NewShardPool creates a pool with the given worker count (minimum 1).
func NewShardPool(table risk.Table, seed int64, workers int) *ShardPool {
	if workers < 1 {
		workers = 1
	}
	return &ShardPool{table: table, seed: seed, workers: workers}
}

// Workers returns the configured worker count.
func (p *ShardPool) Workers() int { return p.workers }

type shardResult struct {
	index int
	res   *synth.Result
	err   error
}

// Generate runs params across the shards and merges their streams in shard
// order, renumbering transaction ids.
func (p *ShardPool) Generate(ctx context.Context, pool *entity.Pool, params synth.Params) (*synth.Result, error) {
	if pool == nil {
		return nil, synth.ErrNoPool
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if params.AttemptMultiplier == 0 {
		params.AttemptMultiplier = synth.DefaultAttemptMultiplier
	}

	workers := p.workers
	if workers > pool.UserCount() {
		workers = pool.UserCount()
	}

	if workers == 1 {
		s := synth.New(p.table, p.rng(0))
		return s.Generate(pool, params)
	}

	shards, err := p.split(pool, workers)
	if err != nil {
		return nil, err
	}

	budget := synth.NewBudget(params.Target, params.AttemptMultiplier)
	// Chronological gaps are per card, so applying them per shard is exact.
	start := time.Now()

	results := make([]shardResult, len(shards))
	var wg sync.WaitGroup
	for i, shard := range shards {
		wg.Add(1)
		go func(i int, shard *entity.Pool) {
			defer wg.Done()
			if ctx.Err() != nil {
				results[i] = shardResult{index: i, err: ctx.Err()}
				return
			}
			s := synth.New(p.table, p.rng(i))
			res, err := s.GenerateWithBudget(shard, params, budget)
			results[i] = shardResult{index: i, res: res, err: err}
		}(i, shard)
	}
	wg.Wait()

	merged := &synth.Result{
		Requested:    params.Target,
		Transactions: make([]domain.Transaction, 0, budget.Accepted()),
	}
	for _, r := range results {
		if r.err != nil {
			return nil, fmt.Errorf("shard %d: %w", r.index, r.err)
		}
		merged.Transactions = append(merged.Transactions, r.res.Transactions...)
		merged.Attempts += r.res.Attempts
		merged.Discarded += r.res.Discarded
	}
	for i := range merged.Transactions {
		merged.Transactions[i].TransactionID = synth.TransactionID(i + 1)
	}
	merged.Accepted = len(merged.Transactions)

	slog.Debug("sharded generation finished",
		"shards", len(shards),
		"accepted", merged.Accepted,
		"attempts", merged.Attempts,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return merged, nil
}

// split cuts the pool into contiguous user ranges, dropping shards with no
// active card.
func (p *ShardPool) split(pool *entity.Pool, n int) ([]*entity.Pool, error) {
	total := pool.UserCount()
	size := (total + n - 1) / n

	var shards []*entity.Pool
	for from := 0; from < total; from += size {
		to := min(from+size, total)
		shard, err := pool.Subset(from, to)
		if errors.Is(err, domain.ErrNoActiveCards) {
			continue
		}
		if err != nil {
			return nil, err
		}
		shards = append(shards, shard)
	}
	if len(shards) == 0 {
		return nil, domain.ErrNoActiveCards
	}
	return shards, nil
}

func (p *ShardPool) rng(shard int) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(p.seed), SynthStream+uint64(shard)))
}
