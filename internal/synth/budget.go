package synth

import "sync/atomic"

// Budget bounds a generation run: at most Target accepted transactions and
// at most Cap attempts. It is safe for concurrent use, so shards generating
// in parallel can share one budget and keep the cap global.
type Budget struct {
	target   int64
	cap      int64
	accepted atomic.Int64
	attempts atomic.Int64
}

// NewBudget returns a budget for target transactions with an attempt cap of
// multiplier × target.
func NewBudget(target, multiplier int) *Budget {
	if multiplier < 1 {
		multiplier = 1
	}
	return &Budget{target: int64(target), cap: int64(target) * int64(multiplier)}
}

// Attempt reserves one attempt. It returns false once the target has been
// reached or the cap is spent.
func (b *Budget) Attempt() bool {
	if b.accepted.Load() >= b.target {
		return false
	}
	if b.attempts.Add(1) > b.cap {
		b.attempts.Add(-1)
		return false
	}
	return true
}

// Accept claims an accepted slot. Under concurrency two shards can race for
// the last slot; the loser gets false and must drop its candidate.
func (b *Budget) Accept() bool {
	if b.accepted.Add(1) > b.target {
		b.accepted.Add(-1)
		return false
	}
	return true
}

// Target returns the requested transaction count.
func (b *Budget) Target() int { return int(b.target) }

// Cap returns the attempt cap.
func (b *Budget) Cap() int { return int(b.cap) }

// Accepted returns the transactions accepted so far.
func (b *Budget) Accepted() int { return int(b.accepted.Load()) }

// Attempts returns the attempts made so far.
func (b *Budget) Attempts() int { return int(b.attempts.Load()) }
