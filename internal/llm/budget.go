// Package llm provides the rate-budgeted, JSON-only adapter shared by the
// Dream and Think workers and the committee. All LLM access funnels
// through Budget.Acquire so the process never exceeds a configured calls
// per minute regardless of how many workers want to call out concurrently.
package llm

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Budget throttles LLM calls to a fixed rate, grounded on the teacher's
// Polymarket client limiter (golang.org/x/time/rate.Limiter) but exposed
// as a non-blocking Acquire: a worker that can't get a token this tick
// skips its LLM-backed step rather than blocking the whole cycle.
type Budget struct {
	limiter  *rate.Limiter
	granted  atomic.Int64
	rejected atomic.Int64
}

// NewBudget builds a Budget allowing callsPerMin calls per minute, with a
// burst equal to callsPerMin so a quiet minute's unused capacity can be
// spent in one cluster rather than trickled out.
func NewBudget(callsPerMin int) *Budget {
	if callsPerMin <= 0 {
		callsPerMin = 1
	}
	return &Budget{
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(callsPerMin)), callsPerMin),
	}
}

// Acquire reports whether a call may proceed right now, consuming one
// token if so. It never blocks.
func (b *Budget) Acquire() bool {
	ok := b.limiter.Allow()
	if ok {
		b.granted.Add(1)
	} else {
		b.rejected.Add(1)
	}
	return ok
}

// Stats is a point-in-time snapshot of budget usage.
type Stats struct {
	Granted  int64
	Rejected int64
}

// Stats returns cumulative grant/reject counts since process start.
func (b *Budget) Stats() Stats {
	return Stats{Granted: b.granted.Load(), Rejected: b.rejected.Load()}
}
