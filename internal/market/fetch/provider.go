// Package fetch provides the market-data provider abstraction (Yahoo-style
// chart endpoint or Alpaca bars) and a bounded-concurrency pool that
// fetches many symbols at once, silently dropping any symbol whose fetch
// fails rather than failing the whole cycle.
package fetch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marketkg/sentinel/internal/domain"
)

// PriceProvider fetches one symbol's recent close-price history.
type PriceProvider interface {
	Fetch(ctx context.Context, symbol string) (domain.PriceBar, error)
}

// Pool fans a batch of symbol fetches out across a PriceProvider with
// bounded concurrency, grounded on the teacher's errgroup-based
// fan-out for its own parallel scanning passes.
type Pool struct {
	Provider    PriceProvider
	Concurrency int
}

// NewPool builds a Pool. concurrency is clamped to at least 1.
func NewPool(p PriceProvider, concurrency int) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{Provider: p, Concurrency: concurrency}
}

// FetchMany fetches every symbol concurrently (bounded by Concurrency) and
// returns only the bars that succeeded; a failed symbol is silently
// dropped from the result rather than failing the whole call, since one
// bad ticker should never stall a whole Market tick.
func (p *Pool) FetchMany(ctx context.Context, symbols []string) map[string]domain.PriceBar {
	results := make(map[string]domain.PriceBar, len(symbols))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Concurrency)

	for _, sym := range symbols {
		sym := sym
		g.Go(func() error {
			bar, err := p.Provider.Fetch(ctx, sym)
			if err != nil {
				return nil // dropped, not propagated
			}
			mu.Lock()
			results[sym] = bar
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// FetchWithFallback tries the primary pool first; for any symbol still
// missing from the result (including the case where ctx is near its
// deadline), it retries once more through the same pool before giving up
// on that symbol for this cycle.
func FetchWithFallback(ctx context.Context, pool *Pool, symbols []string, retryDelay time.Duration) map[string]domain.PriceBar {
	first := pool.FetchMany(ctx, symbols)
	var missing []string
	for _, sym := range symbols {
		if _, ok := first[sym]; !ok {
			missing = append(missing, sym)
		}
	}
	if len(missing) == 0 {
		return first
	}

	select {
	case <-time.After(retryDelay):
	case <-ctx.Done():
		return first
	}

	retry := pool.FetchMany(ctx, missing)
	for sym, bar := range retry {
		first[sym] = bar
	}
	return first
}
