package fetch

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marketkg/sentinel/internal/domain"
)

type stubProvider struct {
	fail map[string]bool
}

func (p *stubProvider) Fetch(ctx context.Context, symbol string) (domain.PriceBar, error) {
	if p.fail[symbol] {
		return domain.PriceBar{}, fmt.Errorf("stub: %s unavailable", symbol)
	}
	return domain.PriceBar{Symbol: symbol, Current: 100}, nil
}

func TestPoolFetchManyDropsFailures(t *testing.T) {
	p := NewPool(&stubProvider{fail: map[string]bool{"BAD": true}}, 4)
	out := p.FetchMany(context.Background(), []string{"AAPL", "BAD", "MSFT"})

	assert.Len(t, out, 2)
	assert.Contains(t, out, "AAPL")
	assert.Contains(t, out, "MSFT")
	assert.NotContains(t, out, "BAD")
}

func TestFetchWithFallbackRecoversMissingSymbols(t *testing.T) {
	stub := &stubProviderOnceFlaky{flaky: "AAPL"}
	p := NewPool(stub, 2)

	out := FetchWithFallback(context.Background(), p, []string{"AAPL", "MSFT"}, 0)
	assert.Contains(t, out, "MSFT")
	assert.Contains(t, out, "AAPL", "fallback retry should have recovered the flaky symbol")
	assert.GreaterOrEqual(t, stub.callsFor("AAPL"), 2)
}

type stubProviderOnceFlaky struct {
	flaky string
	mu    sync.Mutex
	calls map[string]int
}

func (p *stubProviderOnceFlaky) Fetch(ctx context.Context, symbol string) (domain.PriceBar, error) {
	p.mu.Lock()
	if p.calls == nil {
		p.calls = make(map[string]int)
	}
	p.calls[symbol]++
	attempt := p.calls[symbol]
	p.mu.Unlock()

	if symbol == p.flaky && attempt <= 1 {
		return domain.PriceBar{}, fmt.Errorf("transient")
	}
	return domain.PriceBar{Symbol: symbol, Current: 100}, nil
}

func (p *stubProviderOnceFlaky) callsFor(symbol string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[symbol]
}
