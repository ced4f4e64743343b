package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketkg/sentinel/internal/domain"
	"github.com/marketkg/sentinel/internal/executor/paper"
)

func defaultRails() GuardRails {
	return GuardRails{
		MaxBuyEquityPctPerCycle:   10,
		MaxSellHoldingPctPerCycle: 50,
		MaxSymbolWeightPct:        14,
		MinCashBufferPct:          5,
		MinTradeNotional:          25,
	}
}

func TestExecuteSellsBeforeBuysWithinSameCycle(t *testing.T) {
	broker := paper.New()
	e := New(broker, defaultRails())

	state := PortfolioState{
		Equity: 10000,
		Cash:   100, // too little cash to buy without the sell freeing more
		Positions: map[string]domain.Position{
			"MSFT": {Symbol: "MSFT", Qty: 10, AvgCost: 100, LastPrice: 100},
		},
		Prices: map[string]float64{"AAPL": 150, "MSFT": 100},
	}
	decisions := []domain.Decision{
		{Ticker: "AAPL", Action: domain.SideBuy, AllocationPct: 10},
		{Ticker: "MSFT", Action: domain.SideSell, AllocationPct: 100},
	}

	results := e.Execute(context.Background(), "insight-1", 1000, decisions, state)
	require.Len(t, results, 2)
	assert.Equal(t, "MSFT", results[0].Decision.Ticker, "sell must execute before buy")
	assert.Equal(t, "AAPL", results[1].Decision.Ticker)
	require.NotNil(t, results[0].Trade)
	require.NotNil(t, results[1].Trade)
}

func TestExecuteCapsTotalBuySpendAcrossMultipleDecisions(t *testing.T) {
	broker := paper.New()
	rails := defaultRails() // MaxBuyEquityPctPerCycle: 10 -> buy_budget = 1000 on $10,000 equity
	e := New(broker, rails)

	state := PortfolioState{
		Equity:    10000,
		Cash:      10000,
		Positions: map[string]domain.Position{},
		Prices:    map[string]float64{"AAPL": 100, "MSFT": 100, "NVDA": 100},
	}
	decisions := []domain.Decision{
		{Ticker: "AAPL", Action: domain.SideBuy, AllocationPct: 10}, // wants $1000
		{Ticker: "MSFT", Action: domain.SideBuy, AllocationPct: 10}, // wants another $1000
		{Ticker: "NVDA", Action: domain.SideBuy, AllocationPct: 10}, // wants another $1000
	}

	results := e.Execute(context.Background(), "insight-5", 1000, decisions, state)
	require.Len(t, results, 3)

	var spent float64
	for _, r := range results {
		if r.Trade != nil {
			spent += r.Trade.Notional
		}
	}
	assert.LessOrEqual(t, spent, rails.MaxBuyEquityPctPerCycle/100*state.Equity+1e-6,
		"total BUY spend across the whole cycle must not exceed MaxBuyEquityPctPerCycle of equity")
	require.NotNil(t, results[0].Trade, "first BUY should still fit within the budget")
	assert.True(t, results[2].Skipped, "budget should be exhausted before the third BUY")
}

func TestExecuteCapsBuyBySymbolWeight(t *testing.T) {
	broker := paper.New()
	rails := defaultRails()
	e := New(broker, rails)

	state := PortfolioState{
		Equity: 10000,
		Cash:   10000,
		Positions: map[string]domain.Position{
			"AAPL": {Symbol: "AAPL", Qty: 9, AvgCost: 150, LastPrice: 150}, // 1350/10000 = 13.5% weight
		},
		Prices: map[string]float64{"AAPL": 150},
	}
	decisions := []domain.Decision{
		{Ticker: "AAPL", Action: domain.SideBuy, AllocationPct: 10}, // would push weight far past cap
	}

	results := e.Execute(context.Background(), "insight-2", 1000, decisions, state)
	require.Len(t, results, 1)
	if results[0].Trade != nil {
		notional := results[0].Trade.Notional
		assert.LessOrEqual(t, notional, rails.MaxSymbolWeightPct/100*state.Equity-1350+1e-6)
	}
}

func TestExecuteSkipsBelowMinNotional(t *testing.T) {
	broker := paper.New()
	e := New(broker, defaultRails())

	state := PortfolioState{
		Equity:    10000,
		Cash:      10000,
		Positions: map[string]domain.Position{},
		Prices:    map[string]float64{"AAPL": 150},
	}
	decisions := []domain.Decision{{Ticker: "AAPL", Action: domain.SideBuy, AllocationPct: 0.01}}

	results := e.Execute(context.Background(), "insight-3", 1000, decisions, state)
	require.Len(t, results, 1)
	assert.True(t, results[0].Skipped)
	assert.Nil(t, results[0].Trade)
}

func TestExecuteSkipsSellWithNoPosition(t *testing.T) {
	broker := paper.New()
	e := New(broker, defaultRails())

	state := PortfolioState{Equity: 10000, Cash: 10000, Positions: map[string]domain.Position{}, Prices: map[string]float64{"AAPL": 150}}
	decisions := []domain.Decision{{Ticker: "AAPL", Action: domain.SideSell, AllocationPct: 100}}

	results := e.Execute(context.Background(), "insight-4", 1000, decisions, state)
	require.Len(t, results, 1)
	assert.True(t, results[0].Skipped)
	assert.Equal(t, "no position to sell", results[0].Reason)
}

func TestClientOrderIDDeterministic(t *testing.T) {
	id1 := ClientOrderID("insight-1", "AAPL", "BUY", 1000)
	id2 := ClientOrderID("insight-1", "AAPL", "BUY", 1000)
	id3 := ClientOrderID("insight-1", "AAPL", "SELL", 1000)
	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, id3)
}

func TestPaperBrokerIdempotentOnRepeatedClientOrderID(t *testing.T) {
	broker := paper.New()
	order := OrderRequest{ClientOrderID: "abc", Symbol: "AAPL", Side: domain.SideBuy, Qty: 10, Price: 100}

	f1, err := broker.PlaceOrder(context.Background(), order)
	require.NoError(t, err)
	f2, err := broker.PlaceOrder(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, f1, f2)
}
