package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketkg/sentinel/config"
	"github.com/marketkg/sentinel/internal/clock"
	"github.com/marketkg/sentinel/internal/committee"
	"github.com/marketkg/sentinel/internal/domain"
	"github.com/marketkg/sentinel/internal/executor"
	"github.com/marketkg/sentinel/internal/executor/paper"
	"github.com/marketkg/sentinel/internal/llm"
)

type erroringProvider struct{}

func (erroringProvider) Complete(ctx context.Context, system, user string) (string, error) {
	return "", errors.New("no LLM in this test")
}

func newThinkTestFixture(t *testing.T) (*config.Config, *committee.Committee, committee.Critic, *executor.Executor) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Universe.Investibles = []string{"AAPL", "MSFT", "NVDA"}
	cfg.Committee.StarThreshold = 0 // every insight stars, so the trading-window gate is what's under test
	cfg.Committee.ExplanationMinLength = 1
	cfg.Workers.AutoTrade = true

	adapter := llm.NewAdapter(erroringProvider{}, llm.NewBudget(60), 0)
	cmt := committee.New(adapter, cfg.Committee.ExplanationMinLength)
	crit := committee.Critic{}
	exec := executor.New(paper.New(), executor.GuardRails{
		MaxBuyEquityPctPerCycle: 50, MaxSellHoldingPctPerCycle: 50,
		MaxSymbolWeightPct: 50, MinCashBufferPct: 0, MinTradeNotional: 1,
	})
	return cfg, cmt, crit, exec
}

func seedSnapshot(t *testing.T, s interface {
	InsertSnapshot(ctx context.Context, snap domain.Snapshot) (int64, error)
}, at time.Time, symbols []string) {
	t.Helper()
	indicators := make(map[string]domain.Indicators, len(symbols))
	prices := make(map[string]domain.PriceBar, len(symbols))
	for _, sym := range symbols {
		indicators[sym] = domain.Indicators{Mom20: 0.1}
		prices[sym] = domain.PriceBar{Symbol: sym, Current: 100}
	}
	pricesJSON, err := json.Marshal(prices)
	require.NoError(t, err)
	indicatorsJSON, err := json.Marshal(indicators)
	require.NoError(t, err)
	signalsJSON, err := json.Marshal(domain.Signals{})
	require.NoError(t, err)
	_, err = s.InsertSnapshot(context.Background(), domain.Snapshot{
		Ts: at, PricesJSON: string(pricesJSON), BellsJSON: "{}",
		IndicatorsJSON: string(indicatorsJSON), SignalsJSON: string(signalsJSON),
	})
	require.NoError(t, err)
}

// TestThinkStepExecutesWhenTradingWindowAllows covers spec §4.5.3 step 6:
// trade_anytime=true means a starred insight executes regardless of the
// wall-clock trading window.
func TestThinkStepExecutesWhenTradingWindowAllows(t *testing.T) {
	s := newTestStoreForWorker(t)
	cfg, cmt, crit, exec := newThinkTestFixture(t)
	cfg.Trading.TradeAnytime = true

	weekday := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC) // Monday, mid-session
	seedSnapshot(t, s, weekday, cfg.Universe.Investibles)

	err := thinkStep(context.Background(), cfg, s, cmt, crit, exec, clock.Fake{At: weekday}, testLogger())
	require.NoError(t, err)

	insights, err := s.RecentInsights(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, domain.InsightApplied, insights[0].Status)
}

// TestThinkStepQueuesWhenTradingWindowClosed covers the other half of step
// 6: with trade_anytime=false and the market closed, a starred insight is
// queued instead of executed.
func TestThinkStepQueuesWhenTradingWindowClosed(t *testing.T) {
	s := newTestStoreForWorker(t)
	cfg, cmt, crit, exec := newThinkTestFixture(t)
	cfg.Trading.TradeAnytime = false

	weekend := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) // Saturday: market closed
	seedSnapshot(t, s, weekend, cfg.Universe.Investibles)

	err := thinkStep(context.Background(), cfg, s, cmt, crit, exec, clock.Fake{At: weekend}, testLogger())
	require.NoError(t, err)

	insights, err := s.RecentInsights(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, domain.InsightQueued, insights[0].Status)
}

// TestThinkStepExecutesWhenMarketOpenWithoutTradeAnytime covers the
// execute-path half of step 6: trade_anytime=false but the market is
// currently open, so the starred insight executes immediately.
func TestThinkStepExecutesWhenMarketOpenWithoutTradeAnytime(t *testing.T) {
	s := newTestStoreForWorker(t)
	cfg, cmt, crit, exec := newThinkTestFixture(t)
	cfg.Trading.TradeAnytime = false

	weekday := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC) // Monday, mid-session: market is open
	seedSnapshot(t, s, weekday, cfg.Universe.Investibles)

	err := thinkStep(context.Background(), cfg, s, cmt, crit, exec, clock.Fake{At: weekday}, testLogger())
	require.NoError(t, err)

	insights, err := s.RecentInsights(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, domain.InsightApplied, insights[0].Status)
}
