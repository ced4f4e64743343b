package worker

import (
	"context"
	"encoding/json"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketkg/sentinel/config"
	"github.com/marketkg/sentinel/internal/clock"
	"github.com/marketkg/sentinel/internal/domain"
	"github.com/marketkg/sentinel/internal/kg"
)

func seedCorrelatedSnapshots(t *testing.T, s interface {
	InsertSnapshot(ctx context.Context, snap domain.Snapshot) (int64, error)
}, a, b string, start time.Time) {
	t.Helper()
	for i := 0; i < 10; i++ {
		prices := map[string]domain.PriceBar{
			a: {Symbol: a, Current: 100 + float64(i)},
			b: {Symbol: b, Current: 200 + 2*float64(i)},
		}
		pricesJSON, err := json.Marshal(prices)
		require.NoError(t, err)
		_, err = s.InsertSnapshot(context.Background(), domain.Snapshot{
			Ts: start.Add(time.Duration(i) * time.Minute), PricesJSON: string(pricesJSON),
			BellsJSON: "{}", IndicatorsJSON: "{}", SignalsJSON: "{}",
		})
		require.NoError(t, err)
	}
}

func TestDreamStepOptionsDisabledAlwaysAssessesInvestibleBellwether(t *testing.T) {
	s := newTestStoreForWorker(t)
	graph := kg.New(s)
	cfg := &config.Config{}
	cfg.Universe.Investibles = []string{"AAPL"}
	cfg.Universe.Bellwethers = []string{"SPY"}
	cfg.Workers.Options = false

	now := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)
	seedCorrelatedSnapshots(t, s, "AAPL", "SPY", now.Add(-10*time.Minute))

	rng := rand.New(rand.NewSource(1))
	err := dreamStep(context.Background(), cfg, s, graph, nil, clock.Fake{At: now}, rng, testLogger())
	require.NoError(t, err)

	events, err := s.RecentEvents(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Detail, "investible_bellwether")
}

func TestPickPairSkipsOptionOptionEdgeAssessedWithinLastHour(t *testing.T) {
	s := newTestStoreForWorker(t)
	graph := kg.New(s)
	cfg := &config.Config{}
	cfg.Universe.Investibles = []string{"AAPL"}
	cfg.Universe.Bellwethers = []string{"SPY"}

	now := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertNode(context.Background(), domain.Node{NodeID: "AAPL_C_150_20260918", Kind: domain.NodeOptionCall}))
	require.NoError(t, s.UpsertNode(context.Background(), domain.Node{NodeID: "AAPL_C_160_20260918", Kind: domain.NodeOptionCall}))

	_, err := graph.Assess(context.Background(), "AAPL_C_150_20260918", "AAPL_C_160_20260918",
		[]domain.EdgeChannel{{Channel: domain.ChannelSpreadStrategy, Strength: 0.75}}, now.Add(-30*time.Minute))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(1))
	_, _, ok, err := pickPair(context.Background(), s, cfg, kg.CategoryOptionOption, now, rng)
	require.NoError(t, err)
	assert.False(t, ok, "an edge assessed 30 minutes ago should be skipped to avoid churn")
}

func TestPickPairReturnsOptionPairWhenEdgeIsStale(t *testing.T) {
	s := newTestStoreForWorker(t)
	graph := kg.New(s)
	cfg := &config.Config{}
	cfg.Universe.Investibles = []string{"AAPL"}
	cfg.Universe.Bellwethers = []string{"SPY"}

	now := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertNode(context.Background(), domain.Node{NodeID: "AAPL_C_150_20260918", Kind: domain.NodeOptionCall}))
	require.NoError(t, s.UpsertNode(context.Background(), domain.Node{NodeID: "AAPL_C_160_20260918", Kind: domain.NodeOptionCall}))

	_, err := graph.Assess(context.Background(), "AAPL_C_150_20260918", "AAPL_C_160_20260918",
		[]domain.EdgeChannel{{Channel: domain.ChannelSpreadStrategy, Strength: 0.75}}, now.Add(-2*time.Hour))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(1))
	a, b, ok, err := pickPair(context.Background(), s, cfg, kg.CategoryOptionOption, now, rng)
	require.NoError(t, err)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"AAPL_C_150_20260918", "AAPL_C_160_20260918"}, []string{a, b})
}

func TestPickPairOptionBellwetherReturnsNotOkWithNoOptionNodes(t *testing.T) {
	s := newTestStoreForWorker(t)
	cfg := &config.Config{}
	cfg.Universe.Investibles = []string{"AAPL"}
	cfg.Universe.Bellwethers = []string{"SPY"}

	rng := rand.New(rand.NewSource(1))
	_, _, ok, err := pickPair(context.Background(), s, cfg, kg.CategoryOptionBellwether, time.Now().UTC(), rng)
	require.NoError(t, err)
	assert.False(t, ok)
}
