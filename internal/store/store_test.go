package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketkg/sentinel/config"
	"github.com/marketkg/sentinel/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sentinel.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenSeedsDefaultCash(t *testing.T) {
	s := newTestStore(t)
	cash, err := s.Cash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100000.0, cash)
}

func TestBootstrapIfEmptySeedsOnceOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cfg := &config.Config{}
	cfg.Universe.Investibles = []string{"AAPL", "MSFT"}
	cfg.Universe.Bellwethers = []string{"SPY"}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.BootstrapIfEmpty(ctx, cfg, now))
	nodes, err := s.Nodes(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, nodes)
	firstCount := len(nodes)

	// A second call must be a no-op since nodes is no longer empty.
	cfg.Universe.Investibles = []string{"AAPL", "MSFT", "NVDA"}
	require.NoError(t, s.BootstrapIfEmpty(ctx, cfg, now))
	nodes, err = s.Nodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, firstCount, len(nodes))
}

func TestUpsertEdgeNormalizesEndpointsAndRecomputesDegree(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertNode(ctx, domain.Node{NodeID: "ZZZ", Kind: domain.NodeInvestible, Label: "ZZZ"}))
	require.NoError(t, s.UpsertNode(ctx, domain.Node{NodeID: "AAA", Kind: domain.NodeInvestible, Label: "AAA"}))

	edge, err := s.UpsertEdge(ctx, "ZZZ", "AAA", []domain.EdgeChannel{
		{Channel: domain.ChannelCorrelates, Strength: 0.8},
	}, now)
	require.NoError(t, err)
	assert.Equal(t, "AAA", edge.NodeA, "normalized endpoint order")
	assert.Equal(t, "ZZZ", edge.NodeB)
	assert.InDelta(t, 0.8*EdgeWeights[domain.ChannelCorrelates], edge.Weight, 1e-9)
	assert.Equal(t, domain.ChannelCorrelates, edge.TopChannel)

	a, err := s.Node(ctx, "AAA")
	require.NoError(t, err)
	assert.Equal(t, 1, a.Degree)
	z, err := s.Node(ctx, "ZZZ")
	require.NoError(t, err)
	assert.Equal(t, 1, z.Degree)

	// Re-upsert with a different channel set atomically replaces the old one.
	edge2, err := s.UpsertEdge(ctx, "AAA", "ZZZ", []domain.EdgeChannel{
		{Channel: domain.ChannelHedges, Strength: 0.5},
	}, now)
	require.NoError(t, err)
	assert.Equal(t, edge.EdgeID, edge2.EdgeID)
	_, chans, err := s.Edge(ctx, "AAA", "ZZZ")
	require.NoError(t, err)
	require.Len(t, chans, 1)
	assert.Equal(t, domain.ChannelHedges, chans[0].Channel)
}

func TestInsertSnapshotTrimsToTailWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < SnapshotTailWindow+5; i++ {
		_, err := s.InsertSnapshot(ctx, domain.Snapshot{
			Ts: time.Now(), PricesJSON: "{}", BellsJSON: "{}", IndicatorsJSON: "{}", SignalsJSON: "{}",
		})
		require.NoError(t, err)
	}

	var count int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&count))
	assert.Equal(t, SnapshotTailWindow, count)
}

func TestApplyFillBuyThenSellClearsPosition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	buy := domain.Trade{Ts: now, Symbol: "AAPL", Side: domain.SideBuy, Qty: 10, Price: 100, Notional: 1000}
	require.NoError(t, s.ApplyFill(ctx, buy, now))

	pos, ok, err := s.Position(ctx, "AAPL")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10.0, pos.Qty)
	assert.Equal(t, 100.0, pos.AvgCost)

	cash, err := s.Cash(ctx)
	require.NoError(t, err)
	assert.Equal(t, 99000.0, cash)

	buy2 := domain.Trade{Ts: now, Symbol: "AAPL", Side: domain.SideBuy, Qty: 10, Price: 200, Notional: 2000}
	require.NoError(t, s.ApplyFill(ctx, buy2, now))
	pos, ok, err = s.Position(ctx, "AAPL")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 20.0, pos.Qty)
	assert.InDelta(t, 150.0, pos.AvgCost, 1e-9) // weighted average

	sell := domain.Trade{Ts: now, Symbol: "AAPL", Side: domain.SideSell, Qty: 20, Price: 150, Notional: 3000}
	require.NoError(t, s.ApplyFill(ctx, sell, now))
	_, ok, err = s.Position(ctx, "AAPL")
	require.NoError(t, err)
	assert.False(t, ok, "fully closed position should be deleted")
}

func TestAppendEventTruncatesDetail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	long := make([]byte, domain.MaxEventDetailLen+500)
	for i := range long {
		long[i] = 'x'
	}
	require.NoError(t, s.AppendEvent(ctx, domain.EventLogEntry{
		Ts: time.Now(), Actor: "dream", Action: "assess", Detail: string(long),
	}))
	events, err := s.RecentEvents(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Len(t, events[0].Detail, domain.MaxEventDetailLen)
}
