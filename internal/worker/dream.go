package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/marketkg/sentinel/config"
	"github.com/marketkg/sentinel/internal/clock"
	"github.com/marketkg/sentinel/internal/domain"
	"github.com/marketkg/sentinel/internal/kg"
	"github.com/marketkg/sentinel/internal/store"
)

// dreamEdgeChurnWindow is how recently an option-option edge must have
// been assessed for this tick to skip it rather than re-assess it.
const dreamEdgeChurnWindow = time.Hour

// NewDream builds the Dream worker: each tick it samples one candidate
// node pair from the 60/20/20 category split (collapsing to
// investible-bellwether when options tracking is off), proposes channels
// for it (heuristics first, escalating to the LLM adjudicator per
// category probability), and records the assessment in the audit trail
// either way.
func NewDream(cfg *config.Config, st *store.Store, graph *kg.Graph, adj *kg.Adjudicator, clk clock.Clock, rng *rand.Rand, log *slog.Logger) *Worker {
	return New("dream", cfg.DreamInterval(), func(ctx context.Context) error {
		return dreamStep(ctx, cfg, st, graph, adj, clk, rng, log)
	})
}

func dreamStep(ctx context.Context, cfg *config.Config, st *store.Store, graph *kg.Graph, adj *kg.Adjudicator, clk clock.Clock, rng *rand.Rand, log *slog.Logger) error {
	now := clk.Now()
	category := kg.PickCategory(rng.Float64(), cfg.Workers.Options)

	a, b, ok, err := pickPair(ctx, st, cfg, category, now, rng)
	if err != nil {
		return fmt.Errorf("dream.Step: pick pair: %w", err)
	}
	if !ok {
		log.Debug("dream worker: no candidate pair this tick", "category", category)
		return nil
	}

	heuristics := kg.Heuristics{}
	var channels []domain.EdgeChannel
	switch category {
	case kg.CategoryOptionOption:
		channels = optionOptionChannels(heuristics, a, b)
	case kg.CategoryOptionBellwether:
		channels = optionBellwetherChannels(ctx, st, heuristics, a, b)
	default:
		channels = investibleBellwetherChannels(ctx, st, heuristics, a, b)
	}

	consulted := false
	if adj != nil && kg.ShouldConsultLLM(category, rng.Float64()) {
		proposal, llmErr := adj.Propose(ctx, a, "see latest snapshot", b, "see latest snapshot")
		if llmErr == nil {
			channels = []domain.EdgeChannel{proposal}
			consulted = true
		} else {
			log.Debug("dream worker: LLM adjudication failed, keeping heuristic result", "err", llmErr)
		}
	}

	detail := fmt.Sprintf("category=%s llm_consulted=%v channels=%d", category, consulted, len(channels))
	if len(channels) == 0 {
		return st.AppendEvent(ctx, domain.EventLogEntry{Ts: now, Actor: "dream", Action: "no_assessment", Detail: detail})
	}

	if _, err := graph.Assess(ctx, a, b, channels, now); err != nil {
		return fmt.Errorf("dream.Step: %w", err)
	}
	return st.AppendEvent(ctx, domain.EventLogEntry{Ts: now, Actor: "dream", Action: "assess", Detail: fmt.Sprintf("%s <-> %s: %s", a, b, detail)})
}

// pickPair draws one candidate pair for category. ok is false when the
// category has nothing to draw from this tick (e.g. fewer than two
// monitored option nodes) or, for option-option, when the randomly drawn
// pair's edge was assessed within dreamEdgeChurnWindow.
func pickPair(ctx context.Context, st *store.Store, cfg *config.Config, category kg.Category, now time.Time, rng *rand.Rand) (string, string, bool, error) {
	investibles := cfg.Universe.Investibles
	if len(investibles) == 0 {
		return "", "", false, nil
	}
	bells := append(append([]string{}, cfg.Universe.Bellwethers...), cfg.Universe.BellwethersYF...)
	if len(bells) == 0 {
		return "", "", false, nil
	}

	switch category {
	case kg.CategoryOptionBellwether:
		options, err := monitoredOptionNodes(ctx, st)
		if err != nil {
			return "", "", false, err
		}
		if len(options) == 0 {
			return "", "", false, nil
		}
		return options[rng.Intn(len(options))], bells[rng.Intn(len(bells))], true, nil

	case kg.CategoryOptionOption:
		options, err := monitoredOptionNodes(ctx, st)
		if err != nil {
			return "", "", false, err
		}
		if len(options) < 2 {
			return "", "", false, nil
		}
		i, j := rng.Intn(len(options)), rng.Intn(len(options))
		for j == i {
			j = rng.Intn(len(options))
		}
		a, b := options[i], options[j]
		edge, _, err := st.Edge(ctx, a, b)
		if err != nil {
			return "", "", false, err
		}
		if edge.EdgeID != 0 && now.Sub(edge.LastAssessed) < dreamEdgeChurnWindow {
			return "", "", false, nil
		}
		return a, b, true, nil

	default: // CategoryInvestibleBellwether
		return investibles[rng.Intn(len(investibles))], bells[rng.Intn(len(bells))], true, nil
	}
}

// monitoredOptionNodes returns every node id of kind NodeOptionCall or
// NodeOptionPut currently tracked in the graph.
func monitoredOptionNodes(ctx context.Context, st *store.Store) ([]string, error) {
	nodes, err := st.Nodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("monitoredOptionNodes: %w", err)
	}
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if n.Kind == domain.NodeOptionCall || n.Kind == domain.NodeOptionPut {
			out = append(out, n.NodeID)
		}
	}
	return out, nil
}

// investibleBellwetherChannels derives correlates/inverse_correlates
// (and liquidity_coupled, when b is the broad-market proxy) from each
// symbol's return series.
func investibleBellwetherChannels(ctx context.Context, st *store.Store, h kg.Heuristics, a, b string) []domain.EdgeChannel {
	aSeries, bSeries, ok := loadReturnSeries(ctx, st, a, b)
	if !ok {
		return nil
	}
	return h.Correlate(aSeries, bSeries, b == kg.BroadMarketProxy)
}

// optionBellwetherChannels treats the option node's underlying the same
// way investibleBellwetherChannels treats an investible: the knowledge
// graph has no separate IV/Greeks time series for an option's
// correlation to a bellwether, so the price-return heuristic still
// applies to the option node's own quoted series.
func optionBellwetherChannels(ctx context.Context, st *store.Store, h kg.Heuristics, a, b string) []domain.EdgeChannel {
	return investibleBellwetherChannels(ctx, st, h, a, b)
}

// optionOptionChannels has no implied-vol, delta, or vega time series to
// draw on from the snapshot store today (§4.4's options surface isn't
// fed by a live options-chain provider in this design), so it proposes
// no heuristic channel and relies entirely on the LLM adjudicator's
// escalation for this category.
func optionOptionChannels(h kg.Heuristics, a, b string) []domain.EdgeChannel {
	return nil
}

// loadReturnSeries pulls close-price history for a and b from the most
// recent snapshots and converts each to a return series, so Correlate
// measures co-movement rather than shared trend. It reports false if
// either symbol has fewer than 6 price observations (5 returns) on hand.
func loadReturnSeries(ctx context.Context, st *store.Store, a, b string) ([]float64, []float64, bool) {
	snaps, err := st.RecentSnapshots(ctx, signalsHistoryDepth)
	if err != nil || len(snaps) == 0 {
		return nil, nil, false
	}
	aPrices := extractSeries(snaps, a)
	bPrices := extractSeries(snaps, b)
	aReturns, bReturns := priceReturns(aPrices), priceReturns(bPrices)
	if len(aReturns) < 5 || len(bReturns) < 5 {
		return nil, nil, false
	}
	return aReturns, bReturns, true
}

const signalsHistoryDepth = 60

// priceReturns converts a price series into simple period-over-period
// returns; a non-positive prior price (no data yet) contributes no
// return rather than a division blowup.
func priceReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		if prev <= 0 {
			continue
		}
		out = append(out, (prices[i]-prev)/prev)
	}
	return out
}

func extractSeries(snaps []domain.Snapshot, symbol string) []float64 {
	out := make([]float64, 0, len(snaps))
	for i := len(snaps) - 1; i >= 0; i-- {
		bar, ok := barForSymbol(snaps[i], symbol)
		if !ok {
			continue
		}
		out = append(out, bar.Current)
	}
	return out
}

func barForSymbol(snap domain.Snapshot, symbol string) (domain.PriceBar, bool) {
	var bars map[string]domain.PriceBar
	if err := json.Unmarshal([]byte(snap.PricesJSON), &bars); err != nil {
		return domain.PriceBar{}, false
	}
	bar, ok := bars[symbol]
	return bar, ok
}
