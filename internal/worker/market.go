package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/marketkg/sentinel/config"
	"github.com/marketkg/sentinel/internal/clock"
	"github.com/marketkg/sentinel/internal/domain"
	"github.com/marketkg/sentinel/internal/market/fetch"
	"github.com/marketkg/sentinel/internal/market/signals"
	"github.com/marketkg/sentinel/internal/store"
)

// NewMarket builds the Market worker: fetch the universe and bellwethers,
// compute indicators and macro signals, persist one snapshot, and mark
// every held position to the freshly fetched price.
func NewMarket(cfg *config.Config, st *store.Store, pool *fetch.Pool, clk clock.Clock, log *slog.Logger) *Worker {
	return New("market", cfg.MarketInterval(), func(ctx context.Context) error {
		return marketStep(ctx, cfg, st, pool, clk, log)
	})
}

func marketStep(ctx context.Context, cfg *config.Config, st *store.Store, pool *fetch.Pool, clk clock.Clock, log *slog.Logger) error {
	now := clk.Now()

	universe := append(append([]string{}, cfg.Universe.Investibles...), cfg.Universe.Bellwethers...)
	universe = append(universe, cfg.Universe.BellwethersYF...)

	bars := fetch.FetchWithFallback(ctx, pool, universe, 2*time.Second)
	if len(bars) == 0 {
		return fmt.Errorf("market.Step: no bars fetched for %d symbols", len(universe))
	}

	indicators := make(map[string]domain.Indicators, len(cfg.Universe.Investibles))
	for _, sym := range cfg.Universe.Investibles {
		bar, ok := bars[sym]
		if !ok {
			continue
		}
		indicators[sym] = signals.Indicators(bar.History)
	}

	var changes []signals.BellwetherChange
	for _, sym := range append(append([]string{}, cfg.Universe.Bellwethers...), cfg.Universe.BellwethersYF...) {
		if bar, ok := bars[sym]; ok {
			changes = append(changes, signals.BellwetherChange{Symbol: sym, ChangePct: bar.ChangePct})
		}
	}
	regime := signals.Signals(changes)

	pricesJSON, err := marshalBars(bars, cfg.Universe.Investibles)
	if err != nil {
		return fmt.Errorf("market.Step: marshal prices: %w", err)
	}
	bellsJSON, err := marshalChanges(changes)
	if err != nil {
		return fmt.Errorf("market.Step: marshal bells: %w", err)
	}
	indicatorsJSON, err := json.Marshal(indicators)
	if err != nil {
		return fmt.Errorf("market.Step: marshal indicators: %w", err)
	}
	signalsJSON, err := json.Marshal(regime)
	if err != nil {
		return fmt.Errorf("market.Step: marshal signals: %w", err)
	}

	if _, err := st.InsertSnapshot(ctx, domain.Snapshot{
		Ts: now, PricesJSON: string(pricesJSON), BellsJSON: string(bellsJSON),
		IndicatorsJSON: string(indicatorsJSON), SignalsJSON: string(signalsJSON),
	}); err != nil {
		return fmt.Errorf("market.Step: insert snapshot: %w", err)
	}

	for _, sym := range cfg.Universe.Investibles {
		bar, ok := bars[sym]
		if !ok {
			continue
		}
		if err := st.MarkPrice(ctx, sym, bar.Current, now); err != nil {
			log.Warn("market worker: mark price failed", "symbol", sym, "err", err)
		}
		if err := st.RecordTickerLookup(ctx, sym, now, bar.Current); err != nil {
			log.Warn("market worker: record ticker lookup failed", "symbol", sym, "err", err)
		}
	}

	log.Info("market worker: tick complete", "fetched", len(bars), "universe", len(universe))
	return nil
}

func marshalBars(bars map[string]domain.PriceBar, symbols []string) ([]byte, error) {
	out := make(map[string]domain.PriceBar, len(symbols))
	for _, sym := range symbols {
		if bar, ok := bars[sym]; ok {
			out[sym] = bar
		}
	}
	return json.Marshal(out)
}

func marshalChanges(changes []signals.BellwetherChange) ([]byte, error) {
	out := make(map[string]float64, len(changes))
	for _, c := range changes {
		out[c.Symbol] = c.ChangePct
	}
	return json.Marshal(out)
}
