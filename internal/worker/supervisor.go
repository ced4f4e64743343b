package worker

import (
	"context"
	"log/slog"
	"math/rand"

	"github.com/marketkg/sentinel/config"
	"github.com/marketkg/sentinel/internal/clock"
	"github.com/marketkg/sentinel/internal/committee"
	"github.com/marketkg/sentinel/internal/executor"
	"github.com/marketkg/sentinel/internal/kg"
	"github.com/marketkg/sentinel/internal/llm"
	"github.com/marketkg/sentinel/internal/market/fetch"
	"github.com/marketkg/sentinel/internal/store"
)

// Supervisor owns the five workers and starts/stops them according to the
// configured auto-run flags.
type Supervisor struct {
	Market       *Worker
	Dream        *Worker
	Think        *Worker
	Options      *Worker
	OptionsThink *Worker

	cfg *config.Config
	log *slog.Logger
}

// New builds a Supervisor and all five workers, wiring each one to the
// shared store, LLM adapter/budget, market-data pool, broker, and clock.
// broker is the already-constructed paper/alpaca implementation chosen by
// the caller per cfg.Broker.Provider, so this package never imports either
// concrete broker package directly.
func New(cfg *config.Config, st *store.Store, pool *fetch.Pool, adapter *llm.Adapter, broker executor.Broker, clk clock.Clock, log *slog.Logger) *Supervisor {
	graph := kg.New(st)
	var adj *kg.Adjudicator
	if adapter != nil {
		adj = kg.NewAdjudicator(adapter)
	}
	rng := rand.New(rand.NewSource(clk.Now().UnixNano()))

	cmt := committee.New(adapter, cfg.Committee.ExplanationMinLength)
	exec := executor.New(broker, executor.GuardRails{
		MaxBuyEquityPctPerCycle:   cfg.Trading.MaxBuyEquityPctPerCycle,
		MaxSellHoldingPctPerCycle: cfg.Trading.MaxSellHoldingPctPerCycle,
		MaxSymbolWeightPct:        cfg.Trading.MaxSymbolWeightPct,
		MinCashBufferPct:          cfg.Trading.MinCashBufferPct,
		MinTradeNotional:          cfg.Trading.MinTradeNotional,
	})

	return &Supervisor{
		cfg:          cfg,
		log:          log,
		Market:       NewMarket(cfg, st, pool, clk, log),
		Dream:        NewDream(cfg, st, graph, adj, clk, rng, log),
		Think:        NewThink(cfg, st, cmt, committee.Critic{}, exec, clk, log),
		Options:      NewOptions(cfg, st, log),
		OptionsThink: NewOptionsThink(cfg, st, log),
	}
}

// StartAuto starts every worker whose auto-run flag is enabled in config.
func (s *Supervisor) StartAuto(ctx context.Context) {
	if s.cfg.Workers.AutoMarket {
		s.Market.Start(ctx)
	}
	if s.cfg.Workers.AutoDream {
		s.Dream.Start(ctx)
	}
	if s.cfg.Workers.AutoThink && s.Think != nil {
		s.Think.Start(ctx)
	}
	if s.cfg.Workers.Options {
		s.Options.Start(ctx)
		s.OptionsThink.Start(ctx)
	}
}

// StopAll stops every worker.
func (s *Supervisor) StopAll() {
	s.Market.StopNow()
	s.Dream.StopNow()
	if s.Think != nil {
		s.Think.StopNow()
	}
	s.Options.StopNow()
	s.OptionsThink.StopNow()
}

// Stats returns a snapshot of every worker's run history, in a fixed
// display order matching the CLI's -table output.
func (s *Supervisor) Stats() []Stats {
	out := []Stats{s.Market.Stats(), s.Dream.Stats()}
	if s.Think != nil {
		out = append(out, s.Think.Stats())
	}
	out = append(out, s.Options.Stats(), s.OptionsThink.Stats())
	return out
}
