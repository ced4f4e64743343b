// Command sentinel runs the autonomous trading supervisor: the Market,
// Dream, Think, and (optionally) Options/OptionsThink workers, each on
// its own configured cadence, sharing one embedded store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/marketkg/sentinel/config"
	"github.com/marketkg/sentinel/internal/clock"
	"github.com/marketkg/sentinel/internal/executor"
	"github.com/marketkg/sentinel/internal/executor/alpaca"
	"github.com/marketkg/sentinel/internal/executor/paper"
	"github.com/marketkg/sentinel/internal/llm"
	"github.com/marketkg/sentinel/internal/llm/ollama"
	"github.com/marketkg/sentinel/internal/llm/openrouter"
	fetchalpaca "github.com/marketkg/sentinel/internal/market/fetch/alpaca"
	"github.com/marketkg/sentinel/internal/market/fetch"
	"github.com/marketkg/sentinel/internal/market/fetch/yahoo"
	"github.com/marketkg/sentinel/internal/report"
	"github.com/marketkg/sentinel/internal/store"
	"github.com/marketkg/sentinel/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config file")
	once := flag.Bool("once", false, "run one step of every enabled worker, then exit")
	dryRun := flag.Bool("dry-run", false, "run -once without persisting trades (overrides auto_trade)")
	verbose := flag.Bool("verbose", false, "enable debug-level logging")
	format := flag.String("format", "", "override log format (text|json)")
	table := flag.Bool("table", false, "print a worker-stats table before exiting (implies -once)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sentinel: load config:", err)
		os.Exit(1)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *format != "" {
		cfg.Log.Format = *format
	}
	if *table || *dryRun {
		*once = true
	}

	log := newLogger(cfg)

	st, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		log.Error("open store", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.NewReal()
	if err := st.BootstrapIfEmpty(ctx, cfg, clk.Now()); err != nil {
		log.Error("bootstrap knowledge graph", "err", err)
		os.Exit(1)
	}

	pool := buildFetchPool(cfg)
	adapter := buildLLMAdapter(cfg)
	broker := buildBroker(cfg)

	sup := worker.New(cfg, st, pool, adapter, broker, clk, log)

	if *dryRun {
		cfg.Workers.AutoTrade = false
	}

	if *once {
		runOnce(ctx, sup, log)
		if *table {
			report.WorkerStats(os.Stdout, sup.Stats())
			insights, err := st.RecentInsights(ctx, 10)
			if err == nil {
				report.Insights(os.Stdout, insights)
			}
			cash, _ := st.Cash(ctx)
			equity, _ := st.Equity(ctx)
			positions, _ := st.Positions(ctx)
			report.Portfolio(os.Stdout, cash, equity, positions)
		}
		return
	}

	log.Info("sentinel starting",
		"auto_market", cfg.Workers.AutoMarket, "auto_dream", cfg.Workers.AutoDream,
		"auto_think", cfg.Workers.AutoThink, "auto_trade", cfg.Workers.AutoTrade,
		"options", cfg.Workers.Options, "broker", cfg.Broker.Provider, "llm", cfg.LLM.Provider,
	)
	sup.StartAuto(ctx)
	<-ctx.Done()
	log.Info("sentinel shutting down")
	sup.StopAll()
}

// runOnce steps every worker exactly once, in Market -> Dream -> Think
// order so Think sees the snapshot Market just wrote.
func runOnce(ctx context.Context, sup *worker.Supervisor, log *slog.Logger) {
	if err := sup.Market.StepOnce(ctx); err != nil {
		log.Warn("market step", "err", err)
	}
	if err := sup.Dream.StepOnce(ctx); err != nil {
		log.Warn("dream step", "err", err)
	}
	if sup.Think != nil {
		if err := sup.Think.StepOnce(ctx); err != nil {
			log.Warn("think step", "err", err)
		}
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func buildFetchPool(cfg *config.Config) *fetch.Pool {
	var provider fetch.PriceProvider
	switch cfg.Market.DataProvider {
	case "alpaca":
		provider = fetchalpaca.New(cfg.Broker.BaseURL, cfg.Broker.KeyID, cfg.Broker.Secret, cfg.Market.YahooRangeDays, cfg.Market.YahooTimeout)
	default:
		provider = yahoo.New(cfg.Market.YahooTimeout, cfg.Market.YahooRangeDays, cfg.Market.YahooCacheSeconds)
	}
	return fetch.NewPool(provider, 8)
}

func buildLLMAdapter(cfg *config.Config) *llm.Adapter {
	var provider llm.Provider
	switch cfg.LLM.Provider {
	case "openrouter":
		provider = openrouter.New(cfg.LLM.URL, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.Temperature, cfg.LLM.MaxTokens, cfg.LLM.Timeout)
	default:
		provider = ollama.New(cfg.LLM.URL, cfg.LLM.Model, cfg.LLM.Temperature, cfg.LLM.MaxTokens, cfg.LLM.Timeout)
	}
	budget := llm.NewBudget(cfg.LLM.CallsPerMin)
	return llm.NewAdapter(provider, budget, cfg.LLM.MaxReask)
}

func buildBroker(cfg *config.Config) executor.Broker {
	if cfg.Broker.Provider == "alpaca" {
		return alpaca.New(cfg.Broker.BaseURL, cfg.Broker.Mode, cfg.Broker.KeyID, cfg.Broker.Secret, 20)
	}
	return paper.New()
}
