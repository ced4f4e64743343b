package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/marketkg/sentinel/config"
	"github.com/marketkg/sentinel/internal/clock"
	"github.com/marketkg/sentinel/internal/committee"
	"github.com/marketkg/sentinel/internal/domain"
	"github.com/marketkg/sentinel/internal/executor"
	"github.com/marketkg/sentinel/internal/store"
)

// NewThink builds the Think worker: gather the latest snapshot's
// indicators and signals, ask the committee for a decision set, score it
// with the critic, star it if it clears the threshold, and — when
// AutoTrade is on and the trading window allows it — execute the starred
// decisions immediately. A starred insight that arrives outside the
// trading window is queued instead of executed.
func NewThink(cfg *config.Config, st *store.Store, cmt *committee.Committee, crit committee.Critic, exec *executor.Executor, clk clock.Clock, log *slog.Logger) *Worker {
	return New("think", cfg.ThinkInterval(), func(ctx context.Context) error {
		return thinkStep(ctx, cfg, st, cmt, crit, exec, clk, log)
	})
}

func thinkStep(ctx context.Context, cfg *config.Config, st *store.Store, cmt *committee.Committee, crit committee.Critic, exec *executor.Executor, clk clock.Clock, log *slog.Logger) error {
	now := clk.Now()

	snap, ok, err := st.LatestSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("think.Step: load snapshot: %w", err)
	}
	if !ok {
		log.Debug("think worker: no snapshot yet, skipping")
		return nil
	}

	var indicators map[string]domain.Indicators
	if err := json.Unmarshal([]byte(snap.IndicatorsJSON), &indicators); err != nil {
		return fmt.Errorf("think.Step: unmarshal indicators: %w", err)
	}
	var sig domain.Signals
	if err := json.Unmarshal([]byte(snap.SignalsJSON), &sig); err != nil {
		return fmt.Errorf("think.Step: unmarshal signals: %w", err)
	}

	positions, err := st.Positions(ctx)
	if err != nil {
		return fmt.Errorf("think.Step: load positions: %w", err)
	}
	positionBySymbol := make(map[string]domain.Position, len(positions))
	for _, p := range positions {
		positionBySymbol[p.Symbol] = p
	}

	cctx := committee.Context{Indicators: indicators, Signals: sig, Positions: positionBySymbol}
	_, decisions, explanation, confidence, err := cmt.Decide(ctx, cfg.Universe.Investibles, cctx)
	if err != nil {
		return fmt.Errorf("think.Step: committee decide: %w", err)
	}

	score := crit.Score(decisions, explanation, confidence, cfg.Committee.ExplanationMinLength)
	starred := score >= cfg.Committee.StarThreshold

	decisionsJSON, err := json.Marshal(decisions)
	if err != nil {
		return fmt.Errorf("think.Step: marshal decisions: %w", err)
	}
	agentsJSON, err := json.Marshal(committee.DefaultAgents)
	if err != nil {
		return fmt.Errorf("think.Step: marshal agents: %w", err)
	}

	title, _, dominant := sig.DominantSignal()
	if !dominant {
		title = "default"
	}

	insight := domain.Insight{
		InsightID: uuid.NewString(), Ts: now, Title: title, Body: explanation,
		AgentsJSON: string(agentsJSON), DecisionsJSON: string(decisionsJSON),
		Confidence: confidence, CriticScore: score, Starred: starred,
		Status: domain.InsightNew, EvidenceSnapshotID: snap.SnapshotID,
	}
	if err := st.InsertInsight(ctx, insight); err != nil {
		return fmt.Errorf("think.Step: insert insight: %w", err)
	}

	if !starred {
		log.Info("think worker: insight below star threshold", "score", score, "threshold", cfg.Committee.StarThreshold)
		return nil
	}

	if !cfg.Workers.AutoTrade {
		return st.SetInsightStatus(ctx, insight.InsightID, domain.InsightQueued)
	}

	if !cfg.Trading.TradeAnytime && !clock.MarketIsOpen(now) {
		log.Info("think worker: starred insight queued, trading window closed")
		return st.SetInsightStatus(ctx, insight.InsightID, domain.InsightQueued)
	}

	return executeInsight(ctx, st, exec, insight, decisions, now, log)
}

func executeInsight(ctx context.Context, st *store.Store, exec *executor.Executor, insight domain.Insight, decisions []domain.Decision, now time.Time, log *slog.Logger) error {
	equity, err := st.Equity(ctx)
	if err != nil {
		return fmt.Errorf("executeInsight: equity: %w", err)
	}
	cash, err := st.Cash(ctx)
	if err != nil {
		return fmt.Errorf("executeInsight: cash: %w", err)
	}
	positions, err := st.Positions(ctx)
	if err != nil {
		return fmt.Errorf("executeInsight: positions: %w", err)
	}
	positionBySymbol := make(map[string]domain.Position, len(positions))
	prices := make(map[string]float64, len(positions))
	for _, p := range positions {
		positionBySymbol[p.Symbol] = p
		prices[p.Symbol] = p.LastPrice
	}
	for _, d := range decisions {
		if _, ok := prices[d.Ticker]; !ok {
			if pos, ok := positionBySymbol[d.Ticker]; ok {
				prices[d.Ticker] = pos.LastPrice
			}
		}
	}

	state := executor.PortfolioState{Equity: equity, Cash: cash, Positions: positionBySymbol, Prices: prices}
	results := exec.Execute(ctx, insight.InsightID, now.Unix(), decisions, state)

	for _, r := range results {
		if r.Trade == nil {
			continue
		}
		r.Trade.Ts = now
		if err := st.ApplyFill(ctx, *r.Trade, now); err != nil {
			log.Warn("think worker: apply fill failed", "symbol", r.Trade.Symbol, "err", err)
		}
	}

	return st.SetInsightStatus(ctx, insight.InsightID, domain.InsightApplied)
}
