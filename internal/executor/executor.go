package executor

import (
	"context"
	"fmt"
	"sort"

	"github.com/marketkg/sentinel/internal/domain"
)

// GuardRails holds the executor's configurable caps, sourced from
// config.TradingConfig.
type GuardRails struct {
	MaxBuyEquityPctPerCycle   float64
	MaxSellHoldingPctPerCycle float64
	MaxSymbolWeightPct        float64
	MinCashBufferPct          float64
	MinTradeNotional          float64
}

// Executor applies guard rails to a decision set and routes surviving
// orders to a Broker.
type Executor struct {
	Broker Broker
	Rails  GuardRails
}

// New builds an Executor.
func New(b Broker, rails GuardRails) *Executor {
	return &Executor{Broker: b, Rails: rails}
}

// PortfolioState is the snapshot of account state the guard rails are
// computed against.
type PortfolioState struct {
	Equity    float64
	Cash      float64
	Positions map[string]domain.Position
	Prices    map[string]float64
}

// Result is the outcome of executing one decision.
type Result struct {
	Decision domain.Decision
	Trade    *domain.Trade // nil if skipped
	Skipped  bool
	Reason   string
}

// Execute applies every guard rail to decisions and places surviving
// orders, SELLs before BUYs: closing/trimming positions first frees cash
// and cash-buffer headroom for the BUYs that follow in the same cycle. A
// single buy_budget pool is sized once from starting equity and decremented
// by every BUY fill's notional, so the whole BUY pass — not just one
// decision — is capped at MaxBuyEquityPctPerCycle of equity; the pass
// stops once the remaining budget or spendable cash drops below
// MinTradeNotional.
func (e *Executor) Execute(ctx context.Context, insightID string, cycleTs int64, decisions []domain.Decision, state PortfolioState) []Result {
	ordered := make([]domain.Decision, len(decisions))
	copy(ordered, decisions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return rank(ordered[i].Action) < rank(ordered[j].Action)
	})

	results := make([]Result, 0, len(ordered))
	cash := state.Cash
	equity := state.Equity
	buyBudget := equity * (e.Rails.MaxBuyEquityPctPerCycle / 100)
	buysStopped := false

	for _, d := range ordered {
		if d.Action == domain.SideHold {
			results = append(results, Result{Decision: d, Skipped: true, Reason: "hold"})
			continue
		}

		price, ok := state.Prices[d.Ticker]
		if !ok || price <= 0 {
			results = append(results, Result{Decision: d, Skipped: true, Reason: "no price available"})
			continue
		}

		switch d.Action {
		case domain.SideSell:
			pos, held := state.Positions[d.Ticker]
			if !held || pos.Qty <= domain.PositionEpsilon {
				results = append(results, Result{Decision: d, Skipped: true, Reason: "no position to sell"})
				continue
			}
			sellQty := pos.Qty * (d.AllocationPct / 100)
			maxQty := pos.Qty * (e.Rails.MaxSellHoldingPctPerCycle / 100)
			if sellQty > maxQty {
				sellQty = maxQty
			}
			notional := sellQty * price
			if notional < e.Rails.MinTradeNotional {
				results = append(results, Result{Decision: d, Skipped: true, Reason: "below min trade notional"})
				continue
			}

			order := OrderRequest{
				ClientOrderID: ClientOrderID(insightID, d.Ticker, string(domain.SideSell), cycleTs),
				Symbol:        d.Ticker, Side: domain.SideSell, Qty: sellQty, Price: price,
			}
			fill, err := e.Broker.PlaceOrder(ctx, order)
			if err != nil {
				results = append(results, Result{Decision: d, Skipped: true, Reason: fmt.Sprintf("broker error: %v", err)})
				continue
			}
			cash += fill.Notional
			trade := fillToTrade(fill, insightID, "executed sell")
			results = append(results, Result{Decision: d, Trade: &trade})

		case domain.SideBuy:
			cashBuffer := equity * (e.Rails.MinCashBufferPct / 100)
			spendable := cash - cashBuffer
			if spendable < 0 {
				spendable = 0
			}
			if buysStopped || spendable < e.Rails.MinTradeNotional {
				buysStopped = true
				results = append(results, Result{Decision: d, Skipped: true, Reason: "buy pass stopped: spendable below min trade notional"})
				continue
			}

			requestedNotional := equity * (d.AllocationPct / 100)
			notional := requestedNotional
			if notional > buyBudget {
				notional = buyBudget
			}
			if notional > spendable {
				notional = spendable
			}

			currentWeight := 0.0
			if pos, held := state.Positions[d.Ticker]; held {
				currentWeight = pos.MarketValue() / equity
			}
			maxSymbolNotional := equity*(e.Rails.MaxSymbolWeightPct/100) - currentWeight*equity
			if notional > maxSymbolNotional {
				notional = maxSymbolNotional
			}

			if notional < e.Rails.MinTradeNotional {
				results = append(results, Result{Decision: d, Skipped: true, Reason: "below min trade notional after guard rails"})
				continue
			}

			qty := notional / price
			order := OrderRequest{
				ClientOrderID: ClientOrderID(insightID, d.Ticker, string(domain.SideBuy), cycleTs),
				Symbol:        d.Ticker, Side: domain.SideBuy, Qty: qty, Price: price,
			}
			fill, err := e.Broker.PlaceOrder(ctx, order)
			if err != nil {
				results = append(results, Result{Decision: d, Skipped: true, Reason: fmt.Sprintf("broker error: %v", err)})
				continue
			}
			cash -= fill.Notional
			buyBudget -= fill.Notional
			trade := fillToTrade(fill, insightID, "executed buy")
			results = append(results, Result{Decision: d, Trade: &trade})
			if buyBudget < e.Rails.MinTradeNotional {
				buysStopped = true
			}
		}
	}

	return results
}

func rank(side domain.Side) int {
	switch side {
	case domain.SideSell:
		return 0
	case domain.SideBuy:
		return 1
	default:
		return 2
	}
}

func fillToTrade(fill Fill, insightID, reason string) domain.Trade {
	return domain.Trade{
		Symbol: fill.Symbol, Side: fill.Side, Qty: fill.Qty, Price: fill.Price,
		Notional: fill.Notional, Reason: reason, InsightID: insightID,
	}
}
