// Package committee turns market context into trade decisions: an
// LLM-backed multi-agent call first, a deterministic rule-based fallback
// when the LLM is unavailable or its output can't be sanitized, and a
// critic that scores the resulting insight before it's allowed to star
// (and therefore queue for execution).
package committee

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/marketkg/sentinel/internal/domain"
	"github.com/marketkg/sentinel/internal/llm"
)

// Agent is one named voice in the committee call, grounded on the
// momentum/macro/contrarian/risk_manager agent nodes seeded into the
// knowledge graph.
type Agent struct {
	Name string
	Role string
}

// DefaultAgents is the standing committee roster.
var DefaultAgents = []Agent{
	{Name: "momentum", Role: "favors investibles with strong recent price momentum"},
	{Name: "macro", Role: "weighs macro regime signals (risk_off, rates_up, oil_shock, semi_pulse) over single-name moves"},
	{Name: "contrarian", Role: "looks for overextended moves likely to mean-revert"},
	{Name: "risk_manager", Role: "vetoes concentration and pushes toward HOLD under uncertainty"},
}

// Context is the evidence bundle handed to the committee for one cycle:
// per-investible indicators and the shared macro signals.
type Context struct {
	Indicators map[string]domain.Indicators
	Signals    domain.Signals
	Positions  map[string]domain.Position
}

type committeeResponse struct {
	Decisions   []domain.Decision `json:"decisions"`
	Explanation string            `json:"explanation"`
	Confidence  float64           `json:"confidence"`
}

// Committee produces one Insight per cycle.
type Committee struct {
	Adapter              *llm.Adapter
	ExplanationMinLength int
}

// New builds a Committee. explanationMinLength enforces the minimum
// character length the committee's written explanation must meet; Decide
// pads a shorter LLM explanation rather than rejecting it. The rule-based
// fallback's explanation is returned as RuleBased writes it.
func New(a *llm.Adapter, explanationMinLength int) *Committee {
	return &Committee{Adapter: a, ExplanationMinLength: explanationMinLength}
}

const committeeSystemPrompt = `You are a four-agent trading committee (momentum, macro, contrarian, ` +
	`risk_manager) deciding on a small universe of investibles given recent indicators and macro ` +
	`signals. Reply with ONLY a JSON object: {"decisions": [{"ticker": "...", "action": "BUY|SELL|HOLD", ` +
	`"allocation_pct": <0..80>, "note": "..."}], "explanation": "<at least a few sentences synthesizing ` +
	`the committee's reasoning>", "confidence": <0..1>}.`

// Decide asks the LLM for a committee decision; on any failure (budget
// exhausted, provider error, unparsable or unsanitary output) it falls
// back to RuleBased so a cycle never goes decision-less.
func (c *Committee) Decide(ctx context.Context, universe []string, cctx Context) (domain.Decision, []domain.Decision, string, float64, error) {
	user := buildPrompt(universe, cctx)

	var resp committeeResponse
	err := c.Adapter.ChatJSON(ctx, committeeSystemPrompt, user, &resp)
	if err != nil {
		decisions, explanation := RuleBased(universe, cctx)
		return decisions[0], decisions, explanation, fallbackConfidence, nil
	}

	sanitized, ok := Sanitize(resp.Decisions, universe)
	if !ok || len(sanitized) == 0 {
		decisions, explanation := RuleBased(universe, cctx)
		return decisions[0], decisions, explanation, fallbackConfidence, nil
	}

	explanation := strings.TrimSpace(resp.Explanation)
	if len(explanation) < c.ExplanationMinLength {
		explanation = padExplanation(explanation, sanitized, c.ExplanationMinLength)
	}

	confidence := resp.Confidence
	if confidence < 0 || confidence > 1 {
		confidence = 0.5
	}

	return sanitized[0], sanitized, explanation, confidence, nil
}

func buildPrompt(universe []string, cctx Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Universe: %s\n", strings.Join(universe, ", "))
	fmt.Fprintf(&b, "Signals: risk_off=%.2f rates_up=%.2f oil_shock=%.2f semi_pulse=%.2f\n",
		cctx.Signals.RiskOff, cctx.Signals.RatesUp, cctx.Signals.OilShock, cctx.Signals.SemiPulse)
	for _, sym := range universe {
		ind := cctx.Indicators[sym]
		fmt.Fprintf(&b, "%s: mom5=%.4f mom20=%.4f vol=%.4f zscore=%.2f rsi=%.1f\n",
			sym, ind.Mom5, ind.Mom20, ind.Volatility, ind.ZScore, ind.RSI)
	}
	return b.String()
}

// maxAllocationPct is the ceiling Sanitize clamps allocation_pct to; the
// committee is never allowed to request more than this much equity into a
// single decision regardless of what the LLM asked for.
const maxAllocationPct = 80

// Sanitize enforces the committee output contract: a decision whose
// ticker isn't in the universe is dropped outright (there's no valid
// ticker to coerce a hallucinated one into), but everything else is
// repaired rather than discarded — an invalid action coerces to HOLD and
// an out-of-range allocation_pct clamps to [0, maxAllocationPct]. ok is
// false when nothing survives the ticker-drop pass — that is the trigger
// for the rule-based fallback, so it's computed before the backfill
// below runs. Once at least one decision survives, every investible the
// LLM omitted entirely is backfilled with a synthetic HOLD (note
// "default HOLD") so the returned set always covers the whole universe
// exactly once.
func Sanitize(decisions []domain.Decision, universe []string) ([]domain.Decision, bool) {
	allowed := make(map[string]bool, len(universe))
	for _, sym := range universe {
		allowed[sym] = true
	}

	var out []domain.Decision
	seen := make(map[string]bool, len(universe))
	for _, d := range decisions {
		if !allowed[d.Ticker] || seen[d.Ticker] {
			continue
		}
		switch d.Action {
		case domain.SideBuy, domain.SideSell, domain.SideHold:
		default:
			d.Action = domain.SideHold
		}
		if d.AllocationPct < 0 {
			d.AllocationPct = 0
		} else if d.AllocationPct > maxAllocationPct {
			d.AllocationPct = maxAllocationPct
		}
		out = append(out, d)
		seen[d.Ticker] = true
	}
	if len(out) == 0 {
		return out, false
	}

	for _, sym := range universe {
		if !seen[sym] {
			out = append(out, domain.Decision{Ticker: sym, Action: domain.SideHold, Note: "default HOLD"})
		}
	}
	return out, true
}

func padExplanation(base string, decisions []domain.Decision, minLength int) string {
	var b strings.Builder
	b.WriteString(base)
	if b.Len() > 0 {
		b.WriteString(" ")
	}
	b.WriteString("Decisions reached: ")
	parts := make([]string, 0, len(decisions))
	for _, d := range decisions {
		parts = append(parts, fmt.Sprintf("%s %s at %.1f%% allocation", d.Ticker, d.Action, d.AllocationPct))
	}
	b.WriteString(strings.Join(parts, "; "))
	b.WriteString(". This synthesis reflects the committee's combined momentum, macro, contrarian, and risk posture for this cycle.")
	for b.Len() < minLength {
		b.WriteString(" Risk controls remain in force for the remainder of the cycle.")
	}
	return b.String()
}

// fallbackConfidence is the confidence RuleBased-sourced decisions carry,
// since there's no model self-report to use in its place.
const fallbackConfidence = 0.42

// riskOffThreshold is the regime cutoff above which the fallback de-risks
// instead of rotating into momentum.
const riskOffThreshold = 0.62

// HealthSectorETF is the defensive rotation target RuleBased buys into
// under a risk_off regime, when the deployment's universe includes it.
const HealthSectorETF = "XLV"

// rsiOverbought is the RSI level above which a name's ranking score takes
// the overbought penalty.
const rsiOverbought = 72

const (
	ruleBasedTopCount    = 5
	ruleBasedBottomCount = 4
)

// rankScore is the fallback's ranking formula: 20-day momentum, penalized
// for volatility and for an overbought RSI reading.
func rankScore(ind domain.Indicators) float64 {
	score := ind.Mom20 - 2*ind.Volatility
	if ind.RSI > rsiOverbought {
		score -= 0.01
	}
	return score
}

// RuleBased produces a deterministic decision set with no LLM call: rank
// the universe by rankScore descending, the top 5 form the momentum buy
// set and the bottom 4 form the laggard set. On a universe smaller than
// 9 the two sets would overlap, so the top set shrinks first — the
// laggard set always gets its full 4 names (or fewer, on a universe
// under 4) before any room is given to the momentum set. Under a
// risk_off regime above riskOffThreshold the laggard set is sold down
// and the proceeds notionally rotate into the health-sector ETF instead
// of the momentum set; otherwise the momentum set is bought and the
// laggard set trimmed. Every investible not in either focus set gets
// HOLD.
func RuleBased(universe []string, cctx Context) ([]domain.Decision, string) {
	ranked := make([]string, len(universe))
	copy(ranked, universe)
	sort.Slice(ranked, func(i, j int) bool {
		return rankScore(cctx.Indicators[ranked[i]]) > rankScore(cctx.Indicators[ranked[j]])
	})

	n := len(ranked)
	topN := ruleBasedTopCount
	if topN > n {
		topN = n
	}
	bottomN := ruleBasedBottomCount
	if bottomN > n {
		bottomN = n
	}
	bottomStart := n - bottomN
	if bottomStart < topN {
		topN = bottomStart
	}

	riskOff := cctx.Signals.RiskOff > riskOffThreshold

	byTicker := make(map[string]domain.Decision, n)
	for _, sym := range ranked {
		byTicker[sym] = domain.Decision{Ticker: sym, Action: domain.SideHold, Note: "rule-based hold"}
	}

	if riskOff {
		for _, sym := range ranked[bottomStart:] {
			byTicker[sym] = domain.Decision{Ticker: sym, Action: domain.SideSell, AllocationPct: 15, Note: "rule-based risk_off de-risking"}
		}
		if allowed(universe, HealthSectorETF) {
			byTicker[HealthSectorETF] = domain.Decision{Ticker: HealthSectorETF, Action: domain.SideBuy, AllocationPct: 6, Note: "rule-based risk_off health-sector rotation"}
		}
	} else {
		for _, sym := range ranked[:topN] {
			byTicker[sym] = domain.Decision{Ticker: sym, Action: domain.SideBuy, AllocationPct: 7, Note: "rule-based momentum rank"}
		}
		for _, sym := range ranked[bottomStart:] {
			byTicker[sym] = domain.Decision{Ticker: sym, Action: domain.SideSell, AllocationPct: 12, Note: "rule-based laggard trim"}
		}
	}

	decisions := make([]domain.Decision, 0, n)
	for _, sym := range universe {
		decisions = append(decisions, byTicker[sym])
	}

	explanation := "Rule-based fallback ranked the universe by momentum net of volatility and RSI, buying the top five and trimming the bottom four."
	if riskOff {
		explanation = "Rule-based fallback detected a risk_off regime above threshold, de-risked the bottom four laggards, and rotated into the health-sector ETF."
	}
	return decisions, explanation
}

func allowed(universe []string, symbol string) bool {
	for _, sym := range universe {
		if sym == symbol {
			return true
		}
	}
	return false
}
