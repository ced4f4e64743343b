package kg

import (
	"context"
	"fmt"
	"strings"

	"github.com/marketkg/sentinel/internal/domain"
	"github.com/marketkg/sentinel/internal/llm"
)

// Adjudicator asks the LLM to propose a relationship between two nodes
// when heuristics alone can't produce one — e.g. a narrative_supports or
// policy_exposed channel that isn't derivable from price history.
type Adjudicator struct {
	Adapter *llm.Adapter
}

// NewAdjudicator builds an Adjudicator backed by the shared LLM adapter.
func NewAdjudicator(a *llm.Adapter) *Adjudicator {
	return &Adjudicator{Adapter: a}
}

type proposalResponse struct {
	Channel  string  `json:"channel"`
	Strength float64 `json:"strength"`
	Reason   string  `json:"reason"`
}

var validChannels = map[string]bool{
	domain.ChannelCorrelates:           true,
	domain.ChannelInverseCorrelates:    true,
	domain.ChannelDrives:               true,
	domain.ChannelHedges:               true,
	domain.ChannelLiquidityCoupled:     true,
	domain.ChannelPolicyExposed:        true,
	domain.ChannelSentimentCoupled:     true,
	domain.ChannelNarrativeSupports:    true,
	domain.ChannelNarrativeContradicts: true,
	domain.ChannelLeads:                true,
	domain.ChannelLags:                 true,
	domain.ChannelResultsFrom:          true,
	domain.ChannelSupplyChainLinked:    true,
	domain.ChannelIVCorrelates:         true,
	domain.ChannelIVInverse:            true,
	domain.ChannelVolRegimeCoupled:     true,
	domain.ChannelOptionsHedges:        true,
	domain.ChannelOptionsLeverages:     true,
	domain.ChannelSpreadStrategy:       true,
	domain.ChannelCollarStrategy:       true,
	domain.ChannelDeltaFlow:            true,
	domain.ChannelVegaExposure:         true,
	domain.ChannelCrossUnderlyingHedge: true,
}

const adjudicatorSystemPrompt = `You are a markets relationship analyst. Given two named ` +
	`financial nodes (instruments, narratives, or regimes) and brief context about each, propose ` +
	`exactly one relationship channel between them. Reply with ONLY a JSON object of the shape ` +
	`{"channel": "<one of the known channel names>", "strength": <0..1>, "reason": "<one sentence>"}.`

// Propose asks the LLM for a single channel between a and b, given short
// free-text context for each, and validates the channel name and strength
// before returning it. An unknown channel name or an out-of-range strength
// is rejected rather than silently clamped, since a hallucinated channel
// name would otherwise corrupt the base-weight lookup in store.UpsertEdge.
func (adj *Adjudicator) Propose(ctx context.Context, aLabel, aContext, bLabel, bContext string) (domain.EdgeChannel, error) {
	user := fmt.Sprintf("Node A: %s\nContext A: %s\n\nNode B: %s\nContext B: %s",
		aLabel, aContext, bLabel, bContext)

	var resp proposalResponse
	if err := adj.Adapter.ChatJSON(ctx, adjudicatorSystemPrompt, user, &resp); err != nil {
		return domain.EdgeChannel{}, fmt.Errorf("kg.Adjudicator.Propose(%s,%s): %w", aLabel, bLabel, err)
	}

	channel := strings.TrimSpace(strings.ToLower(resp.Channel))
	if !validChannels[channel] {
		return domain.EdgeChannel{}, fmt.Errorf("kg.Adjudicator.Propose(%s,%s): unknown channel %q", aLabel, bLabel, resp.Channel)
	}
	if resp.Strength < 0 || resp.Strength > 1 {
		return domain.EdgeChannel{}, fmt.Errorf("kg.Adjudicator.Propose(%s,%s): strength %v out of range", aLabel, bLabel, resp.Strength)
	}

	return domain.EdgeChannel{Channel: channel, Strength: resp.Strength}, nil
}
