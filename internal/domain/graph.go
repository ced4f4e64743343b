package domain

import "time"

// NodeKind enumerates the kinds of nodes the knowledge graph tracks.
type NodeKind string

const (
	NodeInvestible NodeKind = "investible"
	NodeBellwether NodeKind = "bellwether"
	NodeSignal     NodeKind = "signal"
	NodeRegime     NodeKind = "regime"
	NodeNarrative  NodeKind = "narrative"
	NodeAgent      NodeKind = "agent"
	NodeOptionCall NodeKind = "option_call"
	NodeOptionPut  NodeKind = "option_put"
)

// Node is a vertex in the knowledge graph: an instrument, a derived
// signal, a narrative, or a committee agent.
type Node struct {
	NodeID      string
	Kind        NodeKind
	Label       string
	Description string
	Score       float64
	Degree      int
	LastTouched time.Time
}

// Edge is an undirected relationship between two nodes. NodeA <= NodeB
// lexicographically is a storage invariant enforced by the KG engine,
// never by callers.
type Edge struct {
	EdgeID          int64
	NodeA           string
	NodeB           string
	Weight          float64
	TopChannel      string
	LastAssessed    time.Time
	AssessmentCount int
}

// EdgeChannel is one labeled relationship type carried by an edge.
type EdgeChannel struct {
	EdgeID   int64
	Channel  string
	Strength float64
}

// Base channel identifiers. Directional variants are encoded as
// "base:A->B" strings and share the same base weight.
const (
	ChannelCorrelates          = "correlates"
	ChannelInverseCorrelates   = "inverse_correlates"
	ChannelDrives              = "drives"
	ChannelHedges              = "hedges"
	ChannelLiquidityCoupled    = "liquidity_coupled"
	ChannelPolicyExposed       = "policy_exposed"
	ChannelSentimentCoupled    = "sentiment_coupled"
	ChannelNarrativeSupports   = "narrative_supports"
	ChannelNarrativeContradicts = "narrative_contradicts"
	ChannelLeads               = "leads"
	ChannelLags                = "lags"
	ChannelResultsFrom         = "results_from"
	ChannelSupplyChainLinked   = "supply_chain_linked"

	ChannelIVCorrelates        = "iv_correlates"
	ChannelIVInverse           = "iv_inverse"
	ChannelVolRegimeCoupled    = "vol_regime_coupled"
	ChannelOptionsHedges       = "options_hedges"
	ChannelOptionsLeverages    = "options_leverages"
	ChannelSpreadStrategy      = "spread_strategy"
	ChannelCollarStrategy      = "collar_strategy"
	ChannelDeltaFlow           = "delta_flow"
	ChannelVegaExposure        = "vega_exposure"
	ChannelCrossUnderlyingHedge = "cross_underlying_hedge"
)

// NormalizeEndpoints returns (a, b) ordered so a <= b lexicographically,
// the storage invariant for undirected edges.
func NormalizeEndpoints(x, y string) (string, string) {
	if x <= y {
		return x, y
	}
	return y, x
}
