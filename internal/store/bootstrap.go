package store

import (
	"context"
	"fmt"
	"time"

	"github.com/marketkg/sentinel/config"
	"github.com/marketkg/sentinel/internal/domain"
)

// agentSeeds names the committee agents represented as NodeAgent vertices
// in the knowledge graph.
var agentSeeds = []string{"momentum", "macro", "contrarian", "risk_manager"}

// BootstrapIfEmpty seeds the knowledge graph with investible, bellwether,
// regime, and agent nodes plus a starter edge set, but only when the nodes
// table is empty — it never overwrites a graph that has already accrued
// Dream/Think assessments.
func (s *Store) BootstrapIfEmpty(ctx context.Context, cfg *config.Config, now time.Time) error {
	nodes, err := s.Nodes(ctx)
	if err != nil {
		return fmt.Errorf("store.BootstrapIfEmpty: %w", err)
	}
	if len(nodes) > 0 {
		return nil
	}

	for _, sym := range cfg.Universe.Investibles {
		if err := s.UpsertNode(ctx, domain.Node{
			NodeID: sym, Kind: domain.NodeInvestible, Label: sym,
			Description: "tradable investible", LastTouched: now,
		}); err != nil {
			return fmt.Errorf("store.BootstrapIfEmpty: investible %s: %w", sym, err)
		}
	}
	for _, sym := range cfg.Universe.Bellwethers {
		if err := s.UpsertNode(ctx, domain.Node{
			NodeID: sym, Kind: domain.NodeBellwether, Label: sym,
			Description: "reference bellwether", LastTouched: now,
		}); err != nil {
			return fmt.Errorf("store.BootstrapIfEmpty: bellwether %s: %w", sym, err)
		}
	}
	for _, sym := range cfg.Universe.BellwethersYF {
		if err := s.UpsertNode(ctx, domain.Node{
			NodeID: sym, Kind: domain.NodeBellwether, Label: sym,
			Description: "macro bellwether (yfinance)", LastTouched: now,
		}); err != nil {
			return fmt.Errorf("store.BootstrapIfEmpty: yf bellwether %s: %w", sym, err)
		}
	}

	regimes := []string{"risk_off", "rates_up", "oil_shock", "semi_pulse"}
	for _, r := range regimes {
		if err := s.UpsertNode(ctx, domain.Node{
			NodeID: "regime:" + r, Kind: domain.NodeRegime, Label: r,
			Description: "derived macro regime signal", LastTouched: now,
		}); err != nil {
			return fmt.Errorf("store.BootstrapIfEmpty: regime %s: %w", r, err)
		}
	}

	for _, a := range agentSeeds {
		if err := s.UpsertNode(ctx, domain.Node{
			NodeID: "agent:" + a, Kind: domain.NodeAgent, Label: a,
			Description: "committee agent", LastTouched: now,
		}); err != nil {
			return fmt.Errorf("store.BootstrapIfEmpty: agent %s: %w", a, err)
		}
	}

	if err := s.seedStarterEdges(ctx, cfg, now); err != nil {
		return fmt.Errorf("store.BootstrapIfEmpty: %w", err)
	}
	return nil
}

// seedStarterEdges wires every investible to "risk_off" at a low
// exploratory strength, giving the Dream worker somewhere to start
// reassessing from on its very first pass rather than an edgeless graph.
func (s *Store) seedStarterEdges(ctx context.Context, cfg *config.Config, now time.Time) error {
	for _, sym := range cfg.Universe.Investibles {
		_, err := s.UpsertEdge(ctx, sym, "regime:risk_off", []domain.EdgeChannel{
			{Channel: domain.ChannelSentimentCoupled, Strength: 0.3},
		}, now)
		if err != nil {
			return fmt.Errorf("seed edge %s<->risk_off: %w", sym, err)
		}
	}
	return nil
}
