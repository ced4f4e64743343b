// Package kg is the knowledge-graph engine: it owns edge upserts through
// the store, heuristic (non-LLM) channel proposals, and the LLM-backed
// adjudicator the Dream worker consults for assessments heuristics can't
// resolve on their own.
package kg

import (
	"context"
	"fmt"
	"time"

	"github.com/marketkg/sentinel/internal/domain"
	"github.com/marketkg/sentinel/internal/store"
)

// Graph wraps a *store.Store with the knowledge-graph-specific write path
// so callers never touch store.UpsertEdge directly and risk skipping
// normalization.
type Graph struct {
	Store *store.Store
}

// New builds a Graph backed by s.
func New(s *store.Store) *Graph {
	return &Graph{Store: s}
}

// Assess upserts one multi-channel edge assessment between a and b. It is
// a thin pass-through to the store today, but is the seam where the Dream
// worker's assessment pipeline attaches regardless of whether the channels
// came from heuristics or the LLM adjudicator.
func (g *Graph) Assess(ctx context.Context, a, b string, channels []domain.EdgeChannel, at time.Time) (domain.Edge, error) {
	if len(channels) == 0 {
		return domain.Edge{}, fmt.Errorf("kg.Assess(%s,%s): no channels proposed", a, b)
	}
	edge, err := g.Store.UpsertEdge(ctx, a, b, channels, at)
	if err != nil {
		return domain.Edge{}, fmt.Errorf("kg.Assess(%s,%s): %w", a, b, err)
	}
	return edge, nil
}

// Neighbors returns every node id connected to id by an edge, heaviest
// first.
func (g *Graph) Neighbors(ctx context.Context, id string) ([]string, error) {
	edges, err := g.Store.EdgesTouching(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("kg.Neighbors(%s): %w", id, err)
	}
	out := make([]string, 0, len(edges))
	for _, e := range edges {
		if e.NodeA == id {
			out = append(out, e.NodeB)
		} else {
			out = append(out, e.NodeA)
		}
	}
	return out, nil
}
