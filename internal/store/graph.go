package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/marketkg/sentinel/internal/domain"
)

// UpsertNode inserts or updates a node's label/description/score, leaving
// degree untouched (degree is only ever recomputed from edges).
func (s *Store) UpsertNode(ctx context.Context, n domain.Node) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nodes (node_id, kind, label, description, score, degree, last_touched)
		VALUES (?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			kind=excluded.kind, label=excluded.label, description=excluded.description,
			score=excluded.score, last_touched=excluded.last_touched
	`, n.NodeID, string(n.Kind), n.Label, n.Description, n.Score, n.LastTouched)
	if err != nil {
		return fmt.Errorf("store.UpsertNode(%s): %w", n.NodeID, err)
	}
	return nil
}

// Node fetches a single node by id.
func (s *Store) Node(ctx context.Context, id string) (domain.Node, error) {
	var n domain.Node
	var kind string
	var lastTouched sql.NullTime
	row := s.db.QueryRowContext(ctx, `
		SELECT node_id, kind, label, description, score, degree, last_touched
		FROM nodes WHERE node_id = ?`, id)
	if err := row.Scan(&n.NodeID, &kind, &n.Label, &n.Description, &n.Score, &n.Degree, &lastTouched); err != nil {
		return domain.Node{}, fmt.Errorf("store.Node(%s): %w", id, err)
	}
	n.Kind = domain.NodeKind(kind)
	n.LastTouched = lastTouched.Time
	return n, nil
}

// Nodes returns every node, ordered by node_id.
func (s *Store) Nodes(ctx context.Context) ([]domain.Node, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT node_id, kind, label, description, score, degree, last_touched
		FROM nodes ORDER BY node_id`)
	if err != nil {
		return nil, fmt.Errorf("store.Nodes: %w", err)
	}
	defer rows.Close()

	var out []domain.Node
	for rows.Next() {
		var n domain.Node
		var kind string
		var lastTouched sql.NullTime
		if err := rows.Scan(&n.NodeID, &kind, &n.Label, &n.Description, &n.Score, &n.Degree, &lastTouched); err != nil {
			return nil, fmt.Errorf("store.Nodes: scan: %w", err)
		}
		n.Kind = domain.NodeKind(kind)
		n.LastTouched = lastTouched.Time
		out = append(out, n)
	}
	return out, rows.Err()
}

// EdgeWeights maps each base channel to the weight it contributes when
// present, the grounding for edge.Weight aggregation (spec §4.6.2).
var EdgeWeights = map[string]float64{
	domain.ChannelCorrelates:           0.55,
	domain.ChannelInverseCorrelates:    0.55,
	domain.ChannelDrives:               0.70,
	domain.ChannelHedges:               0.60,
	domain.ChannelLiquidityCoupled:     0.40,
	domain.ChannelPolicyExposed:        0.50,
	domain.ChannelSentimentCoupled:     0.35,
	domain.ChannelNarrativeSupports:    0.30,
	domain.ChannelNarrativeContradicts: 0.30,
	domain.ChannelLeads:                0.45,
	domain.ChannelLags:                 0.45,
	domain.ChannelResultsFrom:          0.65,
	domain.ChannelSupplyChainLinked:    0.50,

	domain.ChannelIVCorrelates:         0.55,
	domain.ChannelIVInverse:            0.55,
	domain.ChannelVolRegimeCoupled:     0.45,
	domain.ChannelOptionsHedges:        0.60,
	domain.ChannelOptionsLeverages:     0.50,
	domain.ChannelSpreadStrategy:       0.40,
	domain.ChannelCollarStrategy:       0.40,
	domain.ChannelDeltaFlow:            0.35,
	domain.ChannelVegaExposure:         0.35,
	domain.ChannelCrossUnderlyingHedge: 0.45,
}

// weightFromChannels combines channel strengths into a single edge weight:
// for each channel present, strength * base weight, summed and clamped to
// [0,1]. A directional "base:A->B" channel uses its base's weight. The
// channel with the highest single contribution becomes TopChannel.
func weightFromChannels(channels []domain.EdgeChannel) (weight float64, top string) {
	bestContrib := -1.0
	for _, c := range channels {
		base := c.Channel
		if i := strings.IndexByte(base, ':'); i >= 0 {
			base = base[:i]
		}
		contrib := c.Strength * EdgeWeights[base]
		weight += contrib
		if contrib > bestContrib {
			bestContrib = contrib
			top = c.Channel
		}
	}
	if weight > 1 {
		weight = 1
	}
	return weight, top
}

// UpsertEdge replaces the full channel set for the (a,b) edge, recomputes
// its weight and top channel, and bumps assessment bookkeeping. It runs in
// a transaction: delete+insert of edge_channels is atomic, never leaving a
// window with a stale channel set (spec §5 "atomic channel replace").
func (s *Store) UpsertEdge(ctx context.Context, a, b string, channels []domain.EdgeChannel, at time.Time) (domain.Edge, error) {
	na, nb := domain.NormalizeEndpoints(a, b)
	var edge domain.Edge

	err := s.withWriteLock(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback()

		weight, top := weightFromChannels(channels)

		_, err = tx.ExecContext(ctx, `
			INSERT INTO edges (node_a, node_b, weight, top_channel, last_assessed, assessment_count)
			VALUES (?, ?, ?, ?, ?, 1)
			ON CONFLICT(node_a, node_b) DO UPDATE SET
				weight=excluded.weight, top_channel=excluded.top_channel,
				last_assessed=excluded.last_assessed,
				assessment_count = assessment_count + 1
		`, na, nb, weight, top, at)
		if err != nil {
			return fmt.Errorf("upsert edge: %w", err)
		}
		// LastInsertId is not set by the DO UPDATE path, so look the id up.
		var edgeID int64
		if err := tx.QueryRowContext(ctx, `SELECT edge_id FROM edges WHERE node_a=? AND node_b=?`, na, nb).Scan(&edgeID); err != nil {
			return fmt.Errorf("lookup edge id: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM edge_channels WHERE edge_id = ?`, edgeID); err != nil {
			return fmt.Errorf("clear channels: %w", err)
		}
		for _, c := range channels {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO edge_channels (edge_id, channel, strength) VALUES (?, ?, ?)
			`, edgeID, c.Channel, c.Strength); err != nil {
				return fmt.Errorf("insert channel %s: %w", c.Channel, err)
			}
		}

		if err := recomputeDegree(ctx, tx, na); err != nil {
			return err
		}
		if err := recomputeDegree(ctx, tx, nb); err != nil {
			return err
		}

		row := tx.QueryRowContext(ctx, `
			SELECT edge_id, node_a, node_b, weight, top_channel, last_assessed, assessment_count
			FROM edges WHERE edge_id = ?`, edgeID)
		var top2 sql.NullString
		if err := row.Scan(&edge.EdgeID, &edge.NodeA, &edge.NodeB, &edge.Weight, &top2, &edge.LastAssessed, &edge.AssessmentCount); err != nil {
			return fmt.Errorf("reload edge: %w", err)
		}
		edge.TopChannel = top2.String

		return tx.Commit()
	})
	return edge, err
}

// recomputeDegree sets nodes.degree to the count of edges touching id.
func recomputeDegree(ctx context.Context, tx *sql.Tx, id string) error {
	var degree int
	row := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM edges WHERE node_a = ? OR node_b = ?`, id, id)
	if err := row.Scan(&degree); err != nil {
		return fmt.Errorf("recomputeDegree(%s): %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE nodes SET degree = ? WHERE node_id = ?`, degree, id); err != nil {
		return fmt.Errorf("recomputeDegree(%s): update: %w", id, err)
	}
	return nil
}

// Edge fetches the edge between a and b along with its channels, if any.
func (s *Store) Edge(ctx context.Context, a, b string) (domain.Edge, []domain.EdgeChannel, error) {
	na, nb := domain.NormalizeEndpoints(a, b)
	var e domain.Edge
	var top sql.NullString
	row := s.db.QueryRowContext(ctx, `
		SELECT edge_id, node_a, node_b, weight, top_channel, last_assessed, assessment_count
		FROM edges WHERE node_a = ? AND node_b = ?`, na, nb)
	if err := row.Scan(&e.EdgeID, &e.NodeA, &e.NodeB, &e.Weight, &top, &e.LastAssessed, &e.AssessmentCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Edge{}, nil, nil
		}
		return domain.Edge{}, nil, fmt.Errorf("store.Edge(%s,%s): %w", a, b, err)
	}
	e.TopChannel = top.String

	rows, err := s.db.QueryContext(ctx, `
		SELECT edge_id, channel, strength FROM edge_channels WHERE edge_id = ? ORDER BY channel`, e.EdgeID)
	if err != nil {
		return e, nil, fmt.Errorf("store.Edge(%s,%s): channels: %w", a, b, err)
	}
	defer rows.Close()
	var chans []domain.EdgeChannel
	for rows.Next() {
		var c domain.EdgeChannel
		if err := rows.Scan(&c.EdgeID, &c.Channel, &c.Strength); err != nil {
			return e, nil, fmt.Errorf("store.Edge(%s,%s): scan channel: %w", a, b, err)
		}
		chans = append(chans, c)
	}
	return e, chans, rows.Err()
}

// EdgesTouching returns every edge incident to id, heaviest weight first.
func (s *Store) EdgesTouching(ctx context.Context, id string) ([]domain.Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT edge_id, node_a, node_b, weight, top_channel, last_assessed, assessment_count
		FROM edges WHERE node_a = ? OR node_b = ?`, id, id)
	if err != nil {
		return nil, fmt.Errorf("store.EdgesTouching(%s): %w", id, err)
	}
	defer rows.Close()

	var out []domain.Edge
	for rows.Next() {
		var e domain.Edge
		var top sql.NullString
		if err := rows.Scan(&e.EdgeID, &e.NodeA, &e.NodeB, &e.Weight, &top, &e.LastAssessed, &e.AssessmentCount); err != nil {
			return nil, fmt.Errorf("store.EdgesTouching(%s): scan: %w", id, err)
		}
		e.TopChannel = top.String
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	return out, rows.Err()
}
