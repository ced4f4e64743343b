package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/marketkg/sentinel/internal/domain"
)

// Cash returns the current free cash balance.
func (s *Store) Cash(ctx context.Context) (float64, error) {
	var v float64
	row := s.db.QueryRowContext(ctx, `SELECT v FROM portfolio WHERE k = 'cash'`)
	if err := row.Scan(&v); err != nil {
		return 0, fmt.Errorf("store.Cash: %w", err)
	}
	return v, nil
}

// AdjustCash adds delta (which may be negative) to the cash balance,
// returning the resulting balance.
func (s *Store) AdjustCash(ctx context.Context, delta float64) (float64, error) {
	var v float64
	err := s.withWriteLock(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `UPDATE portfolio SET v = v + ? WHERE k = 'cash'`, delta); err != nil {
			return fmt.Errorf("update: %w", err)
		}
		if err := tx.QueryRowContext(ctx, `SELECT v FROM portfolio WHERE k = 'cash'`).Scan(&v); err != nil {
			return fmt.Errorf("reload: %w", err)
		}
		return tx.Commit()
	})
	return v, err
}

// Position fetches a single position; ok is false if the symbol is flat.
func (s *Store) Position(ctx context.Context, symbol string) (domain.Position, bool, error) {
	var p domain.Position
	row := s.db.QueryRowContext(ctx, `
		SELECT symbol, qty, avg_cost, last_price, updated_at, executed_at
		FROM positions WHERE symbol = ?`, symbol)
	switch err := row.Scan(&p.Symbol, &p.Qty, &p.AvgCost, &p.LastPrice, &p.UpdatedAt, &p.ExecutedAt); {
	case err == nil:
		return p, true, nil
	case errors.Is(err, sql.ErrNoRows):
		return domain.Position{}, false, nil
	default:
		return domain.Position{}, false, fmt.Errorf("store.Position(%s): %w", symbol, err)
	}
}

// Positions returns every open position, ordered by symbol.
func (s *Store) Positions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, qty, avg_cost, last_price, updated_at, executed_at
		FROM positions ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("store.Positions: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		var p domain.Position
		if err := rows.Scan(&p.Symbol, &p.Qty, &p.AvgCost, &p.LastPrice, &p.UpdatedAt, &p.ExecutedAt); err != nil {
			return nil, fmt.Errorf("store.Positions: scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkPrice updates last_price for a held symbol without touching qty or
// cost basis. It is a no-op if the symbol is flat.
func (s *Store) MarkPrice(ctx context.Context, symbol string, price float64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE positions SET last_price = ?, updated_at = ? WHERE symbol = ?`, price, at, symbol)
	if err != nil {
		return fmt.Errorf("store.MarkPrice(%s): %w", symbol, err)
	}
	return nil
}

// ApplyFill folds one executed trade into the position for symbol: a BUY
// increases qty and recomputes a quantity-weighted average cost; a SELL
// decreases qty and leaves avg_cost untouched. A position whose resulting
// qty falls at or below domain.PositionEpsilon is deleted rather than kept
// at a near-zero qty. executed_at is carried forward from the pre-existing
// row on every mutation of a pre-existing position — it only resets to the
// fill time when a position is opened from flat.
func (s *Store) ApplyFill(ctx context.Context, trade domain.Trade, at time.Time) error {
	return s.withWriteLock(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback()

		var existing domain.Position
		var has bool
		row := tx.QueryRowContext(ctx, `
			SELECT symbol, qty, avg_cost, last_price, updated_at, executed_at
			FROM positions WHERE symbol = ?`, trade.Symbol)
		switch err := row.Scan(&existing.Symbol, &existing.Qty, &existing.AvgCost, &existing.LastPrice, &existing.UpdatedAt, &existing.ExecutedAt); {
		case err == nil:
			has = true
		case errors.Is(err, sql.ErrNoRows):
			has = false
		default:
			return fmt.Errorf("load position: %w", err)
		}

		executedAt := at
		var newQty, newAvgCost float64
		switch trade.Side {
		case domain.SideBuy:
			if has {
				newQty = existing.Qty + trade.Qty
				newAvgCost = (existing.Qty*existing.AvgCost + trade.Qty*trade.Price) / newQty
				executedAt = existing.ExecutedAt
			} else {
				newQty = trade.Qty
				newAvgCost = trade.Price
			}
		case domain.SideSell:
			if !has {
				return fmt.Errorf("sell with no existing position for %s", trade.Symbol)
			}
			newQty = existing.Qty - trade.Qty
			newAvgCost = existing.AvgCost
			executedAt = existing.ExecutedAt
		default:
			return fmt.Errorf("ApplyFill: unsupported side %q", trade.Side)
		}

		if newQty <= domain.PositionEpsilon {
			if _, err := tx.ExecContext(ctx, `DELETE FROM positions WHERE symbol = ?`, trade.Symbol); err != nil {
				return fmt.Errorf("delete closed position: %w", err)
			}
		} else {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO positions (symbol, qty, avg_cost, last_price, updated_at, executed_at)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(symbol) DO UPDATE SET
					qty=excluded.qty, avg_cost=excluded.avg_cost, last_price=excluded.last_price,
					updated_at=excluded.updated_at, executed_at=excluded.executed_at
			`, trade.Symbol, newQty, newAvgCost, trade.Price, at, executedAt)
			if err != nil {
				return fmt.Errorf("upsert position: %w", err)
			}
		}

		cashDelta := -trade.Notional
		if trade.Side == domain.SideSell {
			cashDelta = trade.Notional
		}
		if _, err := tx.ExecContext(ctx, `UPDATE portfolio SET v = v + ? WHERE k = 'cash'`, cashDelta); err != nil {
			return fmt.Errorf("adjust cash: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO trades (ts, symbol, side, qty, price, notional, reason, insight_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			trade.Ts, trade.Symbol, string(trade.Side), trade.Qty, trade.Price, trade.Notional, trade.Reason, trade.InsightID); err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}

		return tx.Commit()
	})
}

// Equity returns cash + sum of position market values.
func (s *Store) Equity(ctx context.Context) (float64, error) {
	cash, err := s.Cash(ctx)
	if err != nil {
		return 0, err
	}
	positions, err := s.Positions(ctx)
	if err != nil {
		return 0, err
	}
	total := cash
	for _, p := range positions {
		total += p.MarketValue()
	}
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return 0, fmt.Errorf("store.Equity: non-finite total (cash=%v)", cash)
	}
	return total, nil
}

// Trades returns the most recent n trades, newest first.
func (s *Store) Trades(ctx context.Context, n int) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trade_id, ts, symbol, side, qty, price, notional, reason, COALESCE(insight_id, '')
		FROM trades ORDER BY trade_id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("store.Trades: %w", err)
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		var tr domain.Trade
		var side string
		if err := rows.Scan(&tr.TradeID, &tr.Ts, &tr.Symbol, &side, &tr.Qty, &tr.Price, &tr.Notional, &tr.Reason, &tr.InsightID); err != nil {
			return nil, fmt.Errorf("store.Trades: scan: %w", err)
		}
		tr.Side = domain.Side(side)
		out = append(out, tr)
	}
	return out, rows.Err()
}

// InsertInsight writes a new committee insight.
func (s *Store) InsertInsight(ctx context.Context, in domain.Insight) error {
	starred := 0
	if in.Starred {
		starred = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO insights (insight_id, ts, title, body, agents_json, decisions_json, confidence, critic_score, starred, status, evidence_snapshot_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.InsightID, in.Ts, in.Title, in.Body, in.AgentsJSON, in.DecisionsJSON, in.Confidence, in.CriticScore, starred, string(in.Status), in.EvidenceSnapshotID)
	if err != nil {
		return fmt.Errorf("store.InsertInsight(%s): %w", in.InsightID, err)
	}
	return nil
}

// SetInsightStatus transitions an insight's lifecycle status.
func (s *Store) SetInsightStatus(ctx context.Context, insightID string, status domain.InsightStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE insights SET status = ? WHERE insight_id = ?`, string(status), insightID)
	if err != nil {
		return fmt.Errorf("store.SetInsightStatus(%s): %w", insightID, err)
	}
	return nil
}

// RecentInsights returns the most recent n insights, newest first.
func (s *Store) RecentInsights(ctx context.Context, n int) ([]domain.Insight, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT insight_id, ts, title, body, agents_json, decisions_json, confidence, critic_score, starred, status, COALESCE(evidence_snapshot_id, 0)
		FROM insights ORDER BY ts DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("store.RecentInsights: %w", err)
	}
	defer rows.Close()

	var out []domain.Insight
	for rows.Next() {
		var in domain.Insight
		var starred int
		var status string
		if err := rows.Scan(&in.InsightID, &in.Ts, &in.Title, &in.Body, &in.AgentsJSON, &in.DecisionsJSON, &in.Confidence, &in.CriticScore, &starred, &status, &in.EvidenceSnapshotID); err != nil {
			return nil, fmt.Errorf("store.RecentInsights: scan: %w", err)
		}
		in.Starred = starred != 0
		in.Status = domain.InsightStatus(status)
		out = append(out, in)
	}
	return out, rows.Err()
}

// AppendEvent writes one audit-trail row to dream_log, truncating Detail
// to domain.MaxEventDetailLen.
func (s *Store) AppendEvent(ctx context.Context, e domain.EventLogEntry) error {
	detail := e.Detail
	if len(detail) > domain.MaxEventDetailLen {
		detail = detail[:domain.MaxEventDetailLen]
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dream_log (ts, actor, action, detail) VALUES (?, ?, ?, ?)`,
		e.Ts, e.Actor, e.Action, detail)
	if err != nil {
		return fmt.Errorf("store.AppendEvent: %w", err)
	}
	return nil
}

// RecentEvents returns the most recent n audit-trail rows, newest first.
func (s *Store) RecentEvents(ctx context.Context, n int) ([]domain.EventLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT log_id, ts, actor, action, detail FROM dream_log ORDER BY log_id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("store.RecentEvents: %w", err)
	}
	defer rows.Close()

	var out []domain.EventLogEntry
	for rows.Next() {
		var e domain.EventLogEntry
		if err := rows.Scan(&e.LogID, &e.Ts, &e.Actor, &e.Action, &e.Detail); err != nil {
			return nil, fmt.Errorf("store.RecentEvents: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
