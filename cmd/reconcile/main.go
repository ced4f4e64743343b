// Command reconcile is an offline auditing tool: it replays every trade
// in the store against the persisted position table and reports any
// symbol whose stored quantity or average cost has drifted from what the
// trade history implies, plus stale ticker-lookup rows for symbols that
// no longer appear in any open position.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/marketkg/sentinel/internal/domain"
	"github.com/marketkg/sentinel/internal/store"
)

const driftEpsilon = 0.01

func main() {
	dbPath := flag.String("db", "sentinel.db", "path to the sentinel SQLite database")
	flag.Parse()

	st, err := store.Open(*dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "reconcile: open store:", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx := context.Background()

	replayed, err := replayPositions(ctx, st.DB())
	if err != nil {
		fmt.Fprintln(os.Stderr, "reconcile: replay trades:", err)
		os.Exit(1)
	}

	stored, err := st.Positions(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "reconcile: load positions:", err)
		os.Exit(1)
	}
	storedBySymbol := make(map[string]domain.Position, len(stored))
	for _, p := range stored {
		storedBySymbol[p.Symbol] = p
	}

	mismatches := 0
	for symbol, want := range replayed {
		got, ok := storedBySymbol[symbol]
		if !ok {
			if math.Abs(want.qty) > driftEpsilon {
				fmt.Printf("MISSING  %-8s replay qty=%.4f but no stored position row\n", symbol, want.qty)
				mismatches++
			}
			continue
		}
		if math.Abs(got.Qty-want.qty) > driftEpsilon {
			fmt.Printf("QTY      %-8s stored=%.4f replay=%.4f\n", symbol, got.Qty, want.qty)
			mismatches++
		}
		if want.qty > driftEpsilon && math.Abs(got.AvgCost-want.avgCost) > driftEpsilon {
			fmt.Printf("AVGCOST  %-8s stored=%.4f replay=%.4f\n", symbol, got.AvgCost, want.avgCost)
			mismatches++
		}
	}
	for symbol := range storedBySymbol {
		if _, ok := replayed[symbol]; !ok {
			fmt.Printf("ORPHAN   %-8s stored position has no trade history\n", symbol)
			mismatches++
		}
	}

	stale, err := staleTickerLookups(ctx, st.DB(), storedBySymbol)
	if err != nil {
		fmt.Fprintln(os.Stderr, "reconcile: stale ticker lookups:", err)
		os.Exit(1)
	}
	for _, s := range stale {
		fmt.Printf("STALE    %-8s last lookup %s, not in any open position\n", s.symbol, s.ts.Format(time.RFC3339))
	}

	if mismatches == 0 && len(stale) == 0 {
		fmt.Println("reconcile: no discrepancies found")
		return
	}
	fmt.Printf("reconcile: %d position discrepancies, %d stale ticker lookups\n", mismatches, len(stale))
	os.Exit(1)
}

type replayedPosition struct {
	qty     float64
	avgCost float64
}

// replayPositions rebuilds each symbol's quantity and average cost purely
// from the trades table, using the same BUY/SELL accounting as
// store.ApplyFill, so it catches any divergence caused by a bug in the
// incremental update path rather than trusting the same code to audit
// itself.
func replayPositions(ctx context.Context, db *sql.DB) (map[string]replayedPosition, error) {
	rows, err := db.QueryContext(ctx, `SELECT symbol, side, qty, price FROM trades ORDER BY ts ASC, trade_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("replayPositions: query: %w", err)
	}
	defer rows.Close()

	out := make(map[string]replayedPosition)
	for rows.Next() {
		var symbol, side string
		var qty, price float64
		if err := rows.Scan(&symbol, &side, &qty, &price); err != nil {
			return nil, fmt.Errorf("replayPositions: scan: %w", err)
		}
		pos := out[symbol]
		switch domain.Side(side) {
		case domain.SideBuy:
			totalCost := pos.avgCost*pos.qty + price*qty
			newQty := pos.qty + qty
			if newQty > 0 {
				pos.avgCost = totalCost / newQty
			}
			pos.qty = newQty
		case domain.SideSell:
			pos.qty -= qty
			if pos.qty <= domain.PositionEpsilon {
				pos = replayedPosition{}
			}
		}
		out[symbol] = pos
	}
	return out, rows.Err()
}

type staleLookup struct {
	symbol string
	ts     time.Time
}

// staleTickerLookups flags the most recent lookup for any symbol that was
// fetched at some point but holds no position today, a sign the universe
// configuration dropped a symbol without cleaning up its cached history.
func staleTickerLookups(ctx context.Context, db *sql.DB, held map[string]domain.Position) ([]staleLookup, error) {
	rows, err := db.QueryContext(ctx, `SELECT symbol, MAX(ts) FROM ticker_lookups GROUP BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("staleTickerLookups: query: %w", err)
	}
	defer rows.Close()

	var out []staleLookup
	for rows.Next() {
		var symbol string
		var ts time.Time
		if err := rows.Scan(&symbol, &ts); err != nil {
			return nil, fmt.Errorf("staleTickerLookups: scan: %w", err)
		}
		if _, ok := held[symbol]; !ok {
			out = append(out, staleLookup{symbol: symbol, ts: ts})
		}
	}
	return out, rows.Err()
}
