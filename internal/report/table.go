// Package report renders worker stats and recent activity as terminal
// tables for the sentinel CLI's -table flag, grounded on the teacher's
// console summary output but backed by tablewriter instead of hand-rolled
// column padding.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/marketkg/sentinel/internal/domain"
	"github.com/marketkg/sentinel/internal/worker"
)

// WorkerStats renders one row per worker: tick/error counts, last run
// time, and last error if any.
func WorkerStats(w io.Writer, stats []worker.Stats) {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"worker", "running", "ticks", "errors", "last run", "last error"})
	for _, s := range stats {
		lastRun := "-"
		if !s.LastRunAt.IsZero() {
			lastRun = s.LastRunAt.Format(time.RFC3339)
		}
		lastErr := s.LastErr
		if lastErr == "" {
			lastErr = "-"
		}
		table.Append([]string{
			s.Name,
			fmt.Sprintf("%v", s.Running),
			fmt.Sprintf("%d", s.Ticks),
			fmt.Sprintf("%d", s.Errors),
			lastRun,
			lastErr,
		})
	}
	table.Render()
}

// Insights renders the most recent insights: title, confidence, critic
// score, starred flag, and status.
func Insights(w io.Writer, insights []domain.Insight) {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"ts", "title", "confidence", "score", "starred", "status"})
	for _, in := range insights {
		table.Append([]string{
			in.Ts.Format(time.RFC3339),
			in.Title,
			fmt.Sprintf("%.2f", in.Confidence),
			fmt.Sprintf("%.2f", in.CriticScore),
			fmt.Sprintf("%v", in.Starred),
			string(in.Status),
		})
	}
	table.Render()
}

// Portfolio renders cash, equity, and held positions.
func Portfolio(w io.Writer, cash, equity float64, positions []domain.Position) {
	fmt.Fprintf(w, "cash: %.2f   equity: %.2f\n", cash, equity)
	table := tablewriter.NewWriter(w)
	table.Header([]string{"symbol", "qty", "avg cost", "last price"})
	for _, p := range positions {
		table.Append([]string{
			p.Symbol,
			fmt.Sprintf("%.4f", p.Qty),
			fmt.Sprintf("%.2f", p.AvgCost),
			fmt.Sprintf("%.2f", p.LastPrice),
		})
	}
	table.Render()
}
