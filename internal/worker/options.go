package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/marketkg/sentinel/config"
	"github.com/marketkg/sentinel/internal/store"
)

// NewOptions builds the Options worker. It is a stub: options chain
// ingestion needs a funded data provider this deployment doesn't carry,
// so it only logs a heartbeat event every tick. The node/edge channel
// vocabulary for options relationships (internal/domain/graph.go) and the
// options-specific heuristics (internal/kg/heuristics.go) are already in
// place for whichever provider gets wired in later.
func NewOptions(cfg *config.Config, st *store.Store, log *slog.Logger) *Worker {
	interval := cfg.ThinkInterval()
	if interval <= 0 {
		interval = time.Minute
	}
	return New("options", interval, func(ctx context.Context) error {
		log.Debug("options worker: stub tick, no options data provider configured")
		return nil
	})
}
