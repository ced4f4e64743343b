package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/marketkg/sentinel/config"
	"github.com/marketkg/sentinel/internal/store"
)

// NewOptionsThink builds the OptionsThink worker, the options analogue of
// Think. Like Options, it is a stub until an options data provider is
// wired in; the committee/critic/executor pipeline it would feed is
// already domain-agnostic enough to take option decisions once that
// provider exists.
func NewOptionsThink(cfg *config.Config, st *store.Store, log *slog.Logger) *Worker {
	interval := cfg.ThinkInterval()
	if interval <= 0 {
		interval = time.Minute
	}
	return New("options_think", interval, func(ctx context.Context) error {
		log.Debug("options_think worker: stub tick, no options data provider configured")
		return nil
	})
}
