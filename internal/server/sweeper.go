package server

import (
	"context"
	"time"

	"budgetkit/internal/logger"
	"budgetkit/internal/services"
)

// Sweeper periodically closes elapsed periods and archives stale ones.
type Sweeper struct {
	periods  services.PeriodServicer
	interval time.Duration
	now      func() time.Time
}

// NewSweeper creates a Sweeper that runs every interval.
func NewSweeper(periods services.PeriodServicer, interval time.Duration) *Sweeper {
	return &Sweeper{periods: periods, interval: interval, now: time.Now}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.Sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep runs one close pass followed by one archive pass. Failures are
// logged; the next sweep retries whatever is left.
func (s *Sweeper) Sweep(ctx context.Context) {
	log := logger.Named("lifecycle")
	now := s.now()

	closed, err := s.periods.CloseExpired(ctx, now)
	if err != nil {
		log.Errorw("close sweep failed", "error", err)
	} else if closed.Processed > 0 || closed.Failed > 0 {
		log.Infow("close sweep finished", "closed", closed.Processed, "failed", closed.Failed)
	}

	archived, err := s.periods.ArchiveStale(ctx, now)
	if err != nil {
		log.Errorw("archive sweep failed", "error", err)
	} else if archived.Processed > 0 {
		log.Infow("archive sweep finished", "archived", archived.Processed)
	}
}
