// Package sweeper removes expired report number reservations in the
// background so abandoned holds return to the allocation pool without
// waiting for the next reserve attempt to reclaim them.
package sweeper

import (
	"context"
	"time"

	"fiunum/pkg/logger"
)

// DefaultInterval is how often the sweeper checks for expired holds.
const DefaultInterval = 2 * time.Minute

// Cleaner is the part of the reservation service the sweeper drives.
type Cleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Sweeper periodically purges expired reservations.
type Sweeper struct {
	cleaner  Cleaner
	log      *logger.Logger
	interval time.Duration
}

// New creates a sweeper. A non-positive interval falls back to DefaultInterval.
func New(cleaner Cleaner, log *logger.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		cleaner:  cleaner,
		log:      log.WithComponent("sweeper"),
		interval: interval,
	}
}

// Run blocks, sweeping on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.log.Infow("sweeper started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Sweep once on startup so a restart clears stale holds immediately.
	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	removed, err := s.cleaner.CleanupExpired(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.Errorw("cleanup of expired reservations failed", "error", err)
		return
	}
	if removed > 0 {
		s.log.Infow("removed expired reservations", "count", removed)
	}
}
