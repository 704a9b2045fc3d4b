package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically evicts expired client windows so idle clients do not
// accumulate for the lifetime of the process.
type Sweeper struct {
	limiter  *WindowLimiter
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a sweeper that runs limiter.Sweep every interval.
func NewSweeper(limiter *WindowLimiter, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		limiter:  limiter,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps on every tick until ctx is cancelled. It returns nil on shutdown.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Debug("starting rate window sweeper", "interval", s.interval.String())

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("stopping rate window sweeper")
			return nil
		case <-time.After(s.interval):
			if removed := s.limiter.Sweep(); removed > 0 {
				s.logger.Debug("evicted expired rate windows",
					"removed", removed,
					"tracked", s.limiter.Len(),
				)
			}
		}
	}
}
