package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/domain"
)

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, r domain.DateRange) Summary
}

// Scheduler runs the pipeline once at start and then on every interval tick.
// Runs never overlap: a tick that fires during a run is handled after it.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	lookback int
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler that covers the lookbackDays ending
// yesterday on each run.
func NewScheduler(runner Runner, interval time.Duration, lookbackDays int, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		lookback: lookbackDays,
		clock:    clockwork.NewRealClock(),
		logger:   logger,
	}
}

// Start blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval, "lookback_days", s.lookback)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	r := domain.DefaultRange(s.clock.Now(), s.lookback)
	summary := s.runner.Run(ctx, r)
	next := s.clock.Now().Add(s.interval)
	if summary.Success {
		s.logger.Info("scheduled run finished", "run_id", summary.RunID, "next_run", next)
		return
	}
	s.logger.Warn("scheduled run failed", "run_id", summary.RunID, "error", summary.Error, "next_run", next)
}
