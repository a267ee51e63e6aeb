// Package scheduler runs periodic maintenance: releasing quarantine holds
// whose duration has elapsed.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// QuarantineStore is the persistence surface the sweep needs.
type QuarantineStore interface {
	ReleaseExpiredQuarantines(ctx context.Context) (int, error)
}

type Scheduler struct {
	cron   *cron.Cron
	store  QuarantineStore
	logger *slog.Logger
}

func New(store QuarantineStore, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:   cron.New(),
		store:  store,
		logger: logger,
	}
}

// Start registers the sweep on the given cron schedule and starts the
// scheduler. Schedule accepts standard cron expressions and descriptors
// such as "@every 1h".
func (s *Scheduler) Start(schedule string) error {
	_, err := s.cron.AddFunc(schedule, s.sweep)
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	s.cron.Start()
	s.logger.Info("quarantine sweep scheduled", "schedule", schedule)
	return nil
}

// Stop stops the scheduler and returns a context that completes when any
// in-flight sweep finishes.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RunNow triggers a sweep outside the schedule.
func (s *Scheduler) RunNow() {
	s.sweep()
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	released, err := s.store.ReleaseExpiredQuarantines(ctx)
	if err != nil {
		s.logger.Error("quarantine sweep failed", "error", err)
		return
	}

	if released > 0 {
		s.logger.Info("quarantine sweep released expired holds",
			"released", released,
			"duration", time.Since(start))
	}
}
