package task

import (
	"context"
	"log/slog"
	"time"

	"github.com/matsen/octosphere/internal/storage"
)

// DefaultTick is how often the scheduler looks for due researchers.
const DefaultTick = time.Hour

// DueLister finds researchers whose last sync is older than cutoff.
type DueLister interface {
	UsersNeedingSync(ctx context.Context, cutoff time.Time) ([]storage.UserConfig, error)
}

// Scheduler periodically runs every researcher that is due.
type Scheduler struct {
	runner   *Runner
	due      DueLister
	interval time.Duration
	tick     time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTick sets the polling period.
func WithTick(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.tick = d
	}
}

// WithSchedulerLogger sets the scheduler logger.
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// WithSchedulerClock sets the time source used to compute the cutoff.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		s.now = now
	}
}

// NewScheduler creates a Scheduler that syncs researchers not synced within
// interval.
func NewScheduler(runner *Runner, due DueLister, interval time.Duration, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		runner:   runner,
		due:      due,
		interval: interval,
		tick:     DefaultTick,
		logger:   slog.New(slog.DiscardHandler),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunOnce syncs every due researcher, one after another.
func (s *Scheduler) RunOnce(ctx context.Context) []Outcome {
	cutoff := s.now().Add(-s.interval)
	users, err := s.due.UsersNeedingSync(ctx, cutoff)
	if err != nil {
		s.logger.Error("listing users needing sync failed", "error", err)
		return nil
	}
	s.logger.Info("scheduled sync pass", "due", len(users), "cutoff", cutoff.Format(time.RFC3339))

	outcomes := make([]Outcome, 0, len(users))
	for _, u := range users {
		if ctx.Err() != nil {
			break
		}
		outcomes = append(outcomes, s.runner.RunFor(ctx, u.ORCID))
	}
	return outcomes
}

// Run calls RunOnce immediately and then every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		s.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
