package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"github.com/drakejin/cday2025-minigame-sub000/logger"
)

// Scheduler runs the background maintenance jobs: the stale result sweep and
// the overdue round check. Rounds are never ended automatically; overdue ones
// are only reported so an admin can end them.
type Scheduler struct {
	sched   gocron.Scheduler
	scoring *ScoringService
	rounds  *RoundService
	log     *logger.Logger
}

func NewScheduler(clock clockwork.Clock, log *logger.Logger, scoring *ScoringService, rounds *RoundService) (*Scheduler, error) {
	if log == nil {
		log = logger.Nop()
	}
	opts := []gocron.SchedulerOption{gocron.WithLocation(time.UTC)}
	if clock != nil {
		opts = append(opts, gocron.WithClock(clock))
	}
	sched, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, err
	}
	return &Scheduler{sched: sched, scoring: scoring, rounds: rounds, log: log}, nil
}

// Start registers the jobs and starts the scheduler. A zero interval disables the sweep.
func (s *Scheduler) Start(ctx context.Context, sweepEvery time.Duration) error {
	if sweepEvery > 0 && s.scoring != nil {
		if _, err := s.sched.NewJob(
			gocron.DurationJob(sweepEvery),
			gocron.NewTask(func() { s.runSweep(ctx) }),
			gocron.WithName("stale-sweep"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return err
		}
	}

	if s.rounds != nil {
		if _, err := s.sched.NewJob(
			gocron.DurationJob(1*time.Minute),
			gocron.NewTask(func() { s.reportOverdue(ctx) }),
			gocron.WithName("overdue-rounds"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return err
		}
	}

	s.sched.Start()
	s.log.Info("scheduler started", "jobs", len(s.sched.Jobs()), "sweep_interval", sweepEvery)
	return nil
}

func (s *Scheduler) runSweep(ctx context.Context) {
	report, err := s.scoring.SweepStale(ctx)
	if err != nil {
		s.log.Warn("[Scheduler] stale sweep failed", "error", err)
		return
	}
	if report.Stale > 0 || report.Filled > 0 {
		s.log.Info("[Scheduler] stale sweep", "stale", report.Stale, "recomputed", report.Recomputed,
			"filled", report.Filled, "skipped", report.Skipped, "failed", report.Failed)
	}
}

func (s *Scheduler) reportOverdue(ctx context.Context) {
	rounds, err := s.rounds.Overdue(ctx)
	if err != nil {
		s.log.Warn("[Scheduler] overdue check failed", "error", err)
		return
	}
	for _, r := range rounds {
		s.log.Warn("[Scheduler] round past its end time is still active",
			"round_id", r.ID, "round_number", r.RoundNumber, "end_time", r.EndTime)
	}
}

func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}
