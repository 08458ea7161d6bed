package jobs

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Schedule is a job triggered on a fixed interval.
type Schedule struct {
	Name     string
	Interval time.Duration
	Fn       Func
}

// Scheduler triggers jobs on fixed intervals through a Runner.
type Scheduler struct {
	runner    *Runner
	schedules []Schedule
}

// NewScheduler creates a Scheduler. Schedules with a non-positive interval
// are ignored.
func NewScheduler(runner *Runner, schedules ...Schedule) *Scheduler {
	s := &Scheduler{runner: runner}
	for _, sc := range schedules {
		if sc.Interval <= 0 || sc.Fn == nil {
			slog.Warn("scheduler: ignoring job", "job", sc.Name, "interval", sc.Interval)
			continue
		}
		s.schedules = append(s.schedules, sc)
	}
	return s
}

// Run blocks until ctx is done. A failing run is logged and the loop keeps
// going.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, sc := range s.schedules {
		g.Go(func() error {
			return s.loop(ctx, sc)
		})
	}
	slog.Info("scheduler started", "jobs", len(s.schedules))
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, sc Schedule) error {
	ticker := time.NewTicker(sc.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = s.runner.Run(sc.Name, sc.Fn)
		}
	}
}
