// Package jobs runs the batch passes (price refresh, settlement, ranking,
// achievements) in the background, on demand or on a fixed interval.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/polylabs/league-engine/internal/metrics"
)

// Job names.
const (
	UpdatePrices      = "update_prices"
	UpdateRankings    = "update_rankings"
	CheckAchievements = "check_achievements"
	SettlePositions   = "settle_positions"
)

// ErrPanic wraps a panic recovered from a job.
var ErrPanic = errors.New("jobs: job panicked")

// Func is one batch pass.
type Func func(ctx context.Context) error

// Runner starts jobs in goroutines bound to a root context, so they outlive
// the request that triggered them and stop on shutdown.
type Runner struct {
	ctx context.Context
	wg  sync.WaitGroup
}

// NewRunner creates a Runner whose jobs are cancelled with ctx.
func NewRunner(ctx context.Context) *Runner {
	return &Runner{ctx: ctx}
}

// Dispatch starts fn in the background and returns immediately. Overlapping
// runs of the same job are not prevented.
func (r *Runner) Dispatch(name string, fn Func) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(name, fn)
	}()
}

// Run executes fn synchronously with the same logging and metrics as
// Dispatch.
func (r *Runner) Run(name string, fn Func) error {
	return r.run(name, fn)
}

// Wait blocks until every dispatched job has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) run(name string, fn Func) error {
	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()

	start := time.Now()
	slog.Info("job started", "job", name)

	err := call(r.ctx, name, fn)

	elapsed := time.Since(start)
	metrics.JobDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	if err != nil {
		metrics.JobRuns.WithLabelValues(name, "error").Inc()
		slog.Error("job failed", "job", name, "duration", elapsed, "err", err)
		return err
	}
	metrics.JobRuns.WithLabelValues(name, "ok").Inc()
	slog.Info("job finished", "job", name, "duration", elapsed)
	return nil
}

// call runs fn and turns a panic into ErrPanic.
func call(ctx context.Context, name string, fn Func) (err error) {
	defer func() {
		if v := recover(); v != nil {
			slog.Error("job panicked", "job", name, "panic", v, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrPanic, v)
		}
	}()
	return fn(ctx)
}
