// Package scheduler runs periodic maintenance jobs such as encryption key
// rotation on an injected clock.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// JobFunc is one periodic job.
//
// lastRunAt is the start time of the last successful run (zero before the
// first success); currentTime is the time this run was started. Errors are
// logged and leave lastRunAt unchanged. Panics are recovered and logged.
type JobFunc func(ctx context.Context, lastRunAt, currentTime time.Time) error

type job struct {
	name  string
	every time.Duration
	run   JobFunc
}

// Runner executes registered jobs at fixed intervals until stopped.
type Runner struct {
	clock  clock.Clock
	logger *zap.Logger

	mu      sync.Mutex
	jobs    []job
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New returns a Runner. A nil clk selects the wall clock.
func New(clk clock.Clock, logger *zap.Logger) *Runner {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{clock: clk, logger: logger}
}

// Register adds a job. Jobs must be registered before Start.
func (r *Runner) Register(name string, every time.Duration, fn JobFunc) error {
	if every <= 0 || fn == nil {
		return fmt.Errorf("scheduler: invalid job %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errors.New("scheduler: runner already started")
	}
	r.jobs = append(r.jobs, job{name: name, every: every, run: fn})
	return nil
}

// Start launches one goroutine per job. The first run of each job happens
// one interval after Start. Jobs stop when ctx is cancelled or Stop is called.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	ctx, r.cancel = context.WithCancel(ctx)

	for _, j := range r.jobs {
		t := r.clock.Ticker(j.every)
		r.wg.Add(1)
		go r.loop(ctx, j, t)
	}
}

func (r *Runner) loop(ctx context.Context, j job, t *clock.Ticker) {
	defer r.wg.Done()
	defer t.Stop()

	var lastRunAt time.Time
	for {
		select {
		case <-t.C:
			if ok := r.runOnce(ctx, j, lastRunAt); !ok.IsZero() {
				lastRunAt = ok
			}
		case <-ctx.Done():
			return
		}
	}
}

// runOnce returns the start time of a successful run, or the zero time.
func (r *Runner) runOnce(ctx context.Context, j job, lastRunAt time.Time) (succeeded time.Time) {
	if ctx.Err() != nil {
		return time.Time{}
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("scheduled job panic", zap.String("job", j.name), zap.Any("panic", rec))
			succeeded = time.Time{}
		}
	}()

	startAt := r.clock.Now().UTC()
	r.logger.Debug("scheduled job starting", zap.String("job", j.name))
	if err := j.run(ctx, lastRunAt, startAt); err != nil {
		r.logger.Error("scheduled job failed", zap.String("job", j.name), zap.Error(err))
		return time.Time{}
	}
	r.logger.Debug("scheduled job succeeded", zap.String("job", j.name), zap.Duration("elapsed", r.clock.Since(startAt)))
	return startAt
}

// Stop cancels every job and waits for running ones to return.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}
