package poke

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/keshon/pokebot/pkg/jobmgr"
)

// RepeatTask performs Do Count times, Interval apart. The first action also
// waits one interval. Failed actions are collected and do not stop the run.
type RepeatTask struct {
	Count    int
	Interval time.Duration
	Do       func(ctx context.Context) error
}

// Run executes the task until it completes or ctx is cancelled. It returns
// the number of successful actions.
func (r RepeatTask) Run(ctx context.Context) (int, error) {
	if r.Count <= 0 {
		return 0, nil
	}
	lim := rate.NewLimiter(rate.Every(r.Interval), 1)
	// Spend the initial burst so the first action is paced too.
	lim.Allow()

	var errs []error
	done := 0
	for range r.Count {
		if err := lim.Wait(ctx); err != nil {
			return done, errors.Join(append(errs, err)...)
		}
		if err := r.Do(ctx); err != nil {
			errs = append(errs, err)
			continue
		}
		done++
	}
	return done, errors.Join(errs...)
}

// Tasks tracks running repeat tasks, at most one per (scope, target).
type Tasks struct {
	jobs *jobmgr.Manager
	log  zerolog.Logger
}

// NewTasks ties every task to ctx; cancel it and call Wait to shut down.
func NewTasks(ctx context.Context, log zerolog.Logger) *Tasks {
	t := &Tasks{log: log}
	t.jobs = jobmgr.NewManager(ctx, func(msg string) {
		t.log.Debug().Str("job", msg).Msg("repeat task")
	})
	return t
}

func taskName(scope, target string) string {
	return "poke:" + scope + ":" + target
}

// Start runs task in the background. It fails with jobmgr.ErrRunning while
// another task for the same target is still in flight.
func (t *Tasks) Start(scope, target string, task RepeatTask) error {
	return t.jobs.StartAsync(taskName(scope, target), func(ctx context.Context) error {
		n, err := task.Run(ctx)
		t.log.Debug().Str("scope", scope).Str("target", target).Int("done", n).Int("planned", task.Count).Msg("repeat task finished")
		return err
	})
}

// Stop cancels the task for target, if any.
func (t *Tasks) Stop(scope, target string) error {
	return t.jobs.Stop(taskName(scope, target))
}

// Running lists active task names.
func (t *Tasks) Running() []string {
	return t.jobs.List()
}

// Wait blocks until all tasks have returned.
func (t *Tasks) Wait() {
	if len(t.jobs.List()) > 0 {
		t.log.Debug().Msg(t.jobs.Status())
	}
	t.jobs.Wait()
}
