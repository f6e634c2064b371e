// Package schedule drives update cycles and hourly housekeeping on cron
// timers.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Cron specs of the housekeeping jobs, with a leading seconds field.
const (
	SeasonStateSpec = "0 59 * * * *"
	EvictSpec       = "0 0 * * * *"
)

// Runner is the work driven by the timers.
type Runner interface {
	Tick(ctx context.Context)
	SnapshotSeasonState(ctx context.Context) error
}

// Evicter drops cached state so it is reloaded on next use.
type Evicter interface {
	Evict()
}

type job struct {
	name string
	spec string
	run  func(ctx context.Context)
}

// Scheduler runs the update tick and the housekeeping jobs. A job that is
// still running when its next activation comes is skipped.
type Scheduler struct {
	tick   time.Duration
	runner Runner
	cache  Evicter
	logger *slog.Logger
}

// New creates a Scheduler that ticks every tick.
func New(tick time.Duration, runner Runner, cache Evicter, logger *slog.Logger) (*Scheduler, error) {
	if tick < time.Second {
		return nil, fmt.Errorf("update tick %s is shorter than one second", tick)
	}
	if runner == nil {
		return nil, errors.New("scheduler needs a runner")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{tick: tick, runner: runner, cache: cache, logger: logger}, nil
}

func (s *Scheduler) jobs() []job {
	jobs := []job{
		{name: "update", spec: "@every " + s.tick.String(), run: s.runner.Tick},
		{name: "season_state", spec: SeasonStateSpec, run: func(ctx context.Context) {
			if err := s.runner.SnapshotSeasonState(ctx); err != nil {
				s.logger.Error("season state snapshot failed", "error", err)
			}
		}},
	}
	if s.cache != nil {
		jobs = append(jobs, job{name: "evict_watermarks", spec: EvictSpec, run: func(context.Context) {
			s.cache.Evict()
			s.logger.Debug("watermark cache evicted")
		}})
	}
	return jobs
}

// Run starts the timers and blocks until ctx is cancelled. Running jobs are
// waited for before it returns.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := cronLogger{s.logger}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	for _, j := range s.jobs() {
		if _, err := c.AddFunc(j.spec, func() { j.run(ctx) }); err != nil {
			return fmt.Errorf("schedule %s %q: %w", j.name, j.spec, err)
		}
		s.logger.Info("job scheduled", "job", j.name, "spec", j.spec)
	}

	c.Start()
	s.logger.Info("scheduler started", "tick", s.tick)
	<-ctx.Done()

	s.logger.Info("scheduler stopping")
	<-c.Stop().Done()
	return nil
}

// cronLogger routes cron's logr-style calls to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
