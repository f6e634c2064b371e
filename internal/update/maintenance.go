package update

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ryanbastic/go-ladderwatch/internal/config"
	"github.com/ryanbastic/go-ladderwatch/internal/storage"
	"github.com/ryanbastic/go-ladderwatch/internal/watermark"
)

type step struct {
	name string
	fn   func(ctx context.Context) error
}

// runSteps runs every step on the writer, continuing past failures.
func (o *Orchestrator) runSteps(ctx context.Context, logger *slog.Logger, steps []step) error {
	var errs []error
	for _, s := range steps {
		start := o.tracker.Now()
		if err := o.write(ctx, s.fn); err != nil {
			logger.Error("maintenance step failed", "step", s.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		logger.Debug("maintenance step finished", "step", s.name, "duration", o.tracker.Now().Sub(start))
	}
	return errors.Join(errs...)
}

// heavyStatsPhase recomputes aggregate statistics and prunes the team state
// history. Under the best-effort policy the watermark advances even when a
// step failed.
func (o *Orchestrator) heavyStatsPhase(ctx context.Context, logger *slog.Logger, begin time.Time) (bool, error) {
	since := begin.Add(-o.opts.HeavyStatsFrame)
	prev, err := o.tracker.Get(ctx, watermark.HeavyStats)
	if err != nil {
		return false, err
	}
	if prev != nil {
		since = *prev
	}

	steps := []step{
		{"merge_queue_stats", func(ctx context.Context) error {
			season, err := o.maintainer.MaxSeason(ctx)
			if err != nil || season == 0 {
				return err
			}
			return o.maintainer.MergeQueueStats(ctx, season)
		}},
		{"archive_team_states", func(ctx context.Context) error {
			n, err := o.maintainer.ArchiveTeamStates(ctx, since)
			logger.Debug("team states archived", "rows", n)
			return err
		}},
	}
	if o.opts.ArchiveRetention > 0 {
		steps = append(steps, step{"clean_archive", func(ctx context.Context) error {
			n, err := o.maintainer.CleanArchive(ctx, begin.Add(-o.opts.ArchiveRetention))
			logger.Debug("archive cleaned", "rows", n)
			return err
		}})
	}
	if o.opts.TeamStateRetention > 0 {
		steps = append(steps, step{"remove_expired_team_states", func(ctx context.Context) error {
			n, err := o.maintainer.RemoveExpiredTeamStates(ctx, begin.Add(-o.opts.TeamStateRetention))
			logger.Debug("expired team states removed", "rows", n)
			return err
		}})
	}
	steps = append(steps,
		step{"vacuum", o.maintainer.Vacuum},
		step{"analyze", o.maintainer.Analyze},
	)

	err = o.runSteps(ctx, logger, steps)
	return o.opts.HeavyStatsPolicy != config.HeavyStatsStrict, err
}

// frequentMaintenance rebuilds the match history index.
func (o *Orchestrator) frequentMaintenance(ctx context.Context, logger *slog.Logger, _ time.Time) (bool, error) {
	return false, o.runSteps(ctx, logger, []step{
		{"reindex_" + storage.IndexMatchUpdated, func(ctx context.Context) error {
			return o.maintainer.Reindex(ctx, storage.IndexMatchUpdated)
		}},
	})
}

// infrequentMaintenance rebuilds the team state indexes and purges expired
// match history.
func (o *Orchestrator) infrequentMaintenance(ctx context.Context, logger *slog.Logger, begin time.Time) (bool, error) {
	var steps []step
	for _, index := range storage.TeamStateIndexes {
		steps = append(steps, step{"reindex_" + index, func(ctx context.Context) error {
			return o.maintainer.Reindex(ctx, index)
		}})
	}
	if o.opts.MatchRetention > 0 {
		steps = append(steps, step{"purge_expired_matches", func(ctx context.Context) error {
			n, err := o.maintainer.PurgeExpiredMatches(ctx, begin.Add(-o.opts.MatchRetention))
			logger.Debug("expired matches purged", "rows", n)
			return err
		}})
	}
	return false, o.runSteps(ctx, logger, steps)
}
