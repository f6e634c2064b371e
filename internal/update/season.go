package update

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ryanbastic/go-ladderwatch/internal/ladder"
	"github.com/ryanbastic/go-ladderwatch/internal/metrics"
	"github.com/ryanbastic/go-ladderwatch/internal/watermark"
)

// seasonPhase updates every region. Regions fail independently: the returned
// error is only set when the phase could not start at all.
func (o *Orchestrator) seasonPhase(ctx context.Context, logger *slog.Logger, begin time.Time) ([]RegionResult, error) {
	forced, err := o.tracker.IsDue(ctx, watermark.ForcedScan, o.opts.ForcedScanFrame)
	if err != nil {
		return nil, fmt.Errorf("check forced scan: %w", err)
	}
	if forced {
		logger.Info("forced full rescan due")
	}

	batches := o.opts.batches()
	slots := make([][]RegionResult, len(batches))

	g := new(errgroup.Group)
	g.SetLimit(len(o.opts.Regions) + o.opts.WorkerExtra)
	for i, batch := range batches {
		g.Go(func() error {
			for _, region := range batch {
				slots[i] = append(slots[i], o.updateRegion(ctx, logger, region, begin, forced))
			}
			return nil
		})
	}
	_ = g.Wait()

	results := make([]RegionResult, 0, len(o.opts.Regions))
	for _, s := range slots {
		results = append(results, s...)
	}
	return results, nil
}

// updateRegion fetches and persists one region and advances its watermarks
// on success. It never returns an error; failures are reported in the result.
func (o *Orchestrator) updateRegion(ctx context.Context, logger *slog.Logger, region ladder.Region, begin time.Time, forced bool) RegionResult {
	logger = logger.With("region", region.String())
	start := o.tracker.Now()
	res := RegionResult{Region: region, Forced: forced}

	res.Season, res.Teams, res.Err = o.guardedSync(ctx, logger, region, begin, forced)
	res.Duration = o.tracker.Now().Sub(start)

	o.recordRegion(region, start, res)
	if res.Err != nil {
		o.metrics.RegionUpdated(region.String(), metrics.OutcomeFailure)
		logger.Error("region update failed", "season", res.Season, "error", res.Err)
		return res
	}
	o.metrics.RegionUpdated(region.String(), metrics.OutcomeSuccess)
	logger.Info("region updated", "season", res.Season, "teams", res.Teams, "forced", forced, "duration", res.Duration)
	return res
}

func (o *Orchestrator) guardedSync(ctx context.Context, logger *slog.Logger, region ladder.Region, begin time.Time, forced bool) (season, teams int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("region update panicked: %v", r)
		}
	}()
	return o.syncRegion(ctx, logger, region, begin, forced)
}

func (o *Orchestrator) syncRegion(ctx context.Context, logger *slog.Logger, region ladder.Region, begin time.Time, forced bool) (int, int, error) {
	uc := watermark.FullScan()
	if !forced {
		var err error
		uc, err = o.tracker.Context(ctx, region.String())
		if err != nil {
			return 0, 0, fmt.Errorf("load update context: %w", err)
		}
	}

	season, current, err := o.seasons.CurrentOrLatest(ctx, region)
	if err != nil {
		return 0, 0, fmt.Errorf("resolve season: %w", err)
	}
	if err := o.write(ctx, func(ctx context.Context) error {
		return o.store.SaveSeason(ctx, season)
	}); err != nil {
		return season.ID, 0, fmt.Errorf("save season %d: %w", season.ID, err)
	}

	teams := 0
	for _, key := range ladder.LeagueKeys(season.ID, o.opts.Queues) {
		snap, err := o.ladders.FetchSnapshot(ctx, season, key, current)
		if err != nil {
			return season.ID, teams, fmt.Errorf("fetch league %s: %w", key, err)
		}
		if snap.League.Empty() {
			logger.Debug("league empty", "league", key.String())
			continue
		}
		var n int
		if err := o.write(ctx, func(ctx context.Context) error {
			var err error
			n, err = o.store.SaveLeague(ctx, snap, uc)
			return err
		}); err != nil {
			return season.ID, teams, fmt.Errorf("save league %s: %w", key, err)
		}
		teams += n
	}

	if _, err := o.tracker.Updated(ctx, region.String(), begin); err != nil {
		return season.ID, teams, fmt.Errorf("advance region watermark: %w", err)
	}
	if forced {
		if err := o.tracker.Advance(ctx, watermark.ForcedScan, begin); err != nil {
			return season.ID, teams, fmt.Errorf("advance forced scan watermark: %w", err)
		}
	}
	return season.ID, teams, nil
}

func (o *Orchestrator) recordRegion(region ladder.Region, attempt time.Time, res RegionResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.regions[region]
	if !ok {
		st = &regionState{}
		o.regions[region] = st
	}
	st.lastAttempt = attempt
	if res.Err != nil {
		st.lastError = res.Err.Error()
		return
	}
	st.lastError = ""
}
