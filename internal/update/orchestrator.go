// Package update schedules and runs ladder update cycles.
package update

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ryanbastic/go-ladderwatch/internal/blizzard"
	"github.com/ryanbastic/go-ladderwatch/internal/ladder"
	"github.com/ryanbastic/go-ladderwatch/internal/metrics"
	"github.com/ryanbastic/go-ladderwatch/internal/storage"
	"github.com/ryanbastic/go-ladderwatch/internal/watermark"
)

// ErrAllRegionsFailed aborts a cycle in which no region could be updated.
var ErrAllRegionsFailed = errors.New("all regions failed")

// Phase names used in reports and metrics.
const (
	PhaseSeason                = "season"
	PhaseMatch                 = "match"
	PhaseHeavyStats            = "heavy_stats"
	PhaseMaintenanceFrequent   = "maintenance_frequent"
	PhaseMaintenanceInfrequent = "maintenance_infrequent"
)

// Seasons resolves the season a region should be updated for.
type Seasons interface {
	CurrentOrLatest(ctx context.Context, region ladder.Region) (ladder.Season, bool, error)
}

// Ladders fetches one league with all of its division ladders.
type Ladders interface {
	FetchSnapshot(ctx context.Context, season ladder.Season, key ladder.LeagueKey, current bool) (ladder.LeagueSnapshot, error)
}

// Matches streams match histories.
type Matches interface {
	FetchMatches(ctx context.Context, chars []ladder.Character) <-chan blizzard.MatchResult
}

// LadderStore persists fetched ladder data.
type LadderStore interface {
	SaveSeason(ctx context.Context, season ladder.Season) error
	SaveLeague(ctx context.Context, snap ladder.LeagueSnapshot, uc watermark.UpdateContext) (int, error)
	CharactersPlayedSince(ctx context.Context, since time.Time, after *storage.Cursor, limit int) (*storage.CharacterPage, error)
	SaveMatches(ctx context.Context, histories []ladder.MatchHistory) (int, error)
}

// Maintainer runs statistics and storage maintenance.
type Maintainer interface {
	MaxSeason(ctx context.Context) (int, error)
	MergeQueueStats(ctx context.Context, season int) error
	ArchiveTeamStates(ctx context.Context, since time.Time) (int64, error)
	CleanArchive(ctx context.Context, before time.Time) (int64, error)
	RemoveExpiredTeamStates(ctx context.Context, before time.Time) (int64, error)
	PurgeExpiredMatches(ctx context.Context, before time.Time) (int64, error)
	MergeSeasonState(ctx context.Context, at time.Time) error
	Vacuum(ctx context.Context) error
	Analyze(ctx context.Context) error
	Reindex(ctx context.Context, index string) error
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Seasons    Seasons
	Ladders    Ladders
	Matches    Matches
	Store      LadderStore
	Maintainer Maintainer
	Tracker    *watermark.Tracker
	Writer     *storage.Writer
	Metrics    *metrics.Ladder
	Logger     *slog.Logger
}

// RegionResult is the outcome of one regional update.
type RegionResult struct {
	Region   ladder.Region
	Season   int
	Forced   bool
	Teams    int
	Duration time.Duration
	Err      error
}

// CycleReport summarizes one cycle.
type CycleReport struct {
	ID       uuid.UUID
	Begin    time.Time
	Skipped  bool
	Regions  []RegionResult
	Phases   map[string]string
	Duration time.Duration
}

func (r *CycleReport) phase(name, outcome string) {
	if r.Phases == nil {
		r.Phases = make(map[string]string)
	}
	r.Phases[name] = outcome
}

type regionState struct {
	lastAttempt time.Time
	lastError   string
}

// Orchestrator decides when ladder data is refreshed and drives the
// regional updates, match history sync, statistics and maintenance.
type Orchestrator struct {
	opts       Options
	seasons    Seasons
	ladders    Ladders
	matches    Matches
	store      LadderStore
	maintainer Maintainer
	tracker    *watermark.Tracker
	writer     *storage.Writer
	metrics    *metrics.Ladder
	logger     *slog.Logger

	running atomic.Bool

	mu           sync.Mutex
	regions      map[ladder.Region]*regionState
	matchContext *watermark.UpdateContext
	lastCycle    *CycleReport
}

// New creates an Orchestrator.
func New(opts Options, deps Deps) *Orchestrator {
	opts.setDefaults()
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Orchestrator{
		opts:       opts,
		seasons:    deps.Seasons,
		ladders:    deps.Ladders,
		matches:    deps.Matches,
		store:      deps.Store,
		maintainer: deps.Maintainer,
		tracker:    deps.Tracker,
		writer:     deps.Writer,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		regions:    make(map[ladder.Region]*regionState),
	}
}

// Tick runs one cycle and logs its outcome. It never panics, so a broken
// cycle cannot stop the timer driving it.
func (o *Orchestrator) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("update cycle panicked", "panic", r)
			o.metrics.CycleFinished(metrics.OutcomeFailure, 0)
		}
	}()

	report, err := o.RunCycle(ctx)
	if err != nil {
		o.logger.Error("update cycle failed", "cycle_id", report.ID, "error", err)
	}
}

// RunCycle runs one update cycle unless another one is in progress or the
// minimum gap since the last cycle has not elapsed.
func (o *Orchestrator) RunCycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{ID: uuid.New(), Begin: o.tracker.Now()}

	if !o.running.CompareAndSwap(false, true) {
		report.Skipped = true
		o.metrics.CycleFinished(metrics.OutcomeSkipped, 0)
		return report, nil
	}
	defer o.running.Store(false)

	logger := o.logger.With("cycle_id", report.ID.String())

	due, err := o.tracker.IsDue(ctx, watermark.ExternalName(watermark.GlobalScope), o.opts.MinCycleGap)
	if err != nil {
		o.metrics.CycleFinished(metrics.OutcomeFailure, 0)
		return report, fmt.Errorf("check cycle gap: %w", err)
	}
	if !due {
		report.Skipped = true
		o.metrics.CycleFinished(metrics.OutcomeSkipped, 0)
		logger.Debug("update cycle not due")
		return report, nil
	}

	logger.Info("update cycle started")
	err = o.runCycle(ctx, logger, &report)
	report.Duration = o.tracker.Now().Sub(report.Begin)

	outcome := metrics.OutcomeSuccess
	switch {
	case err != nil:
		outcome = metrics.OutcomeFailure
	case failedRegions(report.Regions) > 0 || degraded(report.Phases):
		outcome = metrics.OutcomePartial
	}
	o.metrics.CycleFinished(outcome, report.Duration)

	o.mu.Lock()
	r := report
	o.lastCycle = &r
	o.mu.Unlock()

	if err == nil {
		logger.Info("update cycle finished", "outcome", outcome, "duration", report.Duration)
	}
	return report, err
}

func (o *Orchestrator) runCycle(ctx context.Context, logger *slog.Logger, report *CycleReport) error {
	begin := report.Begin

	matchBefore, err := o.tracker.Get(ctx, watermark.MatchUpdated)
	if err != nil {
		return err
	}

	report.Regions, err = o.seasonPhase(ctx, logger, begin)
	if err != nil {
		report.phase(PhaseSeason, metrics.OutcomeFailure)
		o.metrics.PhaseRan(PhaseSeason, metrics.OutcomeFailure)
		return err
	}
	failed := failedRegions(report.Regions)
	if failed == len(report.Regions) {
		report.phase(PhaseSeason, metrics.OutcomeFailure)
		o.metrics.PhaseRan(PhaseSeason, metrics.OutcomeFailure)
		errs := make([]error, 0, failed)
		for _, r := range report.Regions {
			errs = append(errs, fmt.Errorf("%s: %w", r.Region, r.Err))
		}
		return fmt.Errorf("%w: %w", ErrAllRegionsFailed, errors.Join(errs...))
	}
	seasonOutcome := metrics.OutcomeSuccess
	if failed > 0 {
		seasonOutcome = metrics.OutcomePartial
	}
	report.phase(PhaseSeason, seasonOutcome)
	o.metrics.PhaseRan(PhaseSeason, seasonOutcome)

	o.runPhase(ctx, logger, report, PhaseMatch, o.opts.MatchUpdateFrame, watermark.MatchUpdated, o.matchPhase)
	o.runPhase(ctx, logger, report, PhaseHeavyStats, o.opts.HeavyStatsFrame, watermark.HeavyStats, o.heavyStatsPhase)

	global, err := o.tracker.Updated(ctx, watermark.GlobalScope, begin)
	if err != nil {
		return fmt.Errorf("advance global watermark: %w", err)
	}

	matchAfter, err := o.tracker.Get(ctx, watermark.MatchUpdated)
	if err != nil {
		return err
	}
	if !sameTime(matchBefore, matchAfter) {
		o.mu.Lock()
		o.matchContext = &global
		o.mu.Unlock()
	}

	o.runPhase(ctx, logger, report, PhaseMaintenanceFrequent, o.opts.MaintenanceFrequent, watermark.MaintenanceFrequent, o.frequentMaintenance)
	o.runPhase(ctx, logger, report, PhaseMaintenanceInfrequent, o.opts.MaintenanceInfrequent, watermark.MaintenanceInfrequent, o.infrequentMaintenance)
	return nil
}

// phaseFunc runs a phase. advance reports whether the phase watermark moves
// even though err is set.
type phaseFunc func(ctx context.Context, logger *slog.Logger, begin time.Time) (advance bool, err error)

// runPhase runs fn when the watermark is due and advances the watermark on
// success. Phase failures are logged and never abort the cycle.
func (o *Orchestrator) runPhase(ctx context.Context, logger *slog.Logger, report *CycleReport, phase string, frame time.Duration, name string, fn phaseFunc) {
	logger = logger.With("phase", phase)

	due, err := o.tracker.IsDue(ctx, name, frame)
	if err != nil {
		logger.Error("phase due check failed", "error", err)
		report.phase(phase, metrics.OutcomeFailure)
		o.metrics.PhaseRan(phase, metrics.OutcomeFailure)
		return
	}
	if !due {
		return
	}

	start := o.tracker.Now()
	advance, err := fn(ctx, logger, report.Begin)
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailure
		if advance {
			outcome = metrics.OutcomePartial
		}
		logger.Error("phase failed", "advance", advance, "error", err)
	}
	if err == nil || advance {
		if aerr := o.tracker.Advance(ctx, name, report.Begin); aerr != nil {
			logger.Error("advance phase watermark failed", "error", aerr)
			outcome = metrics.OutcomeFailure
		}
	}
	report.phase(phase, outcome)
	o.metrics.PhaseRan(phase, outcome)
	logger.Info("phase finished", "outcome", outcome, "duration", o.tracker.Now().Sub(start))
}

// write runs fn on the single persistence writer.
func (o *Orchestrator) write(ctx context.Context, fn func(context.Context) error) error {
	return o.writer.Do(ctx, fn)
}

func failedRegions(results []RegionResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

func degraded(phases map[string]string) bool {
	for _, p := range phases {
		if p != metrics.OutcomeSuccess {
			return true
		}
	}
	return false
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
