package blizzard

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ryanbastic/go-ladderwatch/internal/ladder"
)

// LadderFetcher fetches the league, tier, division and ladder hierarchy.
type LadderFetcher struct {
	client      Getter
	concurrency int
	logger      *slog.Logger
}

// NewLadderFetcher creates a fetcher issuing up to concurrency ladder requests
// per league at once.
func NewLadderFetcher(client Getter, concurrency int, logger *slog.Logger) *LadderFetcher {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LadderFetcher{client: client, concurrency: concurrency, logger: logger}
}

// FetchLeague fetches one league. Invalid keys fail with ErrInvalidLeague
// without a request. A 404 is an empty league for the current season, because
// new seasons do not serve every league right away, and an error otherwise.
func (f *LadderFetcher) FetchLeague(ctx context.Context, region ladder.Region, key ladder.LeagueKey, current bool) (ladder.League, error) {
	if !key.Valid() {
		return ladder.League{}, fmt.Errorf("%w: %s", ErrInvalidLeague, key)
	}

	path := fmt.Sprintf("data/sc2/league/%d/%d/%d/%d", key.Season, int(key.Queue), int(key.TeamType), int(key.League))
	var dto leagueDTO
	if err := f.client.Get(ctx, region, path, &dto); err != nil {
		if current && IsNotFound(err) {
			f.logger.Warn("league not found in current season, treating as empty",
				"region", region.String(), "league", key.String())
			return ladder.League{Region: region, Key: key}, nil
		}
		return ladder.League{}, fmt.Errorf("fetch league %s %s: %w", region, key, err)
	}
	return dto.toLeague(region, key), nil
}

// FetchLadder fetches one division's roster.
func (f *LadderFetcher) FetchLadder(ctx context.Context, region ladder.Region, ladderID int64) (ladder.Ladder, error) {
	var dto ladderDTO
	if err := f.client.Get(ctx, region, fmt.Sprintf("data/sc2/ladder/%d", ladderID), &dto); err != nil {
		return ladder.Ladder{}, fmt.Errorf("fetch ladder %s %d: %w", region, ladderID, err)
	}
	return dto.toLadder(region, ladderID), nil
}

// FetchSnapshot fetches a league and every division ladder in it. Ladders
// missing in the current season are skipped; any other failure fails the
// whole snapshot.
func (f *LadderFetcher) FetchSnapshot(ctx context.Context, season ladder.Season, key ladder.LeagueKey, current bool) (ladder.LeagueSnapshot, error) {
	league, err := f.FetchLeague(ctx, season.Region, key, current)
	if err != nil {
		return ladder.LeagueSnapshot{}, err
	}
	snap := ladder.LeagueSnapshot{Season: season, League: league}

	divisions := league.Divisions()
	if len(divisions) == 0 {
		return snap, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for _, td := range divisions {
		g.Go(func() error {
			l, err := f.FetchLadder(gctx, season.Region, td.Division.LadderID)
			if err != nil {
				if current && IsNotFound(err) {
					return nil
				}
				return err
			}
			mu.Lock()
			snap.Ladders = append(snap.Ladders, ladder.DivisionLadder{Tier: td.Tier, Division: td.Division, Ladder: l})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ladder.LeagueSnapshot{}, err
	}
	slices.SortFunc(snap.Ladders, func(a, b ladder.DivisionLadder) int {
		return cmp.Compare(a.Division.LadderID, b.Division.LadderID)
	})
	return snap, nil
}
