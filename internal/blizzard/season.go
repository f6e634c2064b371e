package blizzard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ryanbastic/go-ladderwatch/internal/ladder"
)

// maxSeasonProbes bounds a probe run against an upstream that never answers
// "not found".
const maxSeasonProbes = 1000

// SeasonProbe discovers seasons of a region.
type SeasonProbe struct {
	client Getter
	first  int
	now    func() time.Time
	logger *slog.Logger
}

// NewSeasonProbe creates a probe that starts at firstSeason.
func NewSeasonProbe(client Getter, firstSeason int, logger *slog.Logger) *SeasonProbe {
	if logger == nil {
		logger = slog.Default()
	}
	return &SeasonProbe{client: client, first: firstSeason, now: time.Now, logger: logger}
}

// Season fetches one season by id.
func (p *SeasonProbe) Season(ctx context.Context, region ladder.Region, id int) (ladder.Season, error) {
	var dto seasonDTO
	if err := p.client.Get(ctx, region, fmt.Sprintf("data/sc2/season/%d", id), &dto); err != nil {
		return ladder.Season{}, err
	}
	s := dto.toSeason(region)
	if s.ID == 0 {
		s.ID = id
	}
	return s, nil
}

// Current fetches the season the region is currently serving.
func (p *SeasonProbe) Current(ctx context.Context, region ladder.Region) (ladder.Season, error) {
	var dto seasonDTO
	if err := p.client.Get(ctx, region, fmt.Sprintf("sc2/ladder/season/%d", region.ID()), &dto); err != nil {
		return ladder.Season{}, err
	}
	return dto.toSeason(region), nil
}

// DiscoverLatest probes season ids upward from the first known one. The first
// "not found" ends the sequence and the season before it is the latest. Any
// other error after the first probe is returned as is rather than read as the
// end of the sequence.
func (p *SeasonProbe) DiscoverLatest(ctx context.Context, region ladder.Region) (ladder.Season, error) {
	var (
		latest ladder.Season
		found  bool
	)
	for id := p.first; id < p.first+maxSeasonProbes; id++ {
		s, err := p.Season(ctx, region, id)
		if err != nil {
			if !found {
				return ladder.Season{}, &NoSeasonFoundError{Region: region, First: p.first, Err: err}
			}
			if IsNotFound(err) {
				p.logger.Debug("season probe finished", "region", region.String(), "season", latest.ID)
				return latest, nil
			}
			return ladder.Season{}, fmt.Errorf("probe season %d for %s: %w", id, region, err)
		}
		latest, found = s, true
	}
	return ladder.Season{}, fmt.Errorf("probe seasons for %s: no end after %d ids", region, maxSeasonProbes)
}

// CurrentOrLatest prefers the current-season endpoint and only reconstructs
// the latest season by probing when that endpoint fails. current reports
// whether the upstream is still serving the returned season, which makes
// missing leagues an expected startup gap rather than an error.
func (p *SeasonProbe) CurrentOrLatest(ctx context.Context, region ladder.Region) (season ladder.Season, current bool, err error) {
	season, err = p.Current(ctx, region)
	if err == nil {
		return season, true, nil
	}
	if ctx.Err() != nil {
		return ladder.Season{}, false, ctx.Err()
	}

	p.logger.Warn("current season endpoint failed, probing", "region", region.String(), "error", err)
	season, err = p.DiscoverLatest(ctx, region)
	if err != nil {
		return ladder.Season{}, false, err
	}
	return season, season.Active(p.now()), nil
}
