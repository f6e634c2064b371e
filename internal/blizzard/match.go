package blizzard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ryanbastic/go-ladderwatch/internal/ladder"
	"github.com/ryanbastic/go-ladderwatch/internal/metrics"
)

// MatchResult is the outcome of one character's match history fetch.
type MatchResult struct {
	Character ladder.Character
	Matches   []ladder.Match
	Err       error
}

// MatchFetcher fetches match histories with a cap on requests in flight.
type MatchFetcher struct {
	client  Getter
	limit   int
	metrics *metrics.Ladder
	logger  *slog.Logger
}

// NewMatchFetcher creates a fetcher allowing at most limit requests in flight.
func NewMatchFetcher(client Getter, limit int, m *metrics.Ladder, logger *slog.Logger) *MatchFetcher {
	if limit <= 0 {
		limit = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MatchFetcher{client: client, limit: limit, metrics: m, logger: logger}
}

// FetchMatches streams one result per character in completion order. The
// channel is closed once every started fetch is done; cancelling ctx stops
// new fetches from starting. Callers must drain the channel.
func (f *MatchFetcher) FetchMatches(ctx context.Context, chars []ladder.Character) <-chan MatchResult {
	out := make(chan MatchResult)
	sem := make(chan struct{}, f.limit)

	go func() {
		defer close(out)
		var wg sync.WaitGroup
		defer wg.Wait()

		for _, ch := range chars {
			if ctx.Err() != nil {
				return
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				f.metrics.MatchFetchStarted()
				res := f.fetch(ctx, ch)
				f.metrics.MatchFetchDone()
				<-sem

				select {
				case out <- res:
				case <-ctx.Done():
				}
			}()
		}
	}()

	return out
}

func (f *MatchFetcher) fetch(ctx context.Context, ch ladder.Character) MatchResult {
	path := fmt.Sprintf("sc2/legacy/profile/%d/%d/%d/matches", ch.Region.ID(), ch.Realm, ch.ID)
	var dto matchesDTO
	if err := f.client.Get(ctx, ch.Region, path, &dto); err != nil {
		if IsNotFound(err) {
			return MatchResult{Character: ch, Matches: []ladder.Match{}}
		}
		return MatchResult{Character: ch, Err: fmt.Errorf("fetch matches %s/%d/%d: %w", ch.Region, ch.Realm, ch.ID, err)}
	}
	return MatchResult{Character: ch, Matches: dto.toMatches()}
}
