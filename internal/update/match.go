package update

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ryanbastic/go-ladderwatch/internal/ladder"
	"github.com/ryanbastic/go-ladderwatch/internal/storage"
	"github.com/ryanbastic/go-ladderwatch/internal/watermark"
)

// matchFlushSize is the number of histories persisted per write.
const matchFlushSize = 200

// matchPhase syncs the match history of recently active characters.
func (o *Orchestrator) matchPhase(ctx context.Context, logger *slog.Logger, begin time.Time) (bool, error) {
	uc, err := o.currentMatchContext(ctx)
	if err != nil {
		return false, err
	}
	since := begin.Add(-o.opts.MatchLookback)
	if uc.External != nil {
		since = *uc.External
	}

	chars, err := o.activeCharacters(ctx, since)
	if err != nil {
		return false, fmt.Errorf("select characters: %w", err)
	}
	if len(chars) == 0 {
		logger.Info("no active characters", "since", since)
		return false, nil
	}
	logger.Info("fetching match histories", "characters", len(chars), "since", since)

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	results := o.matches.FetchMatches(fetchCtx, chars)

	var (
		pending  []ladder.MatchHistory
		saved    int
		failed   int
		writeErr error
	)
	flush := func() {
		if len(pending) == 0 || writeErr != nil {
			return
		}
		batch := pending
		pending = nil
		err := o.write(ctx, func(ctx context.Context) error {
			n, err := o.store.SaveMatches(ctx, batch)
			saved += n
			return err
		})
		if err != nil {
			writeErr = fmt.Errorf("save matches: %w", err)
			cancel()
		}
	}

	for r := range results {
		if writeErr != nil {
			continue
		}
		if r.Err != nil {
			failed++
			logger.Warn("match history fetch failed",
				"region", r.Character.Region.String(), "character_id", r.Character.ID, "error", r.Err)
			continue
		}
		pending = append(pending, ladder.MatchHistory{Character: r.Character, Matches: r.Matches})
		if len(pending) >= matchFlushSize {
			flush()
		}
	}
	flush()

	if writeErr != nil {
		return false, writeErr
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	logger.Info("match histories synced", "characters", len(chars), "failed", failed, "matches", saved)
	if failed == len(chars) {
		return false, errors.New("every match history fetch failed")
	}
	return false, nil
}

func (o *Orchestrator) currentMatchContext(ctx context.Context) (watermark.UpdateContext, error) {
	o.mu.Lock()
	mc := o.matchContext
	o.mu.Unlock()
	if mc != nil {
		return *mc, nil
	}
	uc, err := o.tracker.Context(ctx, watermark.GlobalScope)
	if err != nil {
		return watermark.UpdateContext{}, fmt.Errorf("load match context: %w", err)
	}
	return uc, nil
}

// activeCharacters pages through characters that played since the given
// time, up to the batch limit.
func (o *Orchestrator) activeCharacters(ctx context.Context, since time.Time) ([]ladder.Character, error) {
	var (
		chars  []ladder.Character
		cursor *storage.Cursor
	)
	for len(chars) < o.opts.MatchBatchLimit {
		page, err := o.store.CharactersPlayedSince(ctx, since, cursor, o.opts.MatchBatchLimit-len(chars))
		if err != nil {
			return nil, err
		}
		for _, c := range page.Characters {
			chars = append(chars, c.Character)
		}
		if page.NextCursor == nil || len(page.Characters) == 0 {
			break
		}
		cursor = page.NextCursor
	}
	return chars, nil
}
