package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ryanbastic/go-ladderwatch/internal/ladder"
	"github.com/ryanbastic/go-ladderwatch/internal/watermark"
)

// PostgresStore persists ladder data and runs maintenance on one database.
type PostgresStore struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

// NewPostgresStore creates a store. queryTimeout sets the per-call context
// deadline; zero means no timeout.
func NewPostgresStore(pool *pgxpool.Pool, queryTimeout time.Duration) *PostgresStore {
	return &PostgresStore{pool: pool, queryTimeout: queryTimeout}
}

// withTimeout derives a child context with the configured query timeout.
// If queryTimeout is zero, the parent context is returned unchanged.
func (s *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout > 0 {
		return context.WithTimeout(ctx, s.queryTimeout)
	}
	return ctx, func() {}
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.pool.Ping(ctx)
}

const upsertSeason = `
	INSERT INTO season (region, id, year, number, start_at, end_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, now())
	ON CONFLICT (region, id)
	DO UPDATE SET year = $3, number = $4, start_at = $5, end_at = $6, updated_at = now()
`

// SaveSeason upserts a season descriptor.
func (s *PostgresStore) SaveSeason(ctx context.Context, season ladder.Season) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, upsertSeason, seasonArgs(season)...)
	if err != nil {
		return fmt.Errorf("save season %s/%d: %w", season.Region, season.ID, err)
	}
	return nil
}

func seasonArgs(s ladder.Season) []any {
	return []any{s.Region.ID(), s.ID, s.Year, s.Number, nullTime(s.Start), nullTime(s.End)}
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// SaveLeague persists a league snapshot in one transaction. With an
// incremental context only teams that played at or after the internal
// watermark are written; a full-rescan context writes every team. It returns
// the number of teams written.
func (s *PostgresStore) SaveLeague(ctx context.Context, snap ladder.LeagueSnapshot, uc watermark.UpdateContext) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	region := snap.League.Region.ID()
	key := snap.League.Key
	since := uc.Since()
	written := 0

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		batch.Queue(upsertSeason, seasonArgs(snap.Season)...)

		for _, tier := range snap.League.Tiers {
			batch.Queue(`
				INSERT INTO league_tier (region, season, queue, team_type, league, tier, min_rating, max_rating)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (region, season, queue, team_type, league, tier)
				DO UPDATE SET min_rating = $7, max_rating = $8
			`, region, key.Season, int(key.Queue), int(key.TeamType), int(key.League), tier.ID, tier.MinRating, tier.MaxRating)
		}

		for _, dl := range snap.Ladders {
			batch.Queue(`
				INSERT INTO division (region, id, season, queue, team_type, league, tier, ladder_id, member_count)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				ON CONFLICT (region, id)
				DO UPDATE SET tier = $7, ladder_id = $8, member_count = $9
			`, region, dl.Division.ID, key.Season, int(key.Queue), int(key.TeamType), int(key.League), dl.Tier, dl.Division.LadderID, dl.Division.MemberCount)

			for _, team := range dl.Ladder.Teams {
				if !uc.Full() && team.LastPlayed.Before(since) {
					continue
				}
				queueTeam(batch, region, key, dl.Division.ID, team)
				written++
			}
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("save league %s %s: %w", snap.League.Region, key, err)
	}
	return written, nil
}

func queueTeam(batch *pgx.Batch, region int, key ladder.LeagueKey, divisionID int64, team ladder.Team) {
	lastPlayed := nullTime(team.LastPlayed)

	batch.Queue(`
		INSERT INTO team (region, season, id, queue, team_type, league, division_id,
			rating, wins, losses, ties, points, last_played, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
		ON CONFLICT (region, season, id)
		DO UPDATE SET league = $6, division_id = $7, rating = $8, wins = $9, losses = $10,
			ties = $11, points = $12, last_played = $13, updated_at = now()
	`, region, key.Season, team.ID, int(key.Queue), int(key.TeamType), int(key.League), divisionID,
		team.Rating, team.Wins, team.Losses, team.Ties, team.Points, lastPlayed)

	// One state row per change in games played.
	batch.Queue(`
		INSERT INTO team_state (region, season, team_id, recorded_at, rating, games)
		SELECT $1, $2, $3, now(), $4, $5
		WHERE NOT EXISTS (
			SELECT 1 FROM team_state
			WHERE region = $1 AND season = $2 AND team_id = $3 AND games = $5
		)
		ON CONFLICT DO NOTHING
	`, region, key.Season, team.ID, team.Rating, team.Games())

	for _, m := range team.Members {
		c := m.Character
		batch.Queue(`
			INSERT INTO player_character (region, realm, id, name, last_played, updated_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (region, realm, id)
			DO UPDATE SET name = $4,
				last_played = GREATEST(player_character.last_played, $5),
				updated_at = now()
		`, region, c.Realm, c.ID, c.Name, lastPlayed)

		batch.Queue(`
			INSERT INTO team_member (region, season, team_id, realm, character_id, race)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (region, season, team_id, realm, character_id)
			DO UPDATE SET race = $6
		`, region, key.Season, team.ID, c.Realm, c.ID, m.Race)
	}
}

// CharactersPlayedSince returns characters that played at or after since,
// ordered by (last_played, region, realm, id), starting after cursor.
func (s *PostgresStore) CharactersPlayedSince(ctx context.Context, since time.Time, after *Cursor, limit int) (*CharacterPage, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 1000
	}

	var (
		rows pgx.Rows
		err  error
	)
	if after == nil {
		rows, err = s.pool.Query(ctx, `
			SELECT region, realm, id, name, last_played
			FROM player_character
			WHERE last_played >= $1
			ORDER BY last_played, region, realm, id
			LIMIT $2
		`, since, limit)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT region, realm, id, name, last_played
			FROM player_character
			WHERE last_played >= $1
				AND (last_played, region, realm, id) > ($2, $3, $4, $5)
			ORDER BY last_played, region, realm, id
			LIMIT $6
		`, since, after.LastPlayed, after.Region, after.Realm, after.ID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("characters played since: %w", err)
	}
	defer rows.Close()

	page := &CharacterPage{}
	for rows.Next() {
		var (
			pc     PlayedCharacter
			region int
		)
		if err := rows.Scan(&region, &pc.Realm, &pc.ID, &pc.Name, &pc.LastPlayed); err != nil {
			return nil, fmt.Errorf("characters played since scan: %w", err)
		}
		pc.Region = ladder.Region(region)
		page.Characters = append(page.Characters, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("characters played since rows: %w", err)
	}

	if n := len(page.Characters); n == limit {
		last := page.Characters[n-1]
		page.NextCursor = &Cursor{LastPlayed: last.LastPlayed, Region: last.Region.ID(), Realm: last.Realm, ID: last.ID}
	}
	return page, nil
}

// SaveMatches stores match histories in one transaction and returns the number
// of match rows written. Known matches only get their updated time refreshed.
func (s *PostgresStore) SaveMatches(ctx context.Context, histories []ladder.MatchHistory) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	batch := &pgx.Batch{}
	for _, h := range histories {
		c := h.Character
		for _, m := range h.Matches {
			batch.Queue(`
				INSERT INTO match_history (region, realm, character_id, played_at, map, type, decision, speed, updated)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
				ON CONFLICT (region, realm, character_id, played_at, map)
				DO UPDATE SET decision = $7, updated = now()
			`, c.Region.ID(), c.Realm, c.ID, m.Date, m.Map, m.Type, m.Decision, m.Speed)
		}
	}
	if batch.Len() == 0 {
		return 0, nil
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return 0, fmt.Errorf("save matches: %w", err)
	}
	return batch.Len(), nil
}
