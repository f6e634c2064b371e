package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ryanbastic/go-ladderwatch/internal/ladder"
)

// MaxSeason returns the highest season id stored for any region, 0 if none.
func (s *PostgresStore) MaxSeason(ctx context.Context) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var id int
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM season`).Scan(&id); err != nil {
		return 0, fmt.Errorf("max season: %w", err)
	}
	return id, nil
}

// MergeQueueStats recomputes the per-queue player, team and game counts of a
// season.
func (s *PostgresStore) MergeQueueStats(ctx context.Context, season int) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO queue_stats (season, queue, team_type, region, player_count, team_count, game_count, updated_at)
		SELECT t.season, t.queue, t.team_type, t.region,
			COUNT(DISTINCT (m.realm, m.character_id)),
			COUNT(DISTINCT t.id),
			COALESCE(SUM(t.wins + t.losses + t.ties), 0),
			now()
		FROM team t
		LEFT JOIN team_member m
			ON m.region = t.region AND m.season = t.season AND m.team_id = t.id
		WHERE t.season = $1
		GROUP BY t.season, t.queue, t.team_type, t.region
		ON CONFLICT (season, queue, team_type, region)
		DO UPDATE SET player_count = EXCLUDED.player_count,
			team_count = EXCLUDED.team_count,
			game_count = EXCLUDED.game_count,
			updated_at = now()
	`, season)
	if err != nil {
		return fmt.Errorf("merge queue stats season %d: %w", season, err)
	}
	return nil
}

// ArchiveTeamStates copies the peak-rating state of every team recorded at or
// after since into the archive.
func (s *PostgresStore) ArchiveTeamStates(ctx context.Context, since time.Time) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO team_state_archive (region, season, team_id, recorded_at, rating, games)
		SELECT DISTINCT ON (region, season, team_id)
			region, season, team_id, recorded_at, rating, games
		FROM team_state
		WHERE recorded_at >= $1
		ORDER BY region, season, team_id, rating DESC, recorded_at DESC
		ON CONFLICT DO NOTHING
	`, since)
	if err != nil {
		return 0, fmt.Errorf("archive team states: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CleanArchive removes archived states recorded before the cutoff.
func (s *PostgresStore) CleanArchive(ctx context.Context, before time.Time) (int64, error) {
	return s.deleteBefore(ctx, "team_state_archive", "recorded_at", before)
}

// RemoveExpiredTeamStates removes live team states recorded before the cutoff.
func (s *PostgresStore) RemoveExpiredTeamStates(ctx context.Context, before time.Time) (int64, error) {
	return s.deleteBefore(ctx, "team_state", "recorded_at", before)
}

// PurgeExpiredMatches removes matches played before the cutoff.
func (s *PostgresStore) PurgeExpiredMatches(ctx context.Context, before time.Time) (int64, error) {
	return s.deleteBefore(ctx, "match_history", "played_at", before)
}

func (s *PostgresStore) deleteBefore(ctx context.Context, table, column string, before time.Time) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`DELETE FROM %s WHERE %s < $1`,
		pgx.Identifier{table}.Sanitize(), pgx.Identifier{column}.Sanitize())
	tag, err := s.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

// Vacuum reclaims storage of the whole database. It ignores the query timeout
// because it routinely runs longer.
func (s *PostgresStore) Vacuum(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `VACUUM`); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

// Analyze refreshes planner statistics.
func (s *PostgresStore) Analyze(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `ANALYZE`); err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	return nil
}

// Reindex rebuilds one index without blocking writes.
func (s *PostgresStore) Reindex(ctx context.Context, index string) error {
	query := `REINDEX INDEX CONCURRENTLY ` + pgx.Identifier{index}.Sanitize()
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("reindex %s: %w", index, err)
	}
	return nil
}

// MergeSeasonState records the activity of the latest season of every region
// for the hour containing at.
func (s *PostgresStore) MergeSeasonState(ctx context.Context, at time.Time) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		WITH latest AS (
			SELECT region, MAX(id) AS season FROM season GROUP BY region
		)
		INSERT INTO season_state (region, season, period_start, player_count, team_count, game_count)
		SELECT l.region, l.season, date_trunc('hour', $1::timestamptz),
			(SELECT COUNT(DISTINCT (m.realm, m.character_id)) FROM team_member m
				WHERE m.region = l.region AND m.season = l.season),
			(SELECT COUNT(*) FROM team t WHERE t.region = l.region AND t.season = l.season),
			(SELECT COALESCE(SUM(t.wins + t.losses + t.ties), 0) FROM team t
				WHERE t.region = l.region AND t.season = l.season)
		FROM latest l
		ON CONFLICT (region, season, period_start)
		DO UPDATE SET player_count = EXCLUDED.player_count,
			team_count = EXCLUDED.team_count,
			game_count = EXCLUDED.game_count
	`, at)
	if err != nil {
		return fmt.Errorf("merge season state: %w", err)
	}
	return nil
}

// SeasonStates returns the recorded snapshots of a region's season, oldest
// first.
func (s *PostgresStore) SeasonStates(ctx context.Context, region ladder.Region, season int) ([]SeasonState, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT period_start, player_count, team_count, game_count
		FROM season_state
		WHERE region = $1 AND season = $2
		ORDER BY period_start
	`, region.ID(), season)
	if err != nil {
		return nil, fmt.Errorf("season states: %w", err)
	}
	defer rows.Close()

	var out []SeasonState
	for rows.Next() {
		st := SeasonState{Region: region, Season: season}
		if err := rows.Scan(&st.PeriodStart, &st.Players, &st.Teams, &st.Games); err != nil {
			return nil, fmt.Errorf("season states scan: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
