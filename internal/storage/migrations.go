package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Index names rebuilt by maintenance.
const (
	IndexMatchUpdated        = "ix_match_updated"
	IndexTeamStateRecordedAt = "ix_team_state_recorded_at"
	IndexTeamStatePrimaryKey = "team_state_pkey"
)

// TeamStateIndexes are rebuilt by infrequent maintenance.
var TeamStateIndexes = []string{IndexTeamStateRecordedAt, IndexTeamStatePrimaryKey}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS season (
		region     SMALLINT NOT NULL,
		id         INT NOT NULL,
		year       INT NOT NULL,
		number     INT NOT NULL,
		start_at   TIMESTAMPTZ,
		end_at     TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (region, id)
	)`,
	`CREATE TABLE IF NOT EXISTS league_tier (
		region     SMALLINT NOT NULL,
		season     INT NOT NULL,
		queue      SMALLINT NOT NULL,
		team_type  SMALLINT NOT NULL,
		league     SMALLINT NOT NULL,
		tier       SMALLINT NOT NULL,
		min_rating INT NOT NULL,
		max_rating INT NOT NULL,
		PRIMARY KEY (region, season, queue, team_type, league, tier)
	)`,
	`CREATE TABLE IF NOT EXISTS division (
		region       SMALLINT NOT NULL,
		id           BIGINT NOT NULL,
		season       INT NOT NULL,
		queue        SMALLINT NOT NULL,
		team_type    SMALLINT NOT NULL,
		league       SMALLINT NOT NULL,
		tier         SMALLINT NOT NULL,
		ladder_id    BIGINT NOT NULL,
		member_count INT NOT NULL,
		PRIMARY KEY (region, id)
	)`,
	`CREATE TABLE IF NOT EXISTS team (
		region      SMALLINT NOT NULL,
		season      INT NOT NULL,
		id          BIGINT NOT NULL,
		queue       SMALLINT NOT NULL,
		team_type   SMALLINT NOT NULL,
		league      SMALLINT NOT NULL,
		division_id BIGINT NOT NULL,
		rating      INT NOT NULL,
		wins        INT NOT NULL,
		losses      INT NOT NULL,
		ties        INT NOT NULL,
		points      INT NOT NULL,
		last_played TIMESTAMPTZ,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (region, season, id)
	)`,
	`CREATE TABLE IF NOT EXISTS player_character (
		region      SMALLINT NOT NULL,
		realm       SMALLINT NOT NULL,
		id          BIGINT NOT NULL,
		name        TEXT NOT NULL,
		last_played TIMESTAMPTZ,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (region, realm, id)
	)`,
	`CREATE INDEX IF NOT EXISTS ix_player_character_last_played
		ON player_character (last_played, region, realm, id)`,
	`CREATE TABLE IF NOT EXISTS team_member (
		region       SMALLINT NOT NULL,
		season       INT NOT NULL,
		team_id      BIGINT NOT NULL,
		realm        SMALLINT NOT NULL,
		character_id BIGINT NOT NULL,
		race         TEXT,
		PRIMARY KEY (region, season, team_id, realm, character_id)
	)`,
	`CREATE TABLE IF NOT EXISTS team_state (
		region      SMALLINT NOT NULL,
		season      INT NOT NULL,
		team_id     BIGINT NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL,
		rating      INT NOT NULL,
		games       INT NOT NULL,
		PRIMARY KEY (region, season, team_id, recorded_at)
	)`,
	`CREATE INDEX IF NOT EXISTS ix_team_state_recorded_at ON team_state (recorded_at)`,
	`CREATE TABLE IF NOT EXISTS team_state_archive (
		region      SMALLINT NOT NULL,
		season      INT NOT NULL,
		team_id     BIGINT NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL,
		rating      INT NOT NULL,
		games       INT NOT NULL,
		PRIMARY KEY (region, season, team_id, recorded_at)
	)`,
	`CREATE TABLE IF NOT EXISTS match_history (
		region       SMALLINT NOT NULL,
		realm        SMALLINT NOT NULL,
		character_id BIGINT NOT NULL,
		played_at    TIMESTAMPTZ NOT NULL,
		map          TEXT NOT NULL,
		type         TEXT NOT NULL,
		decision     TEXT NOT NULL,
		speed        TEXT NOT NULL,
		updated      TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (region, realm, character_id, played_at, map)
	)`,
	`CREATE INDEX IF NOT EXISTS ix_match_updated ON match_history (updated)`,
	`CREATE TABLE IF NOT EXISTS queue_stats (
		season       INT NOT NULL,
		queue        SMALLINT NOT NULL,
		team_type    SMALLINT NOT NULL,
		region       SMALLINT NOT NULL,
		player_count BIGINT NOT NULL,
		team_count   BIGINT NOT NULL,
		game_count   BIGINT NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (season, queue, team_type, region)
	)`,
	`CREATE TABLE IF NOT EXISTS season_state (
		region       SMALLINT NOT NULL,
		season       INT NOT NULL,
		period_start TIMESTAMPTZ NOT NULL,
		player_count BIGINT NOT NULL,
		team_count   BIGINT NOT NULL,
		game_count   BIGINT NOT NULL,
		PRIMARY KEY (region, season, period_start)
	)`,
}

// RunMigrations creates the ladder schema. Every statement is idempotent.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	for i, ddl := range migrations {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
