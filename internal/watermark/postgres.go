package watermark

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using the watermarks table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the watermarks table.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS watermarks (
			name       TEXT PRIMARY KEY,
			value      TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("migrate watermarks: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, name string) (*time.Time, error) {
	var v *time.Time
	err := s.pool.QueryRow(ctx, `SELECT value FROM watermarks WHERE name = $1`, name).Scan(&v)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load watermark %s: %w", name, err)
	}
	return v, nil
}

func (s *PostgresStore) All(ctx context.Context) (map[string]*time.Time, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, value FROM watermarks ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list watermarks: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*time.Time)
	for rows.Next() {
		var (
			name string
			v    *time.Time
		)
		if err := rows.Scan(&name, &v); err != nil {
			return nil, fmt.Errorf("scan watermark: %w", err)
		}
		out[name] = v
	}
	return out, rows.Err()
}

func (s *PostgresStore) Save(ctx context.Context, values map[string]*time.Time) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for name, v := range values {
			_, err := tx.Exec(ctx, `
				INSERT INTO watermarks (name, value, updated_at)
				VALUES ($1, $2, now())
				ON CONFLICT (name)
				DO UPDATE SET value = $2, updated_at = now()
			`, name, v)
			if err != nil {
				return fmt.Errorf("upsert %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save watermarks: %w", err)
	}
	return nil
}
