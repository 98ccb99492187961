package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"statsScope/internal/model"
	"statsScope/internal/storage"
)

// Schema creates the tables the store writes to.
const Schema = `
CREATE TABLE IF NOT EXISTS metric_snapshots (
	name        TEXT PRIMARY KEY,
	data        JSONB NOT NULL,
	fetched_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS tvl_points (
	day_ts      TIMESTAMPTZ PRIMARY KEY,
	day_label   TEXT NOT NULL,
	block       BIGINT NOT NULL,
	tvl_usd     NUMERIC NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store provides Postgres persistence for metric snapshots and TVL history.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ storage.SnapshotStore = (*Store)(nil)
	_ storage.TVLHistory    = (*Store)(nil)
)

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema applies Schema.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// LoadSnapshot returns the stored snapshot for a metric key.
func (s *Store) LoadSnapshot(ctx context.Context, key string) (storage.Snapshot, bool, error) {
	if key == "" {
		return storage.Snapshot{}, false, storage.ErrInvalidKey
	}
	snap := storage.Snapshot{Key: key}
	row := s.pool.QueryRow(ctx, `SELECT data, fetched_at FROM metric_snapshots WHERE name=$1`, key)
	if err := row.Scan(&snap.Data, &snap.FetchedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.Snapshot{}, false, nil
		}
		return storage.Snapshot{}, false, err
	}
	return snap, true, nil
}

// SaveSnapshot upserts the snapshot for its key. Older fetches never replace
// newer ones.
func (s *Store) SaveSnapshot(ctx context.Context, snap storage.Snapshot) error {
	if snap.Key == "" {
		return storage.ErrInvalidKey
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO metric_snapshots (name, data, fetched_at, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (name) DO UPDATE
		SET data = EXCLUDED.data, fetched_at = EXCLUDED.fetched_at, updated_at = now()
		WHERE metric_snapshots.fetched_at <= EXCLUDED.fetched_at
	`, snap.Key, []byte(snap.Data), snap.FetchedAt)
	return err
}

// UpsertTVLPoints inserts or updates daily TVL points.
func (s *Store) UpsertTVLPoints(ctx context.Context, points []model.TVLPoint) error {
	if len(points) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(`
			INSERT INTO tvl_points (day_ts, day_label, block, tvl_usd, updated_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (day_ts)
			DO UPDATE SET
				day_label = EXCLUDED.day_label,
				block = EXCLUDED.block,
				tvl_usd = EXCLUDED.tvl_usd,
				updated_at = now()
		`,
			p.Timestamp.UTC().Truncate(24*time.Hour),
			p.Day,
			int64(p.Block),
			p.TVL.String(),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range points {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
