package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mgoltzsche/sobub/internal/model"
)

var _ Store = &PostgresStore{}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS memes (
	id         BIGSERIAL PRIMARY KEY,
	filename   TEXT NOT NULL UNIQUE,
	tags       TEXT[] NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	play_count BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_memes_created ON memes(created_at DESC);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const clipColumns = `id, filename, tags, created_at, play_count`

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the PostgreSQL database at dsn and creates
// the schema if necessary.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) CreateClip(ctx context.Context, filename string, tags []string) (*model.Clip, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO memes (filename, tags) VALUES ($1, $2) RETURNING `+clipColumns,
		filename, nonNil(tags))

	c, err := scanPgClip(row)
	if err != nil {
		return nil, fmt.Errorf("insert meme: %w", err)
	}

	return &c, nil
}

func (s *PostgresStore) Clip(ctx context.Context, id int64) (*model.Clip, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+clipColumns+` FROM memes WHERE id = $1`, id)

	c, err := scanPgClip(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("meme %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query meme: %w", err)
	}

	return &c, nil
}

func (s *PostgresStore) AllClips(ctx context.Context) ([]model.Clip, error) {
	return s.queryClips(ctx, `SELECT `+clipColumns+` FROM memes ORDER BY created_at DESC, id DESC`)
}

func (s *PostgresStore) ClipsByTags(ctx context.Context, tags []string) ([]model.Clip, error) {
	if len(tags) == 0 {
		return []model.Clip{}, nil
	}

	lower := make([]string, len(tags))
	for i, t := range tags {
		lower[i] = strings.ToLower(strings.TrimSpace(t))
	}

	return s.queryClips(ctx, `SELECT `+clipColumns+` FROM memes
		WHERE EXISTS (SELECT 1 FROM unnest(tags) AS t WHERE lower(t) = ANY($1))
		ORDER BY created_at DESC, id DESC`, lower)
}

func (s *PostgresStore) queryClips(ctx context.Context, query string, args ...any) ([]model.Clip, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query memes: %w", err)
	}
	defer rows.Close()

	clips := []model.Clip{}

	for rows.Next() {
		c, err := scanPgClip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan meme: %w", err)
		}

		clips = append(clips, c)
	}

	return clips, rows.Err()
}

func (s *PostgresStore) UpdateTags(ctx context.Context, id int64, tags []string) (*model.Clip, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE memes SET tags = $2 WHERE id = $1 RETURNING `+clipColumns, id, nonNil(tags))

	c, err := scanPgClip(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("meme %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update meme tags: %w", err)
	}

	return &c, nil
}

func (s *PostgresStore) DeleteClip(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM memes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete meme: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("meme %d: %w", id, ErrNotFound)
	}

	return nil
}

func (s *PostgresStore) FilenameExists(ctx context.Context, filename string) (bool, error) {
	var exists bool

	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM memes WHERE filename = $1)`, filename).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query meme filename: %w", err)
	}

	return exists, nil
}

func (s *PostgresStore) IncrementPlayCount(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE memes SET play_count = play_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment play count: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("meme %d: %w", id, ErrNotFound)
	}

	return nil
}

func (s *PostgresStore) Tags(ctx context.Context) ([]string, error) {
	clips, err := s.AllClips(ctx)
	if err != nil {
		return nil, err
	}

	return uniqueSortedTags(clips), nil
}

func (s *PostgresStore) Setting(ctx context.Context, key string) (string, bool, error) {
	var value string

	err := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query setting %s: %w", key, err)
	}

	return value, true, nil
}

func (s *PostgresStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO settings (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}

	return nil
}

func (s *PostgresStore) AllSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	settings := map[string]string{}

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}

		settings[key] = value
	}

	return settings, rows.Err()
}

func (s *PostgresStore) EnsureDefaults(ctx context.Context, defaults map[string]string) error {
	batch := &pgx.Batch{}
	for key, value := range defaults {
		batch.Queue(`INSERT INTO settings (key, value) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`, key, value)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("set default settings: %w", err)
	}

	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPgClip(row pgx.Row) (model.Clip, error) {
	var c model.Clip

	err := row.Scan(&c.ID, &c.Filename, &c.Tags, &c.CreatedAt, &c.PlayCount)
	c.Tags = nonNil(c.Tags)

	return c, err
}
