package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mgoltzsche/sobub/internal/model"
)

var _ Store = &SQLiteStore{}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memes (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		filename   TEXT NOT NULL UNIQUE,
		tags       TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL,
		play_count INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_memes_created ON memes(created_at DESC);

	CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) CreateClip(ctx context.Context, filename string, tags []string) (*model.Clip, error) {
	tagsJSON, err := json.Marshal(nonNil(tags))
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}

	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO memes (filename, tags, created_at) VALUES (?, ?, ?)`,
		filename, string(tagsJSON), now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert meme: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get inserted meme id: %w", err)
	}

	return &model.Clip{
		ID:        id,
		Filename:  filename,
		Tags:      nonNil(tags),
		CreatedAt: now,
	}, nil
}

func (s *SQLiteStore) Clip(ctx context.Context, id int64) (*model.Clip, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, filename, tags, created_at, play_count FROM memes WHERE id = ?`, id)

	c, err := scanClip(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("meme %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	return &c, nil
}

func (s *SQLiteStore) AllClips(ctx context.Context) ([]model.Clip, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, tags, created_at, play_count FROM memes ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query memes: %w", err)
	}
	defer rows.Close()

	clips := []model.Clip{}

	for rows.Next() {
		c, err := scanClip(rows)
		if err != nil {
			return nil, err
		}

		clips = append(clips, c)
	}

	return clips, rows.Err()
}

func (s *SQLiteStore) ClipsByTags(ctx context.Context, tags []string) ([]model.Clip, error) {
	if len(tags) == 0 {
		return []model.Clip{}, nil
	}

	all, err := s.AllClips(ctx)
	if err != nil {
		return nil, err
	}

	wanted := lowerSet(tags)
	clips := []model.Clip{}

	for _, c := range all {
		if hasAnyTag(c, wanted) {
			clips = append(clips, c)
		}
	}

	return clips, nil
}

func (s *SQLiteStore) UpdateTags(ctx context.Context, id int64, tags []string) (*model.Clip, error) {
	tagsJSON, err := json.Marshal(nonNil(tags))
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `UPDATE memes SET tags = ? WHERE id = ?`, string(tagsJSON), id)
	if err != nil {
		return nil, fmt.Errorf("update meme tags: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("meme %d: %w", id, ErrNotFound)
	}

	return s.Clip(ctx, id)
}

func (s *SQLiteStore) DeleteClip(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete meme: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("meme %d: %w", id, ErrNotFound)
	}

	return nil
}

func (s *SQLiteStore) FilenameExists(ctx context.Context, filename string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memes WHERE filename = ?`, filename).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query meme filename: %w", err)
	}

	return n > 0, nil
}

func (s *SQLiteStore) IncrementPlayCount(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE memes SET play_count = play_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("increment play count: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("meme %d: %w", id, ErrNotFound)
	}

	return nil
}

func (s *SQLiteStore) Tags(ctx context.Context) ([]string, error) {
	clips, err := s.AllClips(ctx)
	if err != nil {
		return nil, err
	}

	return uniqueSortedTags(clips), nil
}

func (s *SQLiteStore) Setting(ctx context.Context, key string) (string, bool, error) {
	var value string

	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query setting %s: %w", key, err)
	}

	return value, true, nil
}

func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}

	return nil
}

func (s *SQLiteStore) AllSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
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

func (s *SQLiteStore) EnsureDefaults(ctx context.Context, defaults map[string]string) error {
	for key, value := range defaults {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`, key, value)
		if err != nil {
			return fmt.Errorf("set default setting %s: %w", key, err)
		}
	}

	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanClip(row scanner) (model.Clip, error) {
	var (
		c         model.Clip
		tagsJSON  string
		createdAt string
	)

	err := row.Scan(&c.ID, &c.Filename, &tagsJSON, &createdAt, &c.PlayCount)
	if err != nil {
		return c, err
	}

	if err := json.Unmarshal([]byte(tagsJSON), &c.Tags); err != nil {
		return c, fmt.Errorf("unmarshal tags of meme %d: %w", c.ID, err)
	}

	c.Tags = nonNil(c.Tags)

	c.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return c, fmt.Errorf("parse created_at of meme %d: %w", c.ID, err)
	}

	return c, nil
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
