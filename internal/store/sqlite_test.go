package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// newTestPostgresStore connects to the database SOBUB_TEST_POSTGRES_DSN points to.
func newTestPostgresStore(t *testing.T) Store {
	t.Helper()
	dsn := os.Getenv("SOBUB_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SOBUB_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, dsn)
	require.NoError(t, err)
	_, err = s.pool.Exec(ctx, "TRUNCATE memes, settings RESTART IDENTITY")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	for _, tc := range []struct {
		name    string
		factory func(t *testing.T) Store
	}{
		{"sqlite", newTestStore},
		{"postgres", newTestPostgresStore},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fn(t, tc.factory(t))
		})
	}
}

func TestClipCRUD(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		created, err := s.CreateClip(ctx, "goal.mp3", []string{"Goal", "football"})
		require.NoError(t, err)
		require.NotZero(t, created.ID)
		require.Equal(t, "goal.mp3", created.Filename)

		got, err := s.Clip(ctx, created.ID)
		require.NoError(t, err)
		require.Equal(t, []string{"Goal", "football"}, got.Tags)
		require.Equal(t, int64(0), got.PlayCount)

		exists, err := s.FilenameExists(ctx, "goal.mp3")
		require.NoError(t, err)
		require.True(t, exists)

		updated, err := s.UpdateTags(ctx, created.ID, []string{"incredible goal"})
		require.NoError(t, err)
		require.Equal(t, []string{"incredible goal"}, updated.Tags)

		require.NoError(t, s.IncrementPlayCount(ctx, created.ID))
		require.NoError(t, s.IncrementPlayCount(ctx, created.ID))
		got, err = s.Clip(ctx, created.ID)
		require.NoError(t, err)
		require.Equal(t, int64(2), got.PlayCount)

		require.NoError(t, s.DeleteClip(ctx, created.ID))
		_, err = s.Clip(ctx, created.ID)
		require.ErrorIs(t, err, ErrNotFound)
		require.ErrorIs(t, s.DeleteClip(ctx, created.ID), ErrNotFound)
		require.ErrorIs(t, s.IncrementPlayCount(ctx, created.ID), ErrNotFound)
		_, err = s.UpdateTags(ctx, created.ID, []string{"x"})
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestClipsByTags(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		goal, err := s.CreateClip(ctx, "goal.mp3", []string{"Goal", "football"})
		require.NoError(t, err)
		_, err = s.CreateClip(ctx, "tennis.mp3", []string{"tennis"})
		require.NoError(t, err)
		penalty, err := s.CreateClip(ctx, "penalty.mp3", []string{"penalty", "football"})
		require.NoError(t, err)

		for _, tc := range []struct {
			name     string
			tags     []string
			expected []int64
		}{
			{"no tags", nil, []int64{}},
			{"case insensitive", []string{"goal"}, []int64{goal.ID}},
			{"any match", []string{"GOAL", "penalty"}, []int64{penalty.ID, goal.ID}},
			{"shared tag", []string{"football"}, []int64{penalty.ID, goal.ID}},
			{"unknown tag", []string{"cricket"}, []int64{}},
		} {
			t.Run(tc.name, func(t *testing.T) {
				clips, err := s.ClipsByTags(ctx, tc.tags)
				require.NoError(t, err)
				ids := []int64{}
				for _, c := range clips {
					ids = append(ids, c.ID)
				}
				require.ElementsMatch(t, tc.expected, ids)
			})
		}

		all, err := s.AllClips(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)

		tags, err := s.Tags(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"football", "Goal", "penalty", "tennis"}, tags)
	})
}

func TestSettings(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		_, ok, err := s.Setting(ctx, "language")
		require.NoError(t, err)
		require.False(t, ok, "unset setting")

		require.NoError(t, s.SetSetting(ctx, "language", "de"))
		require.NoError(t, s.EnsureDefaults(ctx, map[string]string{
			"language":         "pt",
			"cooldown_seconds": "180",
		}))

		v, ok, err := s.Setting(ctx, "language")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "de", v, "defaults must not override")

		require.NoError(t, s.SetSetting(ctx, "cooldown_seconds", "60"))

		all, err := s.AllSettings(ctx)
		require.NoError(t, err)
		require.Equal(t, map[string]string{"language": "de", "cooldown_seconds": "60"}, all)
	})
}

func TestOpenSQLite(t *testing.T) {
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "sub", "sobub.db"))
	require.NoError(t, err)
	defer s.Close()

	require.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Ping(context.Background()))
}
