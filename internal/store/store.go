// Package store persists the clip library and the runtime settings.
package store

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/mgoltzsche/sobub/internal/model"
)

// ErrNotFound is returned when a clip does not exist.
var ErrNotFound = errors.New("not found")

// ClipReader provides read access to the clip library.
type ClipReader interface {
	// AllClips returns all clips, newest first.
	AllClips(ctx context.Context) ([]model.Clip, error)

	// ClipsByTags returns the clips that carry at least one of the given tags,
	// compared case-insensitively.
	ClipsByTags(ctx context.Context, tags []string) ([]model.Clip, error)
}

// PlayCounter records clip playback.
type PlayCounter interface {
	IncrementPlayCount(ctx context.Context, id int64) error
}

// Settings provides access to the runtime settings.
type Settings interface {
	// Setting returns the value of the given key and whether it is set.
	Setting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
	AllSettings(ctx context.Context) (map[string]string, error)
}

// Store is the complete storage interface.
type Store interface {
	ClipReader
	PlayCounter
	Settings

	CreateClip(ctx context.Context, filename string, tags []string) (*model.Clip, error)
	Clip(ctx context.Context, id int64) (*model.Clip, error)
	UpdateTags(ctx context.Context, id int64, tags []string) (*model.Clip, error)
	DeleteClip(ctx context.Context, id int64) error
	// FilenameExists reports whether a clip with the given file name exists.
	FilenameExists(ctx context.Context, filename string) (bool, error)
	// Tags returns the sorted unique tags of all clips.
	Tags(ctx context.Context) ([]string, error)
	// EnsureDefaults sets the given settings unless they are already set.
	EnsureDefaults(ctx context.Context, defaults map[string]string) error
	Ping(ctx context.Context) error
	Close() error
}

// Open opens the store the given URL points to.
// URLs starting with postgres:// or postgresql:// select PostgreSQL,
// anything else is treated as an SQLite database file path.
func Open(ctx context.Context, url string) (Store, error) {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return NewPostgresStore(ctx, url)
	}

	return NewSQLiteStore(strings.TrimPrefix(url, "sqlite://"))
}

func hasAnyTag(clip model.Clip, lowerTags map[string]struct{}) bool {
	for _, tag := range clip.Tags {
		if _, ok := lowerTags[strings.ToLower(tag)]; ok {
			return true
		}
	}

	return false
}

func lowerSet(tags []string) map[string]struct{} {
	m := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		m[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	return m
}

func uniqueSortedTags(clips []model.Clip) []string {
	seen := map[string]struct{}{}
	tags := []string{}

	for _, c := range clips {
		for _, t := range c.Tags {
			key := strings.ToLower(t)
			if _, ok := seen[key]; ok {
				continue
			}

			seen[key] = struct{}{}
			tags = append(tags, t)
		}
	}

	slices.SortFunc(tags, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})

	return tags
}
