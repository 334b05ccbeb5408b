// Package library manages the audio files of the clips and keeps them in
// sync with the store.
package library

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/wav"

	"github.com/mgoltzsche/sobub/internal/model"
	"github.com/mgoltzsche/sobub/internal/store"
)

const (
	MaxFileSize       = 50 * 1024 * 1024
	MaxFilenameLength = 255
	MinDuration       = 100 * time.Millisecond
	MaxDuration       = 300 * time.Second
	fallbackFilename  = "audio.mp3"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrInvalidAudio      = errors.New("invalid audio file")
)

// Library stores clip audio files within a directory.
type Library struct {
	Dir   string
	Store store.Store
}

// New creates the audio directory if necessary.
func New(dir string, s store.Store) (*Library, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}

	return &Library{Dir: dir, Store: s}, nil
}

// Add validates the audio file, writes it into the library directory and
// creates the corresponding clip.
func (l *Library) Add(ctx context.Context, name string, data []byte, tags []string) (*model.Clip, error) {
	tags = CleanTags(tags)
	if err := ValidateTags(tags); err != nil {
		return nil, err
	}

	filename := SanitizeFilename(name)

	if err := ValidateAudio(filename, data); err != nil {
		return nil, err
	}

	filename, err := l.uniqueFilename(ctx, filename)
	if err != nil {
		return nil, err
	}

	path := l.Path(filename)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create audio file: %w", err)
	}

	_, err = f.Write(data)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write audio file: %w", err)
	}

	clip, err := l.Store.CreateClip(ctx, filename, tags)
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}

	slog.Info(fmt.Sprintf("added clip %d: %s %v", clip.ID, filename, tags))

	return clip, nil
}

// UpdateTags replaces the tags of a clip.
func (l *Library) UpdateTags(ctx context.Context, id int64, tags []string) (*model.Clip, error) {
	tags = CleanTags(tags)
	if err := ValidateTags(tags); err != nil {
		return nil, err
	}

	return l.Store.UpdateTags(ctx, id, tags)
}

// Delete removes the clip and its audio file.
func (l *Library) Delete(ctx context.Context, id int64) error {
	clip, err := l.Store.Clip(ctx, id)
	if err != nil {
		return err
	}

	if err := l.Store.DeleteClip(ctx, id); err != nil {
		return err
	}

	err = os.Remove(l.Path(clip.Filename))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to delete clip audio file", "file", clip.Filename, "err", err)
	}

	slog.Info(fmt.Sprintf("deleted clip %d: %s", id, clip.Filename))

	return nil
}

// Path returns the location of the given clip file within the library.
func (l *Library) Path(filename string) string {
	return filepath.Join(l.Dir, filepath.Base(filename))
}

// ContentType returns the MIME type of the given clip file.
func ContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".wav":
		return "audio/wav"
	default:
		return "audio/mpeg"
	}
}

func (l *Library) uniqueFilename(ctx context.Context, filename string) (string, error) {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	candidate := filename

	for i := 1; ; i++ {
		inStore, err := l.Store.FilenameExists(ctx, candidate)
		if err != nil {
			return "", err
		}

		_, err = os.Stat(l.Path(candidate))
		onDisk := err == nil

		if !inStore && !onDisk {
			return candidate, nil
		}

		candidate = fmt.Sprintf("%s_%d%s", base, i, ext)
	}
}

// SanitizeFilename strips directories from the name and replaces every
// character except ASCII letters, digits, '.', '_' and '-' with '_'.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		name = ""
	}

	var b strings.Builder
	lastUnderscore := false

	for _, r := range name {
		safe := r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '.' || r == '-' || r == '_'
		if !safe {
			r = '_'
		}

		if r == '_' {
			if lastUnderscore {
				continue
			}
			lastUnderscore = true
		} else {
			lastUnderscore = false
		}

		b.WriteRune(r)
	}

	name = strings.TrimLeft(b.String(), ".")
	if name == "" || name == "_" {
		return fallbackFilename
	}

	if len(name) > MaxFilenameLength {
		ext := filepath.Ext(name)
		if len(ext) >= MaxFilenameLength {
			ext = ""
		}
		name = name[:MaxFilenameLength-len(ext)] + ext
	}

	return name
}

// ValidateAudio checks the size, format and, for WAV files, the duration of
// an uploaded clip.
func ValidateAudio(filename string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty file", ErrInvalidAudio)
	}

	if len(data) > MaxFileSize {
		return fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidAudio, MaxFileSize)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp3":
		if !isMP3(data) {
			return fmt.Errorf("%w: %s is not an mp3 file", ErrInvalidAudio, filename)
		}

		return nil
	case ".wav":
		return validateWAV(data)
	default:
		return fmt.Errorf("%w: %s, supported formats are mp3 and wav", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

func isMP3(data []byte) bool {
	if bytes.HasPrefix(data, []byte("ID3")) {
		return true
	}

	return len(data) > 1 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

func validateWAV(data []byte) error {
	decoder := wav.NewDecoder(bytes.NewReader(data))

	decoder.ReadInfo()
	if err := decoder.Err(); err != nil {
		return fmt.Errorf("%w: read wave file headers: %w", ErrInvalidAudio, err)
	}

	if !decoder.IsValidFile() {
		return fmt.Errorf("%w: invalid wave file", ErrInvalidAudio)
	}

	duration, err := decoder.Duration()
	if err != nil {
		return fmt.Errorf("%w: get audio duration from wave headers: %w", ErrInvalidAudio, err)
	}

	if duration < MinDuration || duration > MaxDuration {
		return fmt.Errorf("%w: duration %s is not within %s and %s", ErrInvalidAudio, duration, MinDuration, MaxDuration)
	}

	return nil
}
