package library

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mgoltzsche/sobub/internal/soundgen"
	"github.com/mgoltzsche/sobub/internal/store"
)

var fakeMP3 = append([]byte("ID3"), make([]byte, 64)...)

func newTestLibrary(t *testing.T) *Library {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	l, err := New(filepath.Join(t.TempDir(), "audio"), s)
	require.NoError(t, err)
	return l
}

func TestParseTags(t *testing.T) {
	for _, tc := range []struct {
		name     string
		input    string
		expected []string
	}{
		{"empty", "", []string{}},
		{"simple", "football, goal, sports", []string{"football", "goal", "sports"}},
		{"dedupe case insensitive", "  tag1,tag2  , tag1, TAG1,  ", []string{"tag1", "tag2"}},
		{"phrases", "incredible goal,Goal", []string{"incredible goal", "Goal"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, ParseTags(tc.input))
		})
	}
}

func TestValidateTags(t *testing.T) {
	tooMany := make([]string, MaxTagsPerClip+1)
	for i := range tooMany {
		tooMany[i] = strings.Repeat("x", i+1)
	}

	for _, tc := range []struct {
		name  string
		tags  []string
		valid bool
	}{
		{"valid", []string{"football", "goal"}, true},
		{"none", nil, false},
		{"too long", []string{strings.Repeat("a", 51)}, false},
		{"max length", []string{strings.Repeat("a", 50)}, true},
		{"too many", tooMany, false},
		{"empty", []string{""}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateTags(tc.tags)
			if tc.valid {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrInvalidTags)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	for _, tc := range []struct {
		input    string
		expected string
	}{
		{"../../etc/passwd", "passwd"},
		{"my file.mp3", "my_file.mp3"},
		{"olé  olé!.mp3", "ol_ol_.mp3"},
		{"", "audio.mp3"},
		{"..", "audio.mp3"},
		{"C:\\Users\\me\\goal.mp3", "goal.mp3"},
		{strings.Repeat("a", 300) + ".mp3", strings.Repeat("a", 251) + ".mp3"},
	} {
		t.Run(tc.input, func(t *testing.T) {
			require.Equal(t, tc.expected, SanitizeFilename(tc.input))
		})
	}
}

func TestValidateAudio(t *testing.T) {
	gen := &soundgen.Generator{SampleRate: 16000}
	wav, err := gen.Tone(440, 500*time.Millisecond)
	require.NoError(t, err)
	tooShort, err := gen.Tone(440, 10*time.Millisecond)
	require.NoError(t, err)

	for _, tc := range []struct {
		name     string
		filename string
		data     []byte
		err      error
	}{
		{"mp3", "a.mp3", fakeMP3, nil},
		{"mp3 frame sync", "a.MP3", []byte{0xFF, 0xFB, 0x90, 0x00}, nil},
		{"wav", "a.wav", wav, nil},
		{"wav too short", "a.wav", tooShort, ErrInvalidAudio},
		{"not an mp3", "a.mp3", []byte("hello"), ErrInvalidAudio},
		{"not a wav", "a.wav", []byte("RIFF...."), ErrInvalidAudio},
		{"empty", "a.mp3", nil, ErrInvalidAudio},
		{"unsupported", "a.ogg", []byte("OggS"), ErrUnsupportedFormat},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateAudio(tc.filename, tc.data)
			if tc.err == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tc.err)
			}
		})
	}
}

func TestLibrary(t *testing.T) {
	ctx := context.Background()
	l := newTestLibrary(t)

	first, err := l.Add(ctx, "my goal.mp3", fakeMP3, []string{"goal", " Goal ", "football"})
	require.NoError(t, err)
	require.Equal(t, "my_goal.mp3", first.Filename)
	require.Equal(t, []string{"goal", "football"}, first.Tags)

	second, err := l.Add(ctx, "my goal.mp3", fakeMP3, []string{"goal"})
	require.NoError(t, err)
	require.Equal(t, "my_goal_1.mp3", second.Filename)

	third, err := l.Add(ctx, "my_goal.mp3", fakeMP3, []string{"goal"})
	require.NoError(t, err)
	require.Equal(t, "my_goal_2.mp3", third.Filename)

	b, err := os.ReadFile(l.Path(second.Filename))
	require.NoError(t, err)
	require.Equal(t, fakeMP3, b)

	_, err = l.Add(ctx, "notags.mp3", fakeMP3, nil)
	require.ErrorIs(t, err, ErrInvalidTags)

	updated, err := l.UpdateTags(ctx, first.ID, []string{"penalty"})
	require.NoError(t, err)
	require.Equal(t, []string{"penalty"}, updated.Tags)

	_, err = l.UpdateTags(ctx, first.ID, []string{" "})
	require.ErrorIs(t, err, ErrInvalidTags)

	require.NoError(t, l.Delete(ctx, first.ID))
	_, err = os.Stat(l.Path(first.Filename))
	require.True(t, os.IsNotExist(err), "file should be deleted")
	require.ErrorIs(t, l.Delete(ctx, first.ID), store.ErrNotFound)
}

func TestContentType(t *testing.T) {
	require.Equal(t, "audio/wav", ContentType("a.WAV"))
	require.Equal(t, "audio/mpeg", ContentType("a.mp3"))
}
