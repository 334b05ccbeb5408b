package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mgoltzsche/sobub/internal/model"
	"github.com/mgoltzsche/sobub/internal/store"
	"github.com/mgoltzsche/sobub/internal/tagmatch"
	"github.com/mgoltzsche/sobub/internal/trigger"
)

type fakeTranscriber struct {
	text      string
	err       error
	panicWith any
	language  string
}

func (t *fakeTranscriber) Transcribe(_ context.Context, _ []byte, language string) (string, error) {
	if t.panicWith != nil {
		panic(t.panicWith)
	}
	t.language = language
	return t.text, t.err
}

func newTestStore(t *testing.T, clips map[string][]string) store.Store {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	for _, filename := range []string{"goal.mp3", "penalty.mp3", "tennis.mp3"} {
		if tags, ok := clips[filename]; ok {
			_, err := s.CreateClip(context.Background(), filename, tags)
			require.NoError(t, err)
		}
	}

	return s
}

func newTestEngines(t *testing.T, draw float64, cooldown time.Duration, probability float64) *trigger.Provider {
	t.Helper()
	p, err := trigger.NewProvider(trigger.ScopeGlobal, trigger.WithRand(
		func() float64 { return draw },
		func(n int) int { return 0 },
	))
	require.NoError(t, err)
	p.Configure(cooldown, probability)
	return p
}

func TestProcessEndToEnd(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, map[string][]string{"goal.mp3": {"goal", "football"}})
	engines := newTestEngines(t, 99.9, time.Minute, 100)
	engines.ResetAll()
	testee := New(&fakeTranscriber{text: "that goal was amazing"}, s, engines)

	result := testee.Process(ctx, []byte("audio"), Options{})
	testee.Wait()

	require.Equal(t, KindComplete, result.Kind)
	require.Equal(t, []string{"goal"}, result.Match.Tags)
	require.Equal(t, trigger.Triggered, result.Decision.Outcome)
	require.Equal(t, int64(1), result.Decision.Clip.ID)

	msgs := BuildMessages(result)
	require.Equal(t, []model.Notification{
		{Type: model.NotificationTranscription, Text: "that goal was amazing"},
		{Type: model.NotificationMatch, MatchedTags: []string{"goal"}, Transcription: "that goal was amazing"},
		{Type: model.NotificationTrigger, MemeID: 1, Filename: "goal.mp3", MatchedTags: []string{"goal"}},
	}, msgs)

	clip, err := s.Clip(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), clip.PlayCount)

	// the cooldown starts only once playback ended
	result = testee.Process(ctx, []byte("audio"), Options{})
	require.Equal(t, trigger.Triggered, result.Decision.Outcome)

	engines.Engine("").StartCooldown()
	result = testee.Process(ctx, []byte("audio"), Options{})
	testee.Wait()
	require.Equal(t, trigger.BlockedByCooldown, result.Decision.Outcome)
	require.Equal(t, 60, result.Decision.CooldownRemaining)
	require.Equal(t, "Cooldown active: 60s remaining", BuildMessages(result)[2].Message)
}

func TestProcess(t *testing.T) {
	clips := map[string][]string{
		"goal.mp3":    {"goal", "football"},
		"penalty.mp3": {"penalty kick", "Goal"},
		"tennis.mp3":  {"tennis"},
	}

	for _, tc := range []struct {
		name           string
		clips          map[string][]string
		transcriber    *fakeTranscriber
		draw           float64
		opts           Options
		expectKind     Kind
		expectTags     []string
		expectOutcome  trigger.Outcome
		expectFilename string
		expectErr      string
	}{
		{
			name:        "silence",
			clips:       clips,
			transcriber: &fakeTranscriber{text: ""},
			expectKind:  KindNoTranscription,
		},
		{
			name:        "empty library",
			transcriber: &fakeTranscriber{text: "goal"},
			expectKind:  KindNoClips,
		},
		{
			name:        "no match",
			clips:       clips,
			transcriber: &fakeTranscriber{text: "nice weather today"},
			expectKind:  KindNoMatch,
		},
		{
			name:        "transcription failure",
			clips:       clips,
			transcriber: &fakeTranscriber{err: errors.New("stt server down")},
			expectKind:  KindError,
			expectErr:   "stt server down",
		},
		{
			name:        "panic",
			clips:       clips,
			transcriber: &fakeTranscriber{panicWith: "boom"},
			expectKind:  KindError,
			expectErr:   "internal error: boom",
		},
		{
			name:          "unlucky roll",
			clips:         clips,
			transcriber:   &fakeTranscriber{text: "what a goal"},
			draw:          50,
			expectKind:    KindComplete,
			expectTags:    []string{"Goal"},
			expectOutcome: trigger.BlockedByProbability,
		},
		{
			name:           "most specific tag wins",
			clips:          clips,
			transcriber:    &fakeTranscriber{text: "goal after a penalty kick"},
			expectKind:     KindComplete,
			expectTags:     []string{"Goal", "penalty kick"},
			expectOutcome:  trigger.Triggered,
			expectFilename: "penalty.mp3",
		},
		{
			name:           "stemming option",
			clips:          clips,
			transcriber:    &fakeTranscriber{text: "so many goals"},
			opts:           Options{UseStemming: ptr(true)},
			expectKind:     KindComplete,
			expectTags:     []string{"Goal"},
			expectOutcome:  trigger.Triggered,
			expectFilename: "penalty.mp3",
		},
		{
			name:        "stemming disabled",
			clips:       clips,
			transcriber: &fakeTranscriber{text: "so many goals"},
			expectKind:  KindNoMatch,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestStore(t, tc.clips)
			testee := New(tc.transcriber, s, newTestEngines(t, tc.draw, time.Minute, 50))

			result := testee.Process(context.Background(), []byte("audio"), tc.opts)
			testee.Wait()

			require.Equal(t, tc.expectKind, result.Kind)
			require.Equal(t, tc.expectErr, result.Err)
			if tc.expectTags != nil {
				require.ElementsMatch(t, tc.expectTags, result.Match.Tags)
			}
			require.Equal(t, tc.expectOutcome, result.Decision.Outcome)
			if tc.expectFilename != "" {
				require.Equal(t, tc.expectFilename, result.Decision.Clip.Filename)
			}
		})
	}
}

func TestProcessEquivalentTagSpellings(t *testing.T) {
	for _, tc := range []struct {
		name string
		tags [][]string
		text string
		stem bool
	}{
		{
			name: "accent variants",
			tags: [][]string{{"café"}, {"cafe"}},
			text: "I want a cafe",
		},
		{
			name: "stemmed variants",
			tags: [][]string{{"goal"}, {"goals"}},
			text: "those goals",
			stem: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			s := newTestStore(t, nil)
			for i, tags := range tc.tags {
				_, err := s.CreateClip(ctx, fmt.Sprintf("clip%d.mp3", i+1), tags)
				require.NoError(t, err)
			}
			testee := New(&fakeTranscriber{text: tc.text}, s, newTestEngines(t, 0, 0, 100))

			result := testee.Process(ctx, nil, Options{UseStemming: ptr(tc.stem)})
			testee.Wait()

			require.Equal(t, KindComplete, result.Kind)
			require.Len(t, result.Match.Tags, 1)
			require.Len(t, result.Candidates, 2)
			require.Equal(t, trigger.Triggered, result.Decision.Outcome)
		})
	}
}

func TestProcessLanguage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)
	transcriber := &fakeTranscriber{}
	testee := New(transcriber, s, newTestEngines(t, 0, 0, 100))

	testee.Process(ctx, nil, Options{})
	require.Equal(t, DefaultLanguage, transcriber.language)

	require.NoError(t, s.SetSetting(ctx, model.SettingLanguage, "pt"))
	testee.Process(ctx, nil, Options{})
	require.Equal(t, "pt", transcriber.language)

	testee.Process(ctx, nil, Options{Language: "de"})
	require.Equal(t, "de", transcriber.language)
}

func TestProcessStemmingSetting(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, map[string][]string{"goal.mp3": {"goal"}})
	require.NoError(t, s.SetSetting(ctx, model.SettingUseStemming, "true"))
	testee := New(&fakeTranscriber{text: "two goals"}, s, newTestEngines(t, 0, 0, 100))

	result := testee.Process(ctx, nil, Options{})
	testee.Wait()
	require.Equal(t, KindComplete, result.Kind)

	result = testee.Process(ctx, nil, Options{UseStemming: ptr(false)})
	require.Equal(t, KindNoMatch, result.Kind)
}

func TestProcessPhoneticCorrection(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, map[string][]string{"goal.mp3": {"Eldrinax"}})
	testee := New(&fakeTranscriber{text: "I saw eldrinacks yesterday"}, s, newTestEngines(t, 0, 0, 100),
		WithPhoneticCorrector(tagmatch.NewPhoneticCorrector()))

	result := testee.Process(ctx, nil, Options{})
	testee.Wait()

	require.Equal(t, KindComplete, result.Kind)
	require.Equal(t, "I saw eldrinacks yesterday", result.Transcription)
	require.Equal(t, "i saw Eldrinax yesterday", result.CorrectedText)
	require.Equal(t, []string{"Eldrinax"}, result.Match.Tags)
	require.Len(t, result.Corrections, 1)
}

func ptr[T any](v T) *T {
	return &v
}
