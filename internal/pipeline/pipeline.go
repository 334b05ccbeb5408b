// Package pipeline turns an audio chunk into a trigger decision:
// transcription, tag matching against the clip library and the trigger engine.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mgoltzsche/sobub/internal/model"
	"github.com/mgoltzsche/sobub/internal/observe"
	"github.com/mgoltzsche/sobub/internal/store"
	"github.com/mgoltzsche/sobub/internal/tagmatch"
	"github.com/mgoltzsche/sobub/internal/trigger"
)

const (
	DefaultLanguage  = "en"
	playCountTimeout = 10 * time.Second
)

// Kind identifies the terminal state of a pipeline run.
type Kind string

const (
	KindNoTranscription Kind = "no-transcription"
	KindNoClips         Kind = "no-clips"
	KindNoMatch         Kind = "no-match"
	KindError           Kind = "error"
	KindComplete        Kind = "complete"
)

// Result is the outcome of processing one audio chunk.
// Which fields are set depends on Kind.
type Result struct {
	Kind          Kind
	Transcription string
	// CorrectedText is the transcription after phonetic correction, if any was applied.
	CorrectedText string
	Corrections   []tagmatch.Correction
	Match         tagmatch.Result
	Candidates    []model.Clip
	Decision      trigger.Decision
	Err           string
}

// Options override the stored settings for a single run.
type Options struct {
	Language    string
	UseStemming *bool
	// SessionID selects the trigger engine.
	SessionID string
}

// Transcriber converts audio into text. An empty text means no speech.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, language string) (string, error)
}

// Engines returns the trigger engine responsible for a session.
type Engines interface {
	Engine(sessionID string) *trigger.Engine
}

type Store interface {
	store.ClipReader
	store.PlayCounter
	store.Settings
}

type Option func(*Pipeline)

// WithPhoneticCorrector corrects misheard tag words before matching.
func WithPhoneticCorrector(c *tagmatch.PhoneticCorrector) Option {
	return func(p *Pipeline) {
		p.corrector = c
	}
}

func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// Pipeline processes audio chunks. It is safe for concurrent use.
type Pipeline struct {
	transcriber Transcriber
	store       Store
	engines     Engines
	corrector   *tagmatch.PhoneticCorrector
	metrics     *observe.Metrics
	playCounts  sync.WaitGroup
}

func New(transcriber Transcriber, s Store, engines Engines, opts ...Option) *Pipeline {
	p := &Pipeline{
		transcriber: transcriber,
		store:       s,
		engines:     engines,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Process runs the pipeline for one audio chunk.
// It never fails: errors and panics are returned as KindError result.
func (p *Pipeline) Process(ctx context.Context, audio []byte, opts Options) (result Result) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "pipeline.process")

	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("recovered from panic while processing audio chunk: %v", r), "stack", string(debug.Stack()))
			result = Result{Kind: KindError, Err: fmt.Sprintf("internal error: %v", r)}
		}

		span.SetAttributes(attribute.String("sobub.result", string(result.Kind)))
		span.End()

		if p.metrics != nil {
			p.metrics.RecordPipelineResult(ctx, string(result.Kind), time.Since(start))
		}
	}()

	result, err := p.process(ctx, audio, opts)
	if err != nil {
		observe.Logger(ctx).Warn("failed to process audio chunk", "err", err)
		return Result{Kind: KindError, Err: err.Error()}
	}

	return result
}

func (p *Pipeline) process(ctx context.Context, audio []byte, opts Options) (Result, error) {
	language, stem, err := p.effectiveSettings(ctx, opts)
	if err != nil {
		return Result{}, err
	}

	text, err := p.transcriber.Transcribe(ctx, audio, language)
	if err != nil {
		return Result{}, err
	}

	if text == "" {
		return Result{Kind: KindNoTranscription}, nil
	}

	clips, err := p.store.AllClips(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load clips: %w", err)
	}

	if len(clips) == 0 {
		slog.Warn("no memes in database")
		return Result{Kind: KindNoClips, Transcription: text}, nil
	}

	vocabulary := tagmatch.Vocabulary(clips)
	matchText := text
	result := Result{Transcription: text}

	if p.corrector != nil {
		corrected, corrections := p.corrector.Correct(text, vocabulary)
		if len(corrections) > 0 {
			slog.Debug(fmt.Sprintf("phonetically corrected %q to %q", text, corrected))
			matchText = corrected
			result.CorrectedText = corrected
			result.Corrections = corrections
		}
	}

	result.Match = tagmatch.Match(matchText, vocabulary, stem)
	if !result.Match.Matched() {
		result.Kind = KindNoMatch
		return result, nil
	}

	slog.Info(fmt.Sprintf("matched tags %v in %q", result.Match.Tags, text))

	result.Candidates = tagmatch.Candidates(clips, result.Match.Tags, stem)
	result.Decision = p.engines.Engine(opts.SessionID).AttemptTrigger(result.Candidates, result.Match.Scores)
	result.Kind = KindComplete

	if p.metrics != nil {
		p.metrics.RecordTriggerDecision(ctx, string(result.Decision.Outcome))
	}

	if result.Decision.Outcome == trigger.Triggered {
		clip := result.Decision.Clip
		slog.Info(fmt.Sprintf("triggering meme %d: %s", clip.ID, clip.Filename))
		p.incrementPlayCount(ctx, clip.ID)
	}

	return result, nil
}

func (p *Pipeline) effectiveSettings(ctx context.Context, opts Options) (string, bool, error) {
	language := opts.Language
	if language == "" {
		v, ok, err := p.store.Setting(ctx, model.SettingLanguage)
		if err != nil {
			return "", false, fmt.Errorf("load language setting: %w", err)
		}

		language = DefaultLanguage
		if ok && v != "" {
			language = v
		}
	}

	if opts.UseStemming != nil {
		return language, *opts.UseStemming, nil
	}

	v, _, err := p.store.Setting(ctx, model.SettingUseStemming)
	if err != nil {
		return "", false, fmt.Errorf("load stemming setting: %w", err)
	}

	return language, v == "true", nil
}

// incrementPlayCount updates the play count in the background so that the
// notification does not wait for it. Failures are only logged.
func (p *Pipeline) incrementPlayCount(ctx context.Context, id int64) {
	p.playCounts.Add(1)

	go func() {
		defer p.playCounts.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), playCountTimeout)
		defer cancel()

		if err := p.store.IncrementPlayCount(ctx, id); err != nil {
			slog.Warn("failed to increment play count", "meme_id", id, "err", err)
		}
	}()
}

// Wait blocks until all background play count updates finished.
func (p *Pipeline) Wait() {
	p.playCounts.Wait()
}
