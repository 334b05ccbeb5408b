package stt

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"

	"github.com/mgoltzsche/sobub/internal/observe"
	"github.com/mgoltzsche/sobub/internal/resilience"
)

const (
	DefaultMinChunkBytes = 1024
	DefaultSampleRate    = 16000
	blankAudioMarker     = "[BLANK_AUDIO]"
)

// VoiceDetector reports whether the audio contains speech.
type VoiceDetector interface {
	DetectVoice(buf audio.Buffer) (bool, error)
}

// Transcriber turns audio chunks into text.
// Chunks that cannot or do not contain speech yield an empty text.
type Transcriber struct {
	Service Service
	// MinChunkBytes defaults to DefaultMinChunkBytes.
	MinChunkBytes int
	// SampleRate of headerless PCM chunks. Defaults to DefaultSampleRate.
	SampleRate    int
	VoiceDetector VoiceDetector
	Breaker       *resilience.CircuitBreaker
	Metrics       *observe.Metrics
}

// NewCircuitBreaker returns a breaker that ignores rejected audio and
// cancelled requests.
func NewCircuitBreaker() *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker(resilience.Config{
		Name: "stt",
		IsFailure: func(err error) bool {
			return err != nil && !IsRejected(err) && !errors.Is(err, context.Canceled)
		},
	})
}

// Transcribe transcribes the provided speech to text.
// It returns "" when the chunk contains no speech.
func (t *Transcriber) Transcribe(ctx context.Context, data []byte, language string) (string, error) {
	data, format, err := t.prepare(data)
	if err != nil {
		if errors.Is(err, ErrChunkTooSmall) {
			slog.Debug("skipping audio chunk", "err", err)
			return "", nil
		}

		return "", err
	}

	if format == "" {
		return "", nil
	}

	start := time.Now()

	var result Transcription

	call := func() error {
		var err error
		result, err = t.Service.Transcribe(ctx, data, Request{Language: language, Format: format})
		return err
	}

	if t.Breaker != nil {
		err = t.Breaker.Execute(call)
	} else {
		err = call()
	}

	if t.Metrics != nil {
		t.Metrics.RecordSTT(ctx, time.Since(start), err)
	}

	if err != nil {
		if IsRejected(err) {
			slog.Warn("speech-to-text server rejected audio chunk", "err", err)
			return "", nil
		}

		return "", fmt.Errorf("transcribe: %w", err)
	}

	text := strings.TrimSpace(strings.ReplaceAll(result.Text, blankAudioMarker, ""))

	slog.Debug(fmt.Sprintf("transcribed %d bytes of %s audio in %s: %q", len(data), format, time.Since(start), text))

	return text, nil
}

// prepare wraps raw PCM into WAV and runs voice detection when possible.
// An empty format indicates that no voice was detected.
func (t *Transcriber) prepare(data []byte) ([]byte, Format, error) {
	minBytes := t.MinChunkBytes
	if minBytes <= 0 {
		minBytes = DefaultMinChunkBytes
	}

	if len(data) < minBytes {
		return nil, "", fmt.Errorf("%w: %d bytes", ErrChunkTooSmall, len(data))
	}

	format := DetectFormat(data)

	var buf *audio.IntBuffer

	switch format {
	case FormatPCM:
		sampleRate := t.SampleRate
		if sampleRate <= 0 {
			sampleRate = DefaultSampleRate
		}

		buf = PCMBuffer(data, sampleRate)

		wavData, err := EncodeWAV(buf)
		if err != nil {
			return nil, "", fmt.Errorf("wrap pcm into wav: %w", err)
		}

		data = wavData
		format = FormatWAV
	case FormatWAV:
		if t.VoiceDetector != nil {
			decoded, err := decodeWAV(data)
			if err != nil {
				slog.Warn("cannot decode wav chunk for voice detection", "err", err)
			}
			buf = decoded
		}
	}

	if t.VoiceDetector != nil && buf != nil {
		voice, err := t.VoiceDetector.DetectVoice(buf)
		if err != nil {
			slog.Warn("voice detection failed", "err", err)
		} else if !voice {
			return nil, "", nil
		}
	}

	return data, format, nil
}

// PCMBuffer interprets the data as 16 bit little endian mono PCM.
// A trailing odd byte is dropped.
func PCMBuffer(data []byte, sampleRate int) *audio.IntBuffer {
	samples := make([]int, len(data)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(data[2*i:])))
	}

	return &audio.IntBuffer{
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: 1},
		Data:           samples,
		SourceBitDepth: 16,
	}
}

// EncodeWAV encodes a mono 16 bit buffer as WAV file.
func EncodeWAV(buf *audio.IntBuffer) ([]byte, error) {
	wavFile := &writerseeker.WriterSeeker{}
	encoder := wav.NewEncoder(wavFile, buf.Format.SampleRate, 16, 1, 1)

	if err := encoder.Write(buf); err != nil {
		return nil, fmt.Errorf("encoder write buffer: %w", err)
	}

	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("encoder close: %w", err)
	}

	wavData, err := io.ReadAll(wavFile.Reader())
	if err != nil {
		return nil, fmt.Errorf("reading file into memory: %w", err)
	}

	return wavData, nil
}

func decodeWAV(data []byte) (*audio.IntBuffer, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("invalid wave file")
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wave file: %w", err)
	}

	return buf, nil
}
