// Package stt transcribes audio chunks using an OpenAI compatible
// speech-to-text server.
package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
)

// ErrChunkTooSmall is returned for audio chunks that cannot contain speech.
var ErrChunkTooSmall = errors.New("audio chunk too small")

type Transcription struct {
	Text string `json:"text"`
}

// Request carries the per call transcription parameters.
type Request struct {
	Language string
	Format   Format
}

type Service interface {
	Transcribe(ctx context.Context, audio []byte, req Request) (Transcription, error)
}

// Format is the container format of an audio chunk.
type Format string

const (
	FormatWAV  Format = "wav"
	FormatWebM Format = "webm"
	FormatOgg  Format = "ogg"
	FormatPCM  Format = "pcm"
)

// DetectFormat detects the container format by its magic bytes.
// Data without a known header is assumed to be raw 16 bit PCM.
func DetectFormat(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, []byte("RIFF")):
		return FormatWAV
	case bytes.HasPrefix(data, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return FormatWebM
	case bytes.HasPrefix(data, []byte("OggS")):
		return FormatOgg
	default:
		return FormatPCM
	}
}

// Filename returns the upload file name the STT server uses to pick a decoder.
func (f Format) Filename() string {
	switch f {
	case FormatWebM:
		return "audio.webm"
	case FormatOgg:
		return "audio.ogg"
	default:
		return "audio.wav"
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatWebM:
		return "audio/webm"
	case FormatOgg:
		return "audio/ogg"
	default:
		return "audio/wav"
	}
}

// StatusError is returned when the STT server responds with a non-200 status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server responded with status code %d: %s", e.StatusCode, e.Body)
}

// IsRejected reports whether the server rejected the audio itself (4xx)
// rather than being unavailable.
func IsRejected(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return isClientErrorStatus(statusErr.StatusCode)
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return isClientErrorStatus(apiErr.StatusCode)
	}

	return false
}

func isClientErrorStatus(code int) bool {
	return code >= http.StatusBadRequest && code < http.StatusInternalServerError && code != http.StatusTooManyRequests
}
