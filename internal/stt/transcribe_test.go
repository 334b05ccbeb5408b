package stt

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/stretchr/testify/require"

	"github.com/mgoltzsche/sobub/internal/resilience"
	"github.com/mgoltzsche/sobub/internal/soundgen"
)

type fakeService struct {
	text     string
	err      error
	requests []Request
	audio    [][]byte
}

func (s *fakeService) Transcribe(_ context.Context, audio []byte, req Request) (Transcription, error) {
	s.requests = append(s.requests, req)
	s.audio = append(s.audio, audio)
	return Transcription{Text: s.text}, s.err
}

type fakeVoiceDetector struct {
	voice   bool
	samples int
}

func (d *fakeVoiceDetector) DetectVoice(buf audio.Buffer) (bool, error) {
	d.samples = buf.NumFrames()
	return d.voice, nil
}

func testWAV(t *testing.T) []byte {
	t.Helper()
	gen := &soundgen.Generator{SampleRate: 16000}
	b, err := gen.Tone(440, time.Second)
	require.NoError(t, err)
	return b
}

func TestDetectFormat(t *testing.T) {
	for _, tc := range []struct {
		name     string
		data     []byte
		expected Format
	}{
		{"wav", []byte("RIFF\x00\x00\x00\x00WAVE"), FormatWAV},
		{"webm", []byte{0x1A, 0x45, 0xDF, 0xA3, 0x01}, FormatWebM},
		{"ogg", []byte("OggS\x00"), FormatOgg},
		{"pcm", []byte{0x01, 0x02, 0x03}, FormatPCM},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, DetectFormat(tc.data))
		})
	}
}

func TestTranscriber(t *testing.T) {
	ctx := context.Background()
	webm := append([]byte{0x1A, 0x45, 0xDF, 0xA3}, make([]byte, 2000)...)
	pcm := make([]byte, 3201)

	for _, tc := range []struct {
		name           string
		data           []byte
		serviceText    string
		serviceErr     error
		expectText     string
		expectErr      bool
		expectCalls    int
		expectFormat   Format
		expectWAVInput bool
	}{
		{
			name:       "chunk too small",
			data:       make([]byte, 1023),
			expectText: "",
		},
		{
			name:         "webm passed through",
			data:         webm,
			serviceText:  " that goal was amazing ",
			expectText:   "that goal was amazing",
			expectCalls:  1,
			expectFormat: FormatWebM,
		},
		{
			name:           "pcm wrapped into wav",
			data:           pcm,
			serviceText:    "hello",
			expectText:     "hello",
			expectCalls:    1,
			expectFormat:   FormatWAV,
			expectWAVInput: true,
		},
		{
			name:         "blank audio marker",
			data:         webm,
			serviceText:  "[BLANK_AUDIO]",
			expectText:   "",
			expectCalls:  1,
			expectFormat: FormatWebM,
		},
		{
			name:         "rejected audio",
			data:         webm,
			serviceErr:   &StatusError{StatusCode: 400, Body: "invalid audio"},
			expectText:   "",
			expectCalls:  1,
			expectFormat: FormatWebM,
		},
		{
			name:         "server error",
			data:         webm,
			serviceErr:   &StatusError{StatusCode: 503, Body: "unavailable"},
			expectErr:    true,
			expectCalls:  1,
			expectFormat: FormatWebM,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeService{text: tc.serviceText, err: tc.serviceErr}
			testee := &Transcriber{Service: svc}

			text, err := testee.Transcribe(ctx, tc.data, "pt")
			if tc.expectErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tc.expectText, text)
			require.Len(t, svc.requests, tc.expectCalls)

			if tc.expectCalls > 0 {
				require.Equal(t, Request{Language: "pt", Format: tc.expectFormat}, svc.requests[0])
				require.Equal(t, tc.expectWAVInput, bytes.HasPrefix(svc.audio[0], []byte("RIFF")))
			}
		})
	}
}

func TestTranscriberVoiceDetection(t *testing.T) {
	ctx := context.Background()
	wavData := testWAV(t)

	t.Run("no voice", func(t *testing.T) {
		svc := &fakeService{text: "ghost"}
		vad := &fakeVoiceDetector{voice: false}
		testee := &Transcriber{Service: svc, VoiceDetector: vad}

		text, err := testee.Transcribe(ctx, wavData, "en")
		require.NoError(t, err)
		require.Equal(t, "", text)
		require.Empty(t, svc.requests)
		require.Equal(t, 16000, vad.samples)
	})

	t.Run("voice", func(t *testing.T) {
		svc := &fakeService{text: "goal"}
		testee := &Transcriber{Service: svc, VoiceDetector: &fakeVoiceDetector{voice: true}}

		text, err := testee.Transcribe(ctx, wavData, "en")
		require.NoError(t, err)
		require.Equal(t, "goal", text)
		require.Equal(t, wavData, svc.audio[0])
	})

	t.Run("not consulted for webm", func(t *testing.T) {
		svc := &fakeService{text: "goal"}
		vad := &fakeVoiceDetector{voice: false}
		testee := &Transcriber{Service: svc, VoiceDetector: vad}

		text, err := testee.Transcribe(ctx, append([]byte{0x1A, 0x45, 0xDF, 0xA3}, make([]byte, 2000)...), "en")
		require.NoError(t, err)
		require.Equal(t, "goal", text)
		require.Equal(t, 0, vad.samples)
	})
}

func TestTranscriberCircuitBreaker(t *testing.T) {
	ctx := context.Background()
	svc := &fakeService{err: errors.New("connection refused")}
	breaker := resilience.NewCircuitBreaker(resilience.Config{Name: "stt", MaxFailures: 2, ResetTimeout: time.Hour})
	testee := &Transcriber{Service: svc, Breaker: breaker}
	data := make([]byte, 2048)

	for range 2 {
		_, err := testee.Transcribe(ctx, data, "en")
		require.Error(t, err)
	}

	_, err := testee.Transcribe(ctx, data, "en")
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	require.Len(t, svc.requests, 2)
}

func TestNewCircuitBreakerIgnoresRejectedAudio(t *testing.T) {
	ctx := context.Background()
	svc := &fakeService{err: &StatusError{StatusCode: 422}}
	testee := &Transcriber{Service: svc, Breaker: NewCircuitBreaker()}

	for range 10 {
		text, err := testee.Transcribe(ctx, make([]byte, 2048), "en")
		require.NoError(t, err)
		require.Equal(t, "", text)
	}

	require.Equal(t, resilience.StateClosed, testee.Breaker.State())
}

func TestPCMBuffer(t *testing.T) {
	buf := PCMBuffer([]byte{0x01, 0x00, 0xFF, 0xFF, 0x00, 0x80, 0x07}, 16000)
	require.Equal(t, []int{1, -1, -32768}, buf.Data)
	require.Equal(t, 16000, buf.Format.SampleRate)

	wavData, err := EncodeWAV(buf)
	require.NoError(t, err)
	decoded, err := decodeWAV(wavData)
	require.NoError(t, err)
	require.Equal(t, buf.Data, decoded.Data)
}
