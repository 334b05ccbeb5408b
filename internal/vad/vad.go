// Package vad detects voice activity within audio chunks using Silero VAD.
package vad

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/streamer45/silero-vad-go/speech"
)

const SampleRate = 16000

// Detector wraps a Silero VAD model. It is safe for concurrent use.
type Detector struct {
	mutex     sync.Mutex
	sileroVAD *speech.Detector
}

func NewDetector(modelPath string) (*Detector, error) {
	sileroVAD, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:            modelPath,
		SampleRate:           SampleRate,
		Threshold:            0.5,
		MinSilenceDurationMs: 0,
		SpeechPadMs:          0,
	})
	if err != nil {
		return nil, fmt.Errorf("create silero vad: %w", err)
	}

	return &Detector{sileroVAD: sileroVAD}, nil
}

// DetectVoice reports whether the buffer contains speech.
// Buffers of another sample rate are reported as voice since the model
// cannot judge them.
func (d *Detector) DetectVoice(buf audio.Buffer) (bool, error) {
	if f := buf.PCMFormat(); f != nil && f.SampleRate != SampleRate {
		slog.Debug(fmt.Sprintf("skipping voice detection for %d Hz audio", f.SampleRate))
		return true, nil
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	start := time.Now()

	segments, err := d.sileroVAD.Detect(normalize(buf))
	if err != nil {
		return false, fmt.Errorf("detect voice: %w", err)
	}

	if err := d.sileroVAD.Reset(); err != nil {
		return false, fmt.Errorf("reset silero vad: %w", err)
	}

	detected := len(segments) > 0
	slog.Debug(fmt.Sprintf("voice activity detected: %v (took %s)", detected, time.Since(start)))

	return detected, nil
}

func (d *Detector) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.sileroVAD.Destroy(); err != nil {
		return fmt.Errorf("destroy silero vad: %w", err)
	}

	return nil
}

// normalize converts the samples into the [-1, 1] range the model expects.
func normalize(buf audio.Buffer) []float32 {
	ib := buf.AsIntBuffer()

	bitDepth := ib.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = 16
	}

	scale := float32(int(1) << (bitDepth - 1))
	samples := make([]float32, len(ib.Data))

	for i, v := range ib.Data {
		samples[i] = float32(v) / scale
	}

	return samples
}
