package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-audio/audio"
	"github.com/gordonklaus/portaudio"
)

const framesPerBuffer = 512 * 9

// Input records fixed length mono chunks from an audio input device.
type Input struct {
	Device     string
	SampleRate int
	// ChunkDuration returns the current chunk length. It is consulted for
	// every chunk so that setting changes apply without restarting.
	ChunkDuration func() time.Duration
	// MinVolume is the RMS level below which a chunk is dropped as silence.
	MinVolume int
}

// RecordAudio opens the audio input device and emits chunks into the returned channel
// until the context is done.
func (o *Input) RecordAudio(ctx context.Context) (<-chan audio.Buffer, error) {
	device, err := inputDevice(o.Device)
	if err != nil {
		return nil, err
	}

	in := make([]int16, framesPerBuffer)
	audioStream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: 1,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      device.DefaultSampleRate,
		FramesPerBuffer: len(in),
	}, &in)
	if err != nil {
		return nil, fmt.Errorf("opening audio input stream: %w", err)
	}

	err = audioStream.Start()
	if err != nil {
		audioStream.Close()
		return nil, fmt.Errorf("starting audio input stream: %w", err)
	}

	ch := make(chan audio.Buffer, 5)
	chunker := &chunker{
		deviceRate: int(device.DefaultSampleRate),
		sampleRate: o.SampleRate,
		minVolume:  o.MinVolume,
	}

	go func() {
		defer close(ch)
		defer func() {
			if err := audioStream.Stop(); err != nil {
				slog.Warn("failed to stop input audio stream", "err", err)
			}
			if err := audioStream.Close(); err != nil {
				slog.Warn("failed to close input audio stream", "err", err)
			}
		}()

		for ctx.Err() == nil {
			if err := audioStream.Read(); err != nil {
				if errors.Is(err, portaudio.InputOverflowed) {
					slog.Warn("audio input overflowed - dropped samples")
				} else {
					slog.Warn("failed to read audio stream", "err", err)
				}
				continue
			}

			buf := chunker.add(in, o.ChunkDuration())
			if buf == nil {
				continue
			}

			select {
			case ch <- buf:
			case <-ctx.Done():
				return
			default:
				slog.Warn("dropping audio chunk since the previous ones were not sent yet")
			}
		}
	}()

	return ch, nil
}

// chunker collects device samples until a chunk is complete.
type chunker struct {
	deviceRate int
	sampleRate int
	minVolume  int
	buffer     []int16
}

// add returns a complete chunk, resampled to the target rate, or nil.
// Chunks quieter than minVolume are discarded.
func (c *chunker) add(samples []int16, chunkDuration time.Duration) *audio.IntBuffer {
	c.buffer = append(c.buffer, samples...)

	if time.Duration(len(c.buffer))*time.Second/time.Duration(c.deviceRate) < chunkDuration {
		return nil
	}

	defer func() {
		c.buffer = c.buffer[:0]
	}()

	if volume := calculateRMS16(c.buffer); int(volume) < c.minVolume {
		slog.Debug(fmt.Sprintf("skipping silent chunk (volume: %d)", int(volume)))
		return nil
	}

	return &audio.IntBuffer{
		Format:         &audio.Format{SampleRate: c.sampleRate, NumChannels: 1},
		Data:           int16ToInt(resampleInt16(c.buffer, c.deviceRate, c.sampleRate)),
		SourceBitDepth: 16,
	}
}
