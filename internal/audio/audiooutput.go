package audio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"
)

// Output plays WAV files on an audio output device.
type Output struct {
	Device string

	once   sync.Once
	device *portaudio.DeviceInfo
	err    error
}

// Play blocks until the given WAV data was played or the context is done.
func (o *Output) Play(ctx context.Context, wavData []byte) error {
	o.once.Do(func() {
		o.device, o.err = outputDevice(o.Device)
	})
	if o.err != nil {
		return o.err
	}

	samples, sampleRate, err := decodeMono16(wavData)
	if err != nil {
		return err
	}

	return playSamples(ctx, resampleInt16(samples, sampleRate, int(o.device.DefaultSampleRate)), o.device)
}

// decodeMono16 decodes a 16 bit WAV file and downmixes it to mono.
func decodeMono16(wavData []byte) ([]int16, int, error) {
	decoder := wav.NewDecoder(bytes.NewReader(wavData))
	decoder.ReadInfo()
	if err := decoder.Err(); err != nil {
		return nil, 0, fmt.Errorf("read wave file headers: %w", err)
	}

	if !decoder.IsValidFile() {
		return nil, 0, fmt.Errorf("invalid wave file")
	}

	if decoder.SampleBitDepth() != 16 {
		return nil, 0, fmt.Errorf("wave data with unsupported bit depth of %d provided, expected 16", decoder.SampleBitDepth())
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode wave data: %w", err)
	}

	channels := int(decoder.NumChans)
	if channels < 1 {
		channels = 1
	}

	samples := make([]int16, len(buf.Data)/channels)
	for i := range samples {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += buf.Data[i*channels+c]
		}
		samples[i] = int16(sum / channels)
	}

	return samples, int(decoder.SampleRate), nil
}

func playSamples(ctx context.Context, samples []int16, device *portaudio.DeviceInfo) error {
	out := make([]int16, framesPerBuffer)

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: 1,
			Latency:  device.DefaultLowOutputLatency,
		},
		SampleRate:      device.DefaultSampleRate,
		FramesPerBuffer: len(out),
	}, &out)
	if err != nil {
		return fmt.Errorf("open audio output stream: %w", err)
	}
	defer stream.Close()

	err = stream.Start()
	if err != nil {
		return fmt.Errorf("start audio output stream: %w", err)
	}
	defer stream.Stop()

	for offset := 0; offset < len(samples); offset += len(out) {
		n := copy(out, samples[offset:])
		clear(out[n:])

		err = stream.Write()
		if err != nil {
			// Occasional underflows do not impact the playback noticeably.
			slog.Warn("play audio: write chunk", "err", err)
		}

		if ctx.Err() != nil {
			return nil
		}
	}

	return nil
}
