package soundgen

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"
)

// Generator produces short mono 16 bit WAV sounds.
type Generator struct {
	SampleRate int
}

// Tone returns a sine tone of the given frequency as WAV file.
func (g *Generator) Tone(frequency float64, duration time.Duration) ([]byte, error) {
	data := make([]int, int(math.Ceil(float64(duration)*float64(g.SampleRate)/float64(time.Second))))
	for i := range data {
		phase := frequency * float64(i) / float64(g.SampleRate)

		data[i] = int(math.Sin(2*math.Pi*phase) * 32767)
	}

	return g.encode(data)
}

// Silence returns a silent WAV file of the given duration.
func (g *Generator) Silence(duration time.Duration) ([]byte, error) {
	return g.encode(make([]int, int(math.Ceil(float64(duration)*float64(g.SampleRate)/float64(time.Second)))))
}

func (g *Generator) encode(data []int) ([]byte, error) {
	buf := &audio.IntBuffer{
		Format:         &audio.Format{SampleRate: g.SampleRate, NumChannels: 1},
		Data:           data,
		SourceBitDepth: 16,
	}

	wavFile := &writerseeker.WriterSeeker{}
	encoder := wav.NewEncoder(wavFile, buf.Format.SampleRate, 16, 1, 1)

	err := encoder.Write(buf)
	if err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}

	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}

	b, err := io.ReadAll(wavFile.Reader())
	if err != nil {
		return nil, fmt.Errorf("read generated wav: %w", err)
	}

	return b, nil
}
