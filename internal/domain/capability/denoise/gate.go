package denoise

import (
	"context"
	"math"

	"voicepipe-server-go/internal/util"
)

const defaultSampleRate = 16000

// Gate is a local amplitude noise gate. Frames whose RMS energy stays
// under the threshold are attenuated toward silence; gain changes are
// smoothed across frames to avoid clicks.
type Gate struct {
	threshold  float64
	sampleRate int
	frameSize  int
}

// NewGate builds a gate provider. threshold is linear amplitude in [0,1];
// sampleRate is the input rate the gate expects, 16 kHz when zero.
func NewGate(threshold float64, sampleRate int) *Gate {
	if threshold <= 0 {
		threshold = 0.02
	}
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	return &Gate{
		threshold:  threshold,
		sampleRate: sampleRate,
		frameSize:  sampleRate / 100, // 10ms frames
	}
}

// SampleRate reports the input rate the gate expects.
func (g *Gate) SampleRate() int {
	return g.sampleRate
}

// Process attenuates low-energy frames and returns the cleaned clip at
// the same rate.
func (g *Gate) Process(ctx context.Context, audio util.Audio) (util.Audio, error) {
	if err := ctx.Err(); err != nil {
		return util.Audio{}, err
	}

	out := make([]float64, len(audio.Samples))
	gain := 1.0
	for start := 0; start < len(audio.Samples); start += g.frameSize {
		end := start + g.frameSize
		if end > len(audio.Samples) {
			end = len(audio.Samples)
		}

		var sum float64
		for _, s := range audio.Samples[start:end] {
			sum += s * s
		}
		rms := math.Sqrt(sum / float64(end-start))

		target := 1.0
		if rms < g.threshold {
			target = 0.1
		}
		for i := start; i < end; i++ {
			gain += (target - gain) * 0.2
			out[i] = audio.Samples[i] * gain
		}
	}

	return util.Audio{Samples: out, SampleRate: audio.SampleRate}, nil
}
