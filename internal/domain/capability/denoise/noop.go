package denoise

import (
	"context"

	"voicepipe-server-go/internal/util"
)

// Noop passes audio through unchanged. Useful when the deployment relies
// on clean input or an upstream denoiser.
type Noop struct {
	sampleRate int
}

func NewNoop(sampleRate int) *Noop {
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	return &Noop{sampleRate: sampleRate}
}

func (n *Noop) SampleRate() int {
	return n.sampleRate
}

func (n *Noop) Process(_ context.Context, audio util.Audio) (util.Audio, error) {
	return audio, nil
}
