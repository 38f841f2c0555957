package tts

import (
	"context"
	"fmt"

	"github.com/wujunwei928/edge-tts-go/edge_tts"

	platerr "voicepipe-server-go/internal/platform/errors"
)

// EdgeProvider synthesizes through the Edge neural voices. There is no
// voice cloning, the reference audio is ignored; output is mp3.
type EdgeProvider struct {
	voice string
}

// NewEdge builds the provider with a default voice when none is set.
func NewEdge(voice string) (*EdgeProvider, error) {
	if voice == "" {
		voice = "en-US-AriaNeural"
	}
	return &EdgeProvider{voice: voice}, nil
}

func (p *EdgeProvider) Synthesize(ctx context.Context, text string, _ []byte) ([]byte, string, error) {
	if text == "" {
		return nil, "", platerr.New(platerr.KindInput, "tts", "text required")
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	communicate, err := edge_tts.NewCommunicate(text, edge_tts.SetVoice(p.voice))
	if err != nil {
		return nil, "", fmt.Errorf("create edge tts communicator: %w", err)
	}

	audio, err := communicate.Stream()
	if err != nil {
		return nil, "", platerr.Wrap(platerr.KindInference, "tts", "edge synthesis failed", err)
	}
	return audio, "mp3", nil
}
