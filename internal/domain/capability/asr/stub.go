package asr

import (
	"context"

	"voicepipe-server-go/internal/domain/capability"
	"voicepipe-server-go/internal/util"
)

// Stub returns a fixed transcription. Used in tests and as a wiring
// placeholder when no real backend is reachable.
type Stub struct {
	Text string
	Err  error
}

func NewStub(text string) *Stub {
	return &Stub{Text: text}
}

func (s *Stub) Transcribe(_ context.Context, audio util.Audio) (capability.Transcription, error) {
	if s.Err != nil {
		return capability.Transcription{}, s.Err
	}
	return capability.Transcription{
		Text:            s.Text,
		DurationSeconds: audio.Duration(),
	}, nil
}
