package tts

import (
	"context"
)

// Stub returns canned audio bytes. Used in tests.
type Stub struct {
	Audio  []byte
	Format string
	Err    error
}

func NewStub() *Stub {
	return &Stub{
		Audio:  []byte("stub-audio"),
		Format: "wav",
	}
}

func (s *Stub) Synthesize(_ context.Context, text string, _ []byte) ([]byte, string, error) {
	if s.Err != nil {
		return nil, "", s.Err
	}
	return s.Audio, s.Format, nil
}
