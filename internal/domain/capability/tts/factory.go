package tts

import (
	"fmt"

	"voicepipe-server-go/internal/domain/capability"
	"voicepipe-server-go/internal/platform/config"
)

// New builds a TTS provider from configuration.
func New(cfg config.TTSConfig) (capability.TTSProvider, error) {
	switch cfg.Type {
	case "", "http":
		return NewHTTP(cfg.BaseURL, cfg.Voice, cfg.Format)
	case "edge":
		return NewEdge(cfg.Voice)
	case "stub":
		return NewStub(), nil
	default:
		return nil, fmt.Errorf("unsupported tts provider: %s", cfg.Type)
	}
}
