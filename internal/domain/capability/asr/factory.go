package asr

import (
	"fmt"

	"voicepipe-server-go/internal/domain/capability"
	"voicepipe-server-go/internal/platform/config"
)

// New builds an ASR provider from configuration.
func New(cfg config.ASRConfig) (capability.ASRProvider, error) {
	switch cfg.Type {
	case "", "http":
		return NewHTTP(cfg.BaseURL, cfg.Lang)
	case "openai":
		return NewOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Lang)
	case "stub":
		return NewStub(""), nil
	default:
		return nil, fmt.Errorf("unsupported asr provider: %s", cfg.Type)
	}
}
