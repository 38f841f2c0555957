package denoise

import (
	"fmt"

	"voicepipe-server-go/internal/domain/capability"
	"voicepipe-server-go/internal/platform/config"
)

// New builds a denoise provider from configuration. sampleRate is the
// deployment's ingest rate; zero selects the 16 kHz default.
func New(cfg config.DenoiseConfig, sampleRate int) (capability.DenoiseProvider, error) {
	switch cfg.Type {
	case "", "gate":
		return NewGate(cfg.Threshold, sampleRate), nil
	case "noop":
		return NewNoop(sampleRate), nil
	default:
		return nil, fmt.Errorf("unsupported denoise provider: %s", cfg.Type)
	}
}
