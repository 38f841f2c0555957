package observability

import (
	"context"
	"log/slog"
	"sync"
)

// Config captures observability toggles.
type Config struct {
	Enabled bool
}

// ShutdownFunc tears down any observability exporters.
type ShutdownFunc func(context.Context) error

var (
	mu       sync.RWMutex
	sink     *slog.Logger
	settings Config
)

func current() (*slog.Logger, Config) {
	mu.RLock()
	defer mu.RUnlock()
	return sink, settings
}

// Setup installs the instrumentation sink used by spans and metrics.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (ShutdownFunc, error) {
	mu.Lock()
	sink = logger
	settings = cfg
	mu.Unlock()

	if logger != nil {
		if cfg.Enabled {
			logger.InfoContext(ctx, "[OBSERVABILITY] instrumentation enabled")
		} else {
			logger.InfoContext(ctx, "[OBSERVABILITY] instrumentation disabled")
		}
	}
	return func(context.Context) error { return nil }, nil
}
