package capability

import (
	"context"

	"golang.org/x/sync/errgroup"

	"voicepipe-server-go/internal/utils"
)

// Factories builds one provider per capability. A nil factory leaves the
// capability unavailable.
type Factories struct {
	Denoise func(ctx context.Context) (DenoiseProvider, error)
	ASR     func(ctx context.Context) (ASRProvider, error)
	TTS     func(ctx context.Context) (TTSProvider, error)
}

// Loader performs the one-shot background initialization of all
// capabilities at process start.
type Loader struct {
	registry  *Registry
	factories Factories
	logger    *utils.Logger
}

// NewLoader wires the loader to its registry.
func NewLoader(registry *Registry, factories Factories, logger *utils.Logger) *Loader {
	return &Loader{
		registry:  registry,
		factories: factories,
		logger:    logger,
	}
}

// Load initializes every capability concurrently. A failed capability is
// marked unavailable and does not fail the others; Load itself only
// returns the context error, capability health is read from the registry.
func (l *Loader) Load(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		l.loadDenoise(ctx)
		return nil
	})
	g.Go(func() error {
		l.loadASR(ctx)
		return nil
	})
	g.Go(func() error {
		l.loadTTS(ctx)
		return nil
	})

	return g.Wait()
}

func (l *Loader) loadDenoise(ctx context.Context) {
	if l.factories.Denoise == nil {
		l.logger.WarnTag("DENOISE", "no provider configured")
		return
	}
	l.registry.markLoading(Denoise)
	p, err := l.factories.Denoise(ctx)
	if err != nil {
		l.registry.markUnavailable(Denoise)
		l.logger.ErrorTag("DENOISE", "provider load failed: %v", err)
		return
	}
	l.registry.setDenoise(p)
	l.logger.InfoTag("DENOISE", "provider ready")
}

func (l *Loader) loadASR(ctx context.Context) {
	if l.factories.ASR == nil {
		l.logger.WarnTag("ASR", "no provider configured")
		return
	}
	l.registry.markLoading(ASR)
	p, err := l.factories.ASR(ctx)
	if err != nil {
		l.registry.markUnavailable(ASR)
		l.logger.ErrorTag("ASR", "provider load failed: %v", err)
		return
	}
	l.registry.setASR(p)
	l.logger.InfoTag("ASR", "provider ready")
}

func (l *Loader) loadTTS(ctx context.Context) {
	if l.factories.TTS == nil {
		l.logger.WarnTag("TTS", "no provider configured")
		return
	}
	l.registry.markLoading(TTS)
	p, err := l.factories.TTS(ctx)
	if err != nil {
		l.registry.markUnavailable(TTS)
		l.logger.ErrorTag("TTS", "provider load failed: %v", err)
		return
	}
	l.registry.setTTS(p)
	l.logger.InfoTag("TTS", "provider ready")
}
