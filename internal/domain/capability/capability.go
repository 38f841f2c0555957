package capability

import (
	"sync"

	platerr "voicepipe-server-go/internal/platform/errors"
)

// Capability identifies one inference stage of the pipeline.
type Capability string

const (
	Denoise Capability = "denoise"
	ASR     Capability = "asr"
	TTS     Capability = "tts"
)

// All lists the capabilities in pipeline order.
var All = []Capability{Denoise, ASR, TTS}

// Status of one capability's background initialization.
type Status string

const (
	StatusUnavailable Status = "unavailable"
	StatusLoading     Status = "loading"
	StatusReady       Status = "ready"
)

// ErrUnavailable is returned when a stage needs a capability that is not
// ready. Callers fail fast instead of waiting.
func ErrUnavailable(cap Capability) error {
	return platerr.New(platerr.KindCapability, string(cap), "capability not ready")
}

// Registry tracks readiness and holds the provider handle per capability.
// Transitions happen only through the loader and never regress from ready.
type Registry struct {
	mu        sync.RWMutex
	status    map[Capability]Status
	denoise   DenoiseProvider
	asr       ASRProvider
	tts       TTSProvider
}

// NewRegistry starts with every capability unavailable.
func NewRegistry() *Registry {
	status := make(map[Capability]Status, len(All))
	for _, c := range All {
		status[c] = StatusUnavailable
	}
	return &Registry{status: status}
}

// Status returns the current readiness of a capability.
func (r *Registry) Status(cap Capability) Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.status[cap]; ok {
		return s
	}
	return StatusUnavailable
}

// Statuses returns a snapshot of every capability's readiness.
func (r *Registry) Statuses() map[Capability]Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[Capability]Status, len(r.status))
	for c, s := range r.status {
		out[c] = s
	}
	return out
}

// DenoiseProvider returns the handle and whether it is ready for use.
func (r *Registry) DenoiseProvider() (DenoiseProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.denoise, r.status[Denoise] == StatusReady && r.denoise != nil
}

// ASRProvider returns the handle and whether it is ready for use.
func (r *Registry) ASRProvider() (ASRProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.asr, r.status[ASR] == StatusReady && r.asr != nil
}

// TTSProvider returns the handle and whether it is ready for use.
func (r *Registry) TTSProvider() (TTSProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tts, r.status[TTS] == StatusReady && r.tts != nil
}

func (r *Registry) markLoading(cap Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status[cap] == StatusUnavailable {
		r.status[cap] = StatusLoading
	}
}

func (r *Registry) markUnavailable(cap Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status[cap] != StatusReady {
		r.status[cap] = StatusUnavailable
	}
}

func (r *Registry) setDenoise(p DenoiseProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.denoise = p
	r.status[Denoise] = StatusReady
}

func (r *Registry) setASR(p ASRProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asr = p
	r.status[ASR] = StatusReady
}

func (r *Registry) setTTS(p TTSProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts = p
	r.status[TTS] = StatusReady
}
