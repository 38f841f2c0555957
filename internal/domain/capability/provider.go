package capability

import (
	"context"

	"voicepipe-server-go/internal/util"
)

// Transcription is the ASR stage output.
type Transcription struct {
	Text            string
	DurationSeconds float64
}

// DenoiseProvider cleans a mono PCM clip. Input is resampled to the
// provider's fixed rate before the call; the output rate is consumed
// downstream as-is.
type DenoiseProvider interface {
	Process(ctx context.Context, audio util.Audio) (util.Audio, error)
	SampleRate() int
}

// ASRProvider transcribes one clip per call.
type ASRProvider interface {
	Transcribe(ctx context.Context, audio util.Audio) (Transcription, error)
}

// TTSProvider synthesizes speech for text. voiceRef carries the original
// submitted audio as a cloning reference; providers without cloning
// support ignore it. Returns the encoded audio and its format extension.
type TTSProvider interface {
	Synthesize(ctx context.Context, text string, voiceRef []byte) ([]byte, string, error)
}
