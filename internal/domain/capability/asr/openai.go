package asr

import (
	"bytes"
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"voicepipe-server-go/internal/domain/capability"
	platerr "voicepipe-server-go/internal/platform/errors"
	"voicepipe-server-go/internal/util"
)

// OpenAIProvider transcribes through the Whisper transcription API.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	lang   string
}

// NewOpenAI builds the provider; baseURL is optional for compatible
// self-hosted endpoints.
func NewOpenAI(apiKey, baseURL, model, lang string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		lang:   lang,
	}, nil
}

func (p *OpenAIProvider) Transcribe(ctx context.Context, audio util.Audio) (capability.Transcription, error) {
	wav := util.EncodeWAV(audio)

	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    p.model,
		FilePath: "audio.wav",
		Reader:   bytes.NewReader(wav),
		Language: p.lang,
	})
	if err != nil {
		return capability.Transcription{}, platerr.Wrap(platerr.KindInference, "asr", "whisper transcription failed", err)
	}

	return capability.Transcription{
		Text:            resp.Text,
		DurationSeconds: audio.Duration(),
	}, nil
}
