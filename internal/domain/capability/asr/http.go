package asr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"voicepipe-server-go/internal/domain/capability"
	platerr "voicepipe-server-go/internal/platform/errors"
	"voicepipe-server-go/internal/util"
)

// HTTPProvider posts WAV payloads to an external transcription endpoint
// and decodes a JSON body of the shape {"text": ..., "duration": ...}.
type HTTPProvider struct {
	endpoint string
	lang     string
	client   *http.Client
}

type httpResponse struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
	Error    string  `json:"error,omitempty"`
}

// NewHTTP builds the provider. The per-call deadline comes from the
// caller's context; the client timeout is a safety net.
func NewHTTP(endpoint, lang string) (*HTTPProvider, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("asr endpoint required")
	}
	return &HTTPProvider{
		endpoint: endpoint,
		lang:     lang,
		client:   &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

func (p *HTTPProvider) Transcribe(ctx context.Context, audio util.Audio) (capability.Transcription, error) {
	wav := util.EncodeWAV(audio)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("audio", "audio.wav")
	if err != nil {
		return capability.Transcription{}, err
	}
	if _, err := part.Write(wav); err != nil {
		return capability.Transcription{}, err
	}
	if p.lang != "" {
		_ = writer.WriteField("language", p.lang)
	}
	if err := writer.Close(); err != nil {
		return capability.Transcription{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, &body)
	if err != nil {
		return capability.Transcription{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return capability.Transcription{}, platerr.Wrap(platerr.KindInference, "asr", "transcription request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return capability.Transcription{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return capability.Transcription{}, platerr.New(platerr.KindInference, "asr",
			fmt.Sprintf("transcription endpoint returned %d: %s", resp.StatusCode, raw))
	}

	var decoded httpResponse
	if err := sonic.Unmarshal(raw, &decoded); err != nil {
		return capability.Transcription{}, platerr.Wrap(platerr.KindInference, "asr", "decode transcription response", err)
	}
	if decoded.Error != "" {
		return capability.Transcription{}, platerr.New(platerr.KindInference, "asr", decoded.Error)
	}

	duration := decoded.Duration
	if duration == 0 {
		duration = audio.Duration()
	}
	return capability.Transcription{Text: decoded.Text, DurationSeconds: duration}, nil
}
