package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	platerr "voicepipe-server-go/internal/platform/errors"
)

// HTTPProvider posts text plus the original submission as a voice
// reference to an external cloning endpoint and streams back the
// synthesized audio.
type HTTPProvider struct {
	endpoint string
	voice    string
	format   string
	client   *http.Client
}

// NewHTTP builds the provider.
func NewHTTP(endpoint, voice, format string) (*HTTPProvider, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("tts endpoint required")
	}
	if format == "" {
		format = "wav"
	}
	return &HTTPProvider{
		endpoint: endpoint,
		voice:    voice,
		format:   format,
		client:   &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

func (p *HTTPProvider) Synthesize(ctx context.Context, text string, voiceRef []byte) ([]byte, string, error) {
	if text == "" {
		return nil, "", platerr.New(platerr.KindInput, "tts", "text required")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("text", text); err != nil {
		return nil, "", err
	}
	if p.voice != "" {
		_ = writer.WriteField("voice", p.voice)
	}
	if len(voiceRef) > 0 {
		part, err := writer.CreateFormFile("reference", "reference.wav")
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(voiceRef); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, &body)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", platerr.Wrap(platerr.KindInference, "tts", "synthesis request failed", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", platerr.New(platerr.KindInference, "tts",
			fmt.Sprintf("synthesis endpoint returned %d: %s", resp.StatusCode, truncate(audio, 200)))
	}
	if len(audio) == 0 {
		return nil, "", platerr.New(platerr.KindInference, "tts", "synthesis returned empty audio")
	}
	return audio, p.format, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
