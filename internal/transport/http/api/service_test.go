package api

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"

	"voicepipe-server-go/internal/domain/capability"
	"voicepipe-server-go/internal/domain/capability/asr"
	"voicepipe-server-go/internal/domain/ingest"
	"voicepipe-server-go/internal/domain/pipeline"
	"voicepipe-server-go/internal/domain/session"
	"voicepipe-server-go/internal/domain/session/model"
	"voicepipe-server-go/internal/domain/session/store"
	"voicepipe-server-go/internal/platform/config"
)

type testAPI struct {
	engine   *gin.Engine
	queue    *pipeline.Queue
	sessions *session.Service
	registry *capability.Registry
}

func newTestAPI(t *testing.T, queueCapacity int) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	base := t.TempDir()
	archive, err := session.NewArchive(
		filepath.Join(base, "results"),
		filepath.Join(base, "transcripts"),
		filepath.Join(base, "tts"),
	)
	if err != nil {
		t.Fatalf("NewArchive error: %v", err)
	}
	sessions := session.NewService(store.NewMemory(store.Config{}), archive)

	registry := capability.NewRegistry()
	loader := capability.NewLoader(registry, capability.Factories{
		ASR: func(context.Context) (capability.ASRProvider, error) {
			return asr.NewStub("ready"), nil
		},
	}, nil)
	if err := loader.Load(context.Background()); err != nil {
		t.Fatalf("capability load error: %v", err)
	}

	queue := pipeline.NewQueue(queueCapacity)
	ing, err := ingest.NewService(ingest.Config{UploadDir: filepath.Join(base, "uploads")}, queue, nil)
	if err != nil {
		t.Fatalf("ingest.NewService error: %v", err)
	}

	svc, err := NewService(config.DefaultConfig(), nil, ing, sessions, registry, queue)
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}

	engine := gin.New()
	if err := svc.Register(context.Background(), engine.Group("/api"), engine); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	t.Cleanup(func() {
		ing.Close()
		queue.Close()
		_ = sessions.Close(context.Background())
	})

	return &testAPI{engine: engine, queue: queue, sessions: sessions, registry: registry}
}

func multipartBody(t *testing.T, fileField, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	if fileField != "" {
		part, err := w.CreateFormFile(fileField, filename)
		if err != nil {
			t.Fatalf("CreateFormFile error: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write part error: %v", err)
		}
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField error: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer error: %v", err)
	}
	return buf, w.FormDataContentType()
}

func doRequest(t *testing.T, engine *gin.Engine, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := sonic.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestUploadMissingFile(t *testing.T) {
	env := newTestAPI(t, 4)

	body, ct := multipartBody(t, "", "", nil, map[string]string{"other": "field"})
	rec := doRequest(t, env.engine, http.MethodPost, "/api/upload", body, ct)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "Audio file is missing" {
		t.Fatalf("unexpected error body: %v", got)
	}
}

func TestUploadAcceptedThenResolved(t *testing.T) {
	env := newTestAPI(t, 4)

	body, ct := multipartBody(t, "audio", "clip.wav", []byte("RIFFdata"), nil)
	rec := doRequest(t, env.engine, http.MethodPost, "/api/upload", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodeBody(t, rec)
	if resp["status"] != "processing" {
		t.Fatalf("unexpected status: %v", resp)
	}
	sessionID, _ := resp["session_id"].(string)
	if sessionID == "" {
		t.Fatalf("missing session id: %v", resp)
	}
	if env.queue.Depth() != 1 {
		t.Fatalf("expected one queued job, depth=%d", env.queue.Depth())
	}

	// still processing before the worker finishes
	rec = doRequest(t, env.engine, http.MethodGet, "/api/transcription/"+sessionID, nil, "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 while pending, got %d", rec.Code)
	}

	text := "uploaded and processed"
	if err := env.sessions.SaveResult(context.Background(), model.Result{
		SessionID:      sessionID,
		Status:         model.StatusSuccess,
		Transcription:  &text,
		ProcessingTime: 0.5,
		CreatedAt:      time.Now().UTC(),
	}); err != nil {
		t.Fatalf("SaveResult error: %v", err)
	}

	rec = doRequest(t, env.engine, http.MethodGet, "/api/transcription/"+sessionID, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after finalize, got %d", rec.Code)
	}
	final := decodeBody(t, rec)
	if final["status"] != "success" || final["transcription"] != text {
		t.Fatalf("unexpected result body: %v", final)
	}
}

func TestUploadAcceptsFileFormField(t *testing.T) {
	env := newTestAPI(t, 4)

	body, ct := multipartBody(t, "file", "clip.wav", []byte("RIFFdata"), nil)
	rec := doRequest(t, env.engine, http.MethodPost, "/api/upload", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody(t, rec)
	if resp["status"] != "processing" {
		t.Fatalf("unexpected status: %v", resp)
	}
	if id, _ := resp["session_id"].(string); id == "" {
		t.Fatalf("missing session id: %v", resp)
	}
	if env.queue.Depth() != 1 {
		t.Fatalf("expected one queued job, depth=%d", env.queue.Depth())
	}
}

func TestUploadQueueFullReturns503(t *testing.T) {
	env := newTestAPI(t, 1)

	body, ct := multipartBody(t, "audio", "a.wav", []byte("first"), nil)
	if rec := doRequest(t, env.engine, http.MethodPost, "/api/upload", body, ct); rec.Code != http.StatusOK {
		t.Fatalf("first upload failed: %d", rec.Code)
	}

	body, ct = multipartBody(t, "audio", "b.wav", []byte("second"), nil)
	rec := doRequest(t, env.engine, http.MethodPost, "/api/upload", body, ct)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when queue is full, got %d", rec.Code)
	}
}

func TestStreamChunksThenFinal(t *testing.T) {
	env := newTestAPI(t, 4)

	body, ct := multipartBody(t, "audio", "chunk0", []byte("aaa"), map[string]string{
		"session_id":  "live-1",
		"chunk_index": "0",
	})
	rec := doRequest(t, env.engine, http.MethodPost, "/api/stream", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("chunk 0 rejected: %d %s", rec.Code, rec.Body.String())
	}
	if resp := decodeBody(t, rec); resp["status"] != "received" {
		t.Fatalf("unexpected ack: %v", resp)
	}
	if env.queue.Depth() != 0 {
		t.Fatalf("non-final chunk must not enqueue")
	}

	body, ct = multipartBody(t, "audio", "chunk1", []byte("bbb"), map[string]string{
		"session_id":  "live-1",
		"chunk_index": "1",
		"is_final":    "true",
	})
	rec = doRequest(t, env.engine, http.MethodPost, "/api/stream", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("final chunk rejected: %d %s", rec.Code, rec.Body.String())
	}
	if resp := decodeBody(t, rec); resp["status"] != "processing" || resp["session_id"] != "live-1" {
		t.Fatalf("unexpected final ack: %v", resp)
	}
	if env.queue.Depth() != 1 {
		t.Fatalf("final chunk must enqueue exactly one job, depth=%d", env.queue.Depth())
	}
}

func TestStreamRejectsBadSessionID(t *testing.T) {
	env := newTestAPI(t, 4)

	body, ct := multipartBody(t, "audio", "chunk", []byte("xxx"), map[string]string{
		"session_id": "../escape",
	})
	rec := doRequest(t, env.engine, http.MethodPost, "/api/stream", body, ct)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for traversal id, got %d", rec.Code)
	}
}

func TestTranscriptionUnknownIsProcessing(t *testing.T) {
	env := newTestAPI(t, 4)

	rec := doRequest(t, env.engine, http.MethodGet, "/api/transcription/never-seen", nil, "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 for unknown session, got %d", rec.Code)
	}
	if resp := decodeBody(t, rec); resp["status"] != "processing" {
		t.Fatalf("unexpected body: %v", resp)
	}
}

func TestTTSDownload(t *testing.T) {
	env := newTestAPI(t, 4)

	ref, err := env.sessions.Archive().SaveTTS("dl-1", []byte("fake-wav-bytes"), "wav")
	if err != nil {
		t.Fatalf("SaveTTS error: %v", err)
	}

	rec := doRequest(t, env.engine, http.MethodGet, "/api/tts/"+ref, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if rec.Body.String() != "fake-wav-bytes" {
		t.Fatalf("unexpected audio payload")
	}

	rec = doRequest(t, env.engine, http.MethodGet, "/api/tts/missing.wav", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing ref, got %d", rec.Code)
	}
}

func TestShareURLFormats(t *testing.T) {
	env := newTestAPI(t, 4)

	payload := bytes.NewBufferString(`{"platform":"telegram","content":"hello there","transcription_id":"t-1"}`)
	rec := doRequest(t, env.engine, http.MethodPost, "/api/share", payload, "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody(t, rec)
	shareURL, _ := resp["share_url"].(string)
	if !strings.HasPrefix(shareURL, "https://t.me/share/url") || !strings.Contains(shareURL, "hello") {
		t.Fatalf("unexpected share url: %q", shareURL)
	}

	payload = bytes.NewBufferString(`{"platform":"myspace","content":"hello"}`)
	rec = doRequest(t, env.engine, http.MethodPost, "/api/share", payload, "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported platform, got %d", rec.Code)
	}
}

func TestHealthReportsModelsAndQueue(t *testing.T) {
	env := newTestAPI(t, 4)

	rec := doRequest(t, env.engine, http.MethodGet, "/health", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeBody(t, rec)
	if resp["status"] != "ok" {
		t.Fatalf("unexpected health status: %v", resp)
	}
	models, ok := resp["models"].(map[string]any)
	if !ok {
		t.Fatalf("missing models map: %v", resp)
	}
	if models["asr"] != "ready" {
		t.Fatalf("expected asr ready, got %v", models["asr"])
	}
	if models["tts"] != "unavailable" {
		t.Fatalf("expected tts unavailable, got %v", models["tts"])
	}
	if _, ok := resp["queue_size"]; !ok {
		t.Fatalf("missing queue_size: %v", resp)
	}
}
