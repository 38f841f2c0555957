package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"voicepipe-server-go/internal/domain/capability"
	"voicepipe-server-go/internal/domain/capability/asr"
	"voicepipe-server-go/internal/domain/capability/denoise"
	"voicepipe-server-go/internal/domain/capability/tts"
	"voicepipe-server-go/internal/domain/notify"
	"voicepipe-server-go/internal/domain/session"
	"voicepipe-server-go/internal/domain/session/model"
	"voicepipe-server-go/internal/domain/session/store"
	"voicepipe-server-go/internal/util"
)

type testEnv struct {
	queue    *Queue
	registry *capability.Registry
	sessions *session.Service
	notifier *notify.Notifier
	worker   *Worker
	uploads  string
}

func newTestEnv(t *testing.T, factories capability.Factories) *testEnv {
	t.Helper()

	base := t.TempDir()
	archive, err := session.NewArchive(
		filepath.Join(base, "results"),
		filepath.Join(base, "transcripts"),
		filepath.Join(base, "tts"),
	)
	if err != nil {
		t.Fatalf("NewArchive error: %v", err)
	}

	registry := capability.NewRegistry()
	loader := capability.NewLoader(registry, factories, nil)
	if err := loader.Load(context.Background()); err != nil {
		t.Fatalf("capability load error: %v", err)
	}

	sessions := session.NewService(store.NewMemory(store.Config{}), archive)
	notifier := notify.New(nil)
	queue := NewQueue(16)

	worker := NewWorker(queue, registry, sessions, notifier, nil, StageTimeouts{
		Denoise: time.Second,
		ASR:     5 * time.Second,
		TTS:     5 * time.Second,
	}, nil)

	t.Cleanup(func() {
		queue.Close()
		notifier.Close()
		_ = sessions.Close(context.Background())
	})

	return &testEnv{
		queue:    queue,
		registry: registry,
		sessions: sessions,
		notifier: notifier,
		worker:   worker,
		uploads:  filepath.Join(base, "uploads"),
	}
}

func (e *testEnv) writeUpload(t *testing.T, name string) string {
	t.Helper()
	if err := os.MkdirAll(e.uploads, 0o755); err != nil {
		t.Fatalf("mkdir uploads: %v", err)
	}
	samples := make([]float64, 16000)
	for i := range samples {
		samples[i] = 0.3
	}
	path := filepath.Join(e.uploads, name)
	if err := os.WriteFile(path, util.EncodeWAV(util.Audio{Samples: samples, SampleRate: 16000}), 0o644); err != nil {
		t.Fatalf("write upload: %v", err)
	}
	return path
}

func allReadyFactories(text string) capability.Factories {
	return capability.Factories{
		Denoise: func(context.Context) (capability.DenoiseProvider, error) {
			return denoise.NewGate(0.02, 16000), nil
		},
		ASR: func(context.Context) (capability.ASRProvider, error) {
			return asr.NewStub(text), nil
		},
		TTS: func(context.Context) (capability.TTSProvider, error) {
			return tts.NewStub(), nil
		},
	}
}

func TestWorkerFullSuccess(t *testing.T) {
	env := newTestEnv(t, allReadyFactories("the quick brown fox"))

	pushed := make(chan model.Result, 1)
	if err := env.notifier.Subscribe("job-1", func(r model.Result) { pushed <- r }); err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}

	upload := env.writeUpload(t, "job-1.wav")
	env.worker.processSafe(context.Background(), Job{SessionID: "job-1", AudioPath: upload})

	result, err := env.sessions.Lookup(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if result.Status != model.StatusSuccess {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Transcription == nil || *result.Transcription != "the quick brown fox" {
		t.Fatalf("unexpected transcription: %+v", result)
	}
	if result.TTSAudioRef == "" {
		t.Fatalf("expected tts audio ref")
	}
	if result.TTSError != "" {
		t.Fatalf("unexpected tts error: %s", result.TTSError)
	}
	if result.ProcessingTime <= 0 {
		t.Fatalf("expected positive processing time")
	}

	// synthesized audio retrievable through the archive
	if _, err := env.sessions.Archive().TTSPath(result.TTSAudioRef); err != nil {
		t.Fatalf("TTSPath error: %v", err)
	}

	// transient upload removed exactly once
	if _, err := os.Stat(upload); !os.IsNotExist(err) {
		t.Fatalf("upload not cleaned up: %v", err)
	}

	// push delivered after the store write
	select {
	case r := <-pushed:
		if r.SessionID != "job-1" || r.Status != model.StatusSuccess {
			t.Fatalf("unexpected pushed result: %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatalf("no push received")
	}
}

func TestWorkerTTSFailureIsPartialSuccess(t *testing.T) {
	factories := allReadyFactories("still transcribed")
	factories.TTS = func(context.Context) (capability.TTSProvider, error) {
		return &tts.Stub{Err: errors.New("synthesis backend down")}, nil
	}
	env := newTestEnv(t, factories)

	upload := env.writeUpload(t, "job-2.wav")
	env.worker.processSafe(context.Background(), Job{SessionID: "job-2", AudioPath: upload})

	result, err := env.sessions.Lookup(context.Background(), "job-2")
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if result.Status != model.StatusSuccess {
		t.Fatalf("tts failure must not fail the job: %+v", result)
	}
	if result.Transcription == nil || *result.Transcription != "still transcribed" {
		t.Fatalf("transcription lost: %+v", result)
	}
	if result.TTSError == "" {
		t.Fatalf("expected secondary tts error")
	}
	if result.TTSAudioRef != "" {
		t.Fatalf("unexpected tts ref on failure: %s", result.TTSAudioRef)
	}
	if result.ErrorMessage != "" {
		t.Fatalf("tts error leaked into error_message: %s", result.ErrorMessage)
	}
}

func TestWorkerASRUnavailableFailsJob(t *testing.T) {
	factories := allReadyFactories("")
	factories.ASR = nil
	env := newTestEnv(t, factories)

	upload := env.writeUpload(t, "job-3.wav")
	env.worker.processSafe(context.Background(), Job{SessionID: "job-3", AudioPath: upload})

	result, err := env.sessions.Lookup(context.Background(), "job-3")
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if result.Status != model.StatusError {
		t.Fatalf("expected error status, got %+v", result)
	}
	if result.Transcription != nil {
		t.Fatalf("unexpected transcription on failure")
	}
	if result.ErrorMessage == "" {
		t.Fatalf("expected error message")
	}
	if result.TTSAudioRef != "" || result.TTSError != "" {
		t.Fatalf("tts must not run after asr failure: %+v", result)
	}

	// cleanup still happened
	if _, err := os.Stat(upload); !os.IsNotExist(err) {
		t.Fatalf("upload not cleaned up after failure")
	}
}

func TestWorkerSilentClipWithTTSUnavailable(t *testing.T) {
	factories := allReadyFactories("")
	factories.TTS = nil
	env := newTestEnv(t, factories)

	upload := env.writeUpload(t, "job-4.wav")
	env.worker.processSafe(context.Background(), Job{SessionID: "job-4", AudioPath: upload})

	result, err := env.sessions.Lookup(context.Background(), "job-4")
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if result.Status != model.StatusSuccess {
		t.Fatalf("empty transcription is still success: %+v", result)
	}
	if result.Transcription == nil || *result.Transcription != "" {
		t.Fatalf("expected empty transcription present: %+v", result)
	}
	if result.TTSAudioRef != "" {
		t.Fatalf("unexpected tts ref")
	}
	if result.TTSError == "" {
		t.Fatalf("expected recorded tts unavailability")
	}
}

func TestWorkerResultImmutableAcrossReads(t *testing.T) {
	env := newTestEnv(t, allReadyFactories("repeatable"))

	upload := env.writeUpload(t, "job-5.wav")
	env.worker.processSafe(context.Background(), Job{SessionID: "job-5", AudioPath: upload})

	first, err := env.sessions.Lookup(context.Background(), "job-5")
	if err != nil {
		t.Fatalf("first Lookup error: %v", err)
	}
	second, err := env.sessions.Lookup(context.Background(), "job-5")
	if err != nil {
		t.Fatalf("second Lookup error: %v", err)
	}
	if *first.Transcription != *second.Transcription ||
		first.ProcessingTime != second.ProcessingTime ||
		first.TTSAudioRef != second.TTSAudioRef ||
		!first.CreatedAt.Equal(second.CreatedAt) {
		t.Fatalf("result mutated between reads: %+v vs %+v", first, second)
	}
}

func TestWorkerUnreadableUploadFailsJob(t *testing.T) {
	env := newTestEnv(t, allReadyFactories("unused"))

	env.worker.processSafe(context.Background(), Job{
		SessionID: "job-6",
		AudioPath: filepath.Join(env.uploads, "does-not-exist.wav"),
	})

	result, err := env.sessions.Lookup(context.Background(), "job-6")
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if result.Status != model.StatusError || result.ErrorMessage == "" {
		t.Fatalf("expected error result, got %+v", result)
	}
}

func TestPoolDrainsQueue(t *testing.T) {
	env := newTestEnv(t, allReadyFactories("pooled"))

	const jobs = 6
	for i := 0; i < jobs; i++ {
		name := string(rune('a' + i))
		upload := env.writeUpload(t, "pool-"+name+".wav")
		if err := env.queue.Enqueue(Job{SessionID: "pool-" + name, AudioPath: upload}); err != nil {
			t.Fatalf("Enqueue error: %v", err)
		}
	}

	pool := NewPool(2, env.queue, env.registry, env.sessions, env.notifier, StageTimeouts{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for {
		finished := 0
		for i := 0; i < jobs; i++ {
			id := "pool-" + string(rune('a'+i))
			if _, err := env.sessions.Lookup(context.Background(), id); err == nil {
				finished++
			}
		}
		if finished == jobs {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("only %d/%d jobs finished", finished, jobs)
		case <-time.After(20 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("pool returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("pool did not stop after cancel")
	}
}
