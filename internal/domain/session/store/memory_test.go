package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"voicepipe-server-go/internal/domain/session/model"
)

func sampleResult(sessionID string) model.Result {
	text := "hello there"
	dur := 1.5
	return model.Result{
		SessionID:             sessionID,
		Status:                model.StatusSuccess,
		Transcription:         &text,
		TranscriptionDuration: &dur,
		ProcessingTime:        2.25,
		TTSAudioRef:           sessionID + ".wav",
	}
}

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemory(Config{})
	t.Cleanup(func() {
		_ = store.Close(ctx)
	})

	result := sampleResult("mem-session")
	if err := store.Write(ctx, result); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	got, err := store.FindBySession(ctx, result.SessionID)
	if err != nil {
		t.Fatalf("FindBySession error: %v", err)
	}
	if got.SessionID != result.SessionID || *got.Transcription != *result.Transcription {
		t.Fatalf("unexpected result: %+v", got)
	}

	// repeated reads return the same record
	again, err := store.FindBySession(ctx, result.SessionID)
	if err != nil {
		t.Fatalf("second FindBySession error: %v", err)
	}
	if again.TTSAudioRef != got.TTSAudioRef || again.ProcessingTime != got.ProcessingTime {
		t.Fatalf("result changed between reads: %+v vs %+v", again, got)
	}
}

func TestMemoryStoreNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewMemory(Config{})
	t.Cleanup(func() {
		_ = store.Close(ctx)
	})

	_, err := store.FindBySession(ctx, "never-submitted")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemory(Config{
		TTL:    20 * time.Millisecond,
		Memory: &MemoryConfig{GCInterval: 10 * time.Millisecond},
	})
	t.Cleanup(func() {
		_ = store.Close(ctx)
	})

	if err := store.Write(ctx, sampleResult("short-lived")); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	time.Sleep(60 * time.Millisecond)

	_, err := store.FindBySession(ctx, "short-lived")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired result to be gone, got %v", err)
	}
}

func TestMemoryStoreRejectsEmptySessionID(t *testing.T) {
	ctx := context.Background()
	store := NewMemory(Config{})
	t.Cleanup(func() {
		_ = store.Close(ctx)
	})

	if err := store.Write(ctx, model.Result{Status: model.StatusError}); err == nil {
		t.Fatalf("expected error for empty session id")
	}
}
