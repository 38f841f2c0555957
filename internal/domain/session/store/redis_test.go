package store

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"voicepipe-server-go/internal/domain/session/model"
)

func TestRedisStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	store, err := NewRedis(Config{
		Redis: &RedisConfig{
			Addr: mr.Addr(),
		},
	})
	if err != nil {
		t.Fatalf("NewRedis error: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close(ctx)
	})

	result := sampleResult("redis-session")
	if err := store.Write(ctx, result); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	got, err := store.FindBySession(ctx, result.SessionID)
	if err != nil {
		t.Fatalf("FindBySession error: %v", err)
	}
	if got.SessionID != result.SessionID || got.Status != model.StatusSuccess {
		t.Fatalf("unexpected result: %+v", got)
	}

	_, err = store.FindBySession(ctx, "absent")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStoreTTL(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	store, err := NewRedis(Config{
		TTL: time.Second,
		Redis: &RedisConfig{
			Addr:   mr.Addr(),
			Prefix: "vp:",
		},
	})
	if err != nil {
		t.Fatalf("NewRedis error: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close(ctx)
	})

	if err := store.Write(ctx, sampleResult("ttl-session")); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	mr.FastForward(2 * time.Second)

	_, err = store.FindBySession(ctx, "ttl-session")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired key, got %v", err)
	}
}
