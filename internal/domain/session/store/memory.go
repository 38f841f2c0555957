package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"voicepipe-server-go/internal/domain/session/model"
)

type entry struct {
	result    model.Result
	expiresAt time.Time
}

type memoryStore struct {
	items       map[string]entry
	mutex       sync.RWMutex
	ttl         time.Duration
	cleanupFreq time.Duration
	stop        chan struct{}
	stopOnce    sync.Once
}

// NewMemory builds an in-memory session store. A zero TTL keeps results
// for the process lifetime.
func NewMemory(cfg Config) Store {
	cleanup := 5 * time.Minute
	if cfg.Memory != nil && cfg.Memory.GCInterval > 0 {
		cleanup = cfg.Memory.GCInterval
	}
	s := &memoryStore{
		items:       make(map[string]entry),
		ttl:         cfg.TTL,
		cleanupFreq: cleanup,
		stop:        make(chan struct{}),
	}
	if s.ttl > 0 {
		go s.gcLoop()
	}
	return s
}

func (s *memoryStore) gcLoop() {
	ticker := time.NewTicker(s.cleanupFreq)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cleanupExpired()
		case <-s.stop:
			return
		}
	}
}

func (s *memoryStore) cleanupExpired() {
	now := time.Now()
	s.mutex.Lock()
	for id, item := range s.items {
		if !item.expiresAt.IsZero() && now.After(item.expiresAt) {
			delete(s.items, id)
		}
	}
	s.mutex.Unlock()
}

func (s *memoryStore) Write(_ context.Context, result model.Result) error {
	if result.SessionID == "" {
		return fmt.Errorf("session id required")
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now()
	}
	e := entry{result: result}
	if s.ttl > 0 {
		e.expiresAt = time.Now().Add(s.ttl)
	}

	s.mutex.Lock()
	s.items[result.SessionID] = e
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) FindBySession(_ context.Context, sessionID string) (model.Result, error) {
	s.mutex.RLock()
	item, ok := s.items[sessionID]
	s.mutex.RUnlock()
	if !ok {
		return model.Result{}, ErrNotFound
	}
	if !item.expiresAt.IsZero() && time.Now().After(item.expiresAt) {
		return model.Result{}, ErrNotFound
	}
	return item.result, nil
}

func (s *memoryStore) Stats(_ context.Context) (map[string]any, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return map[string]any{
		"type":  "memory",
		"total": len(s.items),
	}, nil
}

func (s *memoryStore) Close(_ context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	return nil
}
