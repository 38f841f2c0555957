package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"voicepipe-server-go/internal/domain/pipeline"
	platerr "voicepipe-server-go/internal/platform/errors"
	"voicepipe-server-go/internal/utils"
)

// Config tunes the ingestion surface.
type Config struct {
	UploadDir  string
	ChunkTTL   time.Duration
	GCInterval time.Duration
}

type chunkState struct {
	path      string
	lastIndex int
	lastSeen  time.Time
}

// Service accepts complete uploads and chunk sequences and converges both
// on the same Job shape before the queue. Complete uploads get a
// server-declared session id; chunked sessions use the client-declared id
// so the client can poll before the final chunk arrives.
type Service struct {
	cfg    Config
	queue  *pipeline.Queue
	logger *utils.Logger

	mu     sync.Mutex
	chunks map[string]*chunkState

	stop     chan struct{}
	stopOnce sync.Once
}

// NewService creates the upload directory and starts the stale-session
// collector.
func NewService(cfg Config, queue *pipeline.Queue, logger *utils.Logger) (*Service, error) {
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, platerr.Wrap(platerr.KindStorage, "ingest", "create upload directory", err)
	}
	if cfg.ChunkTTL <= 0 {
		cfg.ChunkTTL = 10 * time.Minute
	}
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = time.Minute
	}

	s := &Service{
		cfg:    cfg,
		queue:  queue,
		logger: logger,
		chunks: make(map[string]*chunkState),
		stop:   make(chan struct{}),
	}
	go s.gcLoop()
	return s, nil
}

// SubmitComplete stores one whole submission and enqueues its job.
// Returns the server-declared session id.
func (s *Service) SubmitComplete(ctx context.Context, data []byte, ext string) (string, error) {
	if len(data) == 0 {
		return "", platerr.New(platerr.KindInput, "ingest", "empty submission")
	}

	sessionID := uuid.NewString()
	path := filepath.Join(s.cfg.UploadDir, sessionID+normalizeExt(ext))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", platerr.Wrap(platerr.KindStorage, "ingest", "store submission", err)
	}

	if err := s.enqueue(sessionID, path); err != nil {
		_ = os.Remove(path)
		return "", err
	}

	s.logger.InfoTag("INGEST", "session %s accepted, %d bytes", sessionID, len(data))
	return sessionID, nil
}

// SubmitChunk appends one chunk for a client-declared session. Only the
// final chunk assembles the submission and enqueues a job; the returned
// bool reports whether a job was queued.
func (s *Service) SubmitChunk(ctx context.Context, sessionID string, index int, data []byte, final bool) (bool, error) {
	if sessionID == "" {
		return false, platerr.New(platerr.KindInput, "ingest", "session id required")
	}
	if strings.ContainsAny(sessionID, `/\`) {
		return false, platerr.New(platerr.KindInput, "ingest", "invalid session id")
	}

	s.mu.Lock()
	state, ok := s.chunks[sessionID]
	if !ok {
		state = &chunkState{
			path:      filepath.Join(s.cfg.UploadDir, sessionID+".part"),
			lastIndex: -1,
		}
		s.chunks[sessionID] = state
	}
	state.lastIndex = index
	state.lastSeen = time.Now()
	s.mu.Unlock()

	if len(data) > 0 {
		f, err := os.OpenFile(state.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return false, platerr.Wrap(platerr.KindStorage, "ingest", "open chunk file", err)
		}
		_, werr := f.Write(data)
		cerr := f.Close()
		if werr != nil {
			return false, platerr.Wrap(platerr.KindStorage, "ingest", "append chunk", werr)
		}
		if cerr != nil {
			return false, platerr.Wrap(platerr.KindStorage, "ingest", "close chunk file", cerr)
		}
	}

	if !final {
		s.logger.DebugTag("INGEST", "session %s chunk %d received", sessionID, index)
		return false, nil
	}

	s.mu.Lock()
	delete(s.chunks, sessionID)
	s.mu.Unlock()

	finalPath := filepath.Join(s.cfg.UploadDir, sessionID+".wav")
	if err := os.Rename(state.path, finalPath); err != nil {
		return false, platerr.Wrap(platerr.KindStorage, "ingest", "assemble chunks", err)
	}

	if err := s.enqueue(sessionID, finalPath); err != nil {
		_ = os.Remove(finalPath)
		return false, err
	}

	s.logger.InfoTag("INGEST", "session %s assembled after chunk %d", sessionID, index)
	return true, nil
}

func (s *Service) enqueue(sessionID, path string) error {
	err := s.queue.Enqueue(pipeline.Job{SessionID: sessionID, AudioPath: path})
	if err != nil {
		return platerr.Wrap(platerr.KindTransport, "ingest", "queue rejected job", err)
	}
	return nil
}

// PendingChunks reports sessions with unassembled chunks, for diagnostics.
func (s *Service) PendingChunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

func (s *Service) gcLoop() {
	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.expireStale()
		case <-s.stop:
			return
		}
	}
}

// expireStale drops chunk sessions that never sent a final chunk.
func (s *Service) expireStale() {
	cutoff := time.Now().Add(-s.cfg.ChunkTTL)

	s.mu.Lock()
	var stale []*chunkState
	for id, state := range s.chunks {
		if state.lastSeen.Before(cutoff) {
			stale = append(stale, state)
			delete(s.chunks, id)
		}
	}
	s.mu.Unlock()

	for _, state := range stale {
		if err := os.Remove(state.path); err != nil && !os.IsNotExist(err) {
			s.logger.WarnTag("INGEST", "stale chunk cleanup failed: %v", err)
		}
	}
	if len(stale) > 0 {
		s.logger.InfoTag("INGEST", "expired %d stale chunk sessions", len(stale))
	}
}

// Close stops the collector.
func (s *Service) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ".wav"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if strings.ContainsAny(ext[1:], `./\`) {
		return ".wav"
	}
	return ext
}
