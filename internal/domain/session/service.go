package session

import (
	"context"
	"errors"

	"voicepipe-server-go/internal/domain/session/model"
	"voicepipe-server-go/internal/domain/session/store"
)

// Service layers the indexed store over the on-disk archive. The store is
// the primary lookup; the archive is the durable record and the fallback
// when the store has no entry.
type Service struct {
	store   store.Store
	archive *Archive
}

// NewService wires the indexed store and the archive together.
func NewService(st store.Store, archive *Archive) *Service {
	return &Service{store: st, archive: archive}
}

// Archive exposes the underlying record archive.
func (s *Service) Archive() *Archive {
	return s.archive
}

// SaveTranscript records a transcription-only result, visible to pollers
// before the pipeline finalizes.
func (s *Service) SaveTranscript(ctx context.Context, result model.Result) error {
	return s.archive.WriteTranscript(result)
}

// SaveResult writes the finalized result to both layers. The indexed store
// write happens last so a stored entry always has its archive record.
func (s *Service) SaveResult(ctx context.Context, result model.Result) error {
	if err := s.archive.WriteResult(result); err != nil {
		return err
	}
	return s.store.Write(ctx, result)
}

// Lookup finds a result by session id, falling back to the archive scan.
// store.ErrNotFound is the still-processing signal.
func (s *Service) Lookup(ctx context.Context, sessionID string) (model.Result, error) {
	result, err := s.store.FindBySession(ctx, sessionID)
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return model.Result{}, err
	}
	return s.archive.Find(sessionID)
}

// Stats reports store statistics for diagnostics.
func (s *Service) Stats(ctx context.Context) (map[string]any, error) {
	return s.store.Stats(ctx)
}

// Close releases the underlying store.
func (s *Service) Close(ctx context.Context) error {
	return s.store.Close(ctx)
}
