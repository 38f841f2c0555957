package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"gorm.io/gorm"

	"voicepipe-server-go/internal/domain/session/model"
	"voicepipe-server-go/internal/platform/storage"
)

type sqliteStore struct {
	db *gorm.DB
}

// NewSQLite builds a sqlite-backed session store over an opened database.
func NewSQLite(db *gorm.DB) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite store requires database handle")
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Write(ctx context.Context, result model.Result) error {
	if result.SessionID == "" {
		return fmt.Errorf("session id required")
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now()
	}
	payload, err := sonic.Marshal(result)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", result.SessionID).
			Delete(&storage.SessionResult{}).Error; err != nil {
			return err
		}
		record := &storage.SessionResult{
			SessionID: result.SessionID,
			Status:    result.Status,
			Payload:   payload,
			CreatedAt: result.CreatedAt,
		}
		return tx.Create(record).Error
	})
}

func (s *sqliteStore) FindBySession(ctx context.Context, sessionID string) (model.Result, error) {
	var record storage.SessionResult
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Result{}, ErrNotFound
	}
	if err != nil {
		return model.Result{}, err
	}

	var result model.Result
	if err := sonic.Unmarshal(record.Payload, &result); err != nil {
		return model.Result{}, err
	}
	return result, nil
}

func (s *sqliteStore) Stats(ctx context.Context) (map[string]any, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&storage.SessionResult{}).Count(&total).Error; err != nil {
		return nil, err
	}
	return map[string]any{
		"type":  "sqlite",
		"total": total,
	}, nil
}

func (s *sqliteStore) Close(context.Context) error {
	return nil
}
