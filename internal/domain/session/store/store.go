package store

import (
	"context"
	"errors"
	"time"

	"voicepipe-server-go/internal/domain/session/model"
)

// ErrNotFound means the session is still processing or unknown. Callers
// treat it as a normal outcome, not a failure.
var ErrNotFound = errors.New("session result not found")

// Store keeps one immutable Result per finalized session.
type Store interface {
	Write(ctx context.Context, result model.Result) error
	FindBySession(ctx context.Context, sessionID string) (model.Result, error)
	Stats(ctx context.Context) (map[string]any, error)
	Close(ctx context.Context) error
}

// Config describes the high level store selection parameters.
type Config struct {
	Driver string
	TTL    time.Duration
	Redis  *RedisConfig
	SQLite *SQLiteConfig
	Memory *MemoryConfig
}

// MemoryConfig holds in-memory tuning knobs.
type MemoryConfig struct {
	GCInterval time.Duration
}

// SQLiteConfig provides the database dependency.
type SQLiteConfig struct {
	DSN string
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}
