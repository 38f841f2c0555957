package store

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"voicepipe-server-go/internal/domain/session/model"
)

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedis constructs a redis-backed session store.
func NewRedis(cfg Config) (Store, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis configuration missing")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	opts := &redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "session:result:"
	}

	return &redisStore{
		client: client,
		ttl:    cfg.TTL,
		prefix: prefix,
	}, nil
}

func (s *redisStore) key(id string) string {
	return s.prefix + id
}

func (s *redisStore) Write(ctx context.Context, result model.Result) error {
	if result.SessionID == "" {
		return fmt.Errorf("session id required")
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now()
	}
	data, err := sonic.Marshal(result)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(result.SessionID), data, s.ttl).Err()
}

func (s *redisStore) FindBySession(ctx context.Context, sessionID string) (model.Result, error) {
	raw, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return model.Result{}, ErrNotFound
		}
		return model.Result{}, err
	}
	var result model.Result
	if err := sonic.Unmarshal(raw, &result); err != nil {
		return model.Result{}, err
	}
	return result, nil
}

func (s *redisStore) Stats(ctx context.Context) (map[string]any, error) {
	size, err := s.client.DBSize(ctx).Result()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"type":  "redis",
		"total": size,
	}, nil
}

func (s *redisStore) Close(context.Context) error {
	return s.client.Close()
}
