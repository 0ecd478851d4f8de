package fsm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionTTL = 24 * time.Hour

// RedisStorage хранит сессии в Redis в виде JSON с TTL
type RedisStorage struct {
	client *redis.Client
	prefix string
}

func NewRedisStorage(client *redis.Client) *RedisStorage {
	return &RedisStorage{client: client, prefix: "pixelpie:fsm"}
}

func (r *RedisStorage) key(chatID int64) string {
	return fmt.Sprintf("%s:%d", r.prefix, chatID)
}

func (r *RedisStorage) Get(ctx context.Context, chatID int64) (*Session, error) {
	data, err := r.client.Get(ctx, r.key(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return NewSession(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("fsm get: %w", err)
	}

	s := NewSession()
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("fsm decode: %w", err)
	}
	return s, nil
}

func (r *RedisStorage) Set(ctx context.Context, chatID int64, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("fsm encode: %w", err)
	}
	if err := r.client.Set(ctx, r.key(chatID), data, sessionTTL).Err(); err != nil {
		return fmt.Errorf("fsm set: %w", err)
	}
	return nil
}

func (r *RedisStorage) Reset(ctx context.Context, chatID int64) error {
	if err := r.client.Del(ctx, r.key(chatID)).Err(); err != nil {
		return fmt.Errorf("fsm reset: %w", err)
	}
	return nil
}
