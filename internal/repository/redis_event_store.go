// internal/repository/redis_event_store.go
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unclebandit/revive-backend/internal/model"
)

// RedisEventStore keeps processed event identities in Redis with SETNX.
// A zero ttl keeps keys forever.
type RedisEventStore struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ ProcessedEventRepositoryInterface = (*RedisEventStore)(nil)

func NewRedisEventStore(rdb *redis.Client, ttl time.Duration) *RedisEventStore {
	return &RedisEventStore{rdb: rdb, ttl: ttl}
}

func (s *RedisEventStore) Key(kind model.EventKind, id string) string {
	return fmt.Sprintf("processed_event:%s:%s", kind, id)
}

func (s *RedisEventStore) Insert(ctx context.Context, ev *model.ProcessedEvent) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, s.Key(ev.Kind, ev.ID), ev.CreatedAt.UTC().Format(time.RFC3339Nano), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("RedisEventStore - Insert - SetNX: %w", err)
	}
	return ok, nil
}

// Release deletes the key. Redis writes do not take part in the Postgres
// transaction around the effects, so a failed effect must drop the key itself.
func (s *RedisEventStore) Release(ctx context.Context, kind model.EventKind, id string) error {
	if err := s.rdb.Del(ctx, s.Key(kind, id)).Err(); err != nil {
		return fmt.Errorf("RedisEventStore - Release - Del: %w", err)
	}
	return nil
}
