// Package dedupe remembers which webhook events were already handled so a
// redelivered event is not answered twice.
package dedupe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store marks event ids as processed.
type Store interface {
	// MarkProcessed returns true when id was not seen within ttl.
	MarkProcessed(ctx context.Context, id string, ttl time.Duration) (bool, error)
}

const keyPrefix = "shopbot:event:"

// setNXer is the subset of *redis.Client used by RedisStore.
type setNXer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisStore shares dedupe state across instances.
type RedisStore struct {
	rdb setNXer
}

func NewRedisStore(rdb setNXer) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// MarkProcessed uses SETNX so concurrent deliveries of the same event race safely.
func (s *RedisStore) MarkProcessed(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	if id == "" {
		return true, nil
	}
	ok, err := s.rdb.SetNX(ctx, keyPrefix+id, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark event %s: %w", id, err)
	}
	return ok, nil
}

// MemoryStore is a single-instance Store. Expired ids are pruned on write
// once the map grows past pruneAt entries.
type MemoryStore struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	pruneAt int
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		seen:    make(map[string]time.Time),
		pruneAt: 10_000,
		now:     time.Now,
	}
}

func (s *MemoryStore) MarkProcessed(_ context.Context, id string, ttl time.Duration) (bool, error) {
	if id == "" {
		return true, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, ok := s.seen[id]; ok && now.Before(exp) {
		return false, nil
	}
	if len(s.seen) >= s.pruneAt {
		for k, exp := range s.seen {
			if !now.Before(exp) {
				delete(s.seen, k)
			}
		}
	}
	s.seen[id] = now.Add(ttl)
	return true, nil
}
