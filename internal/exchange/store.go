package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// StateStore records which pools have been constructed. Claim succeeds
// exactly once per key.
type StateStore interface {
	Claim(ctx context.Context, key string) (bool, error)
}

// MemoryStore is a process-local StateStore.
type MemoryStore struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]struct{})}
}

func (m *MemoryStore) Claim(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = struct{}{}
	return true, nil
}

// SetNXClient is the subset of *redis.Client used by RedisStore.
type SetNXClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// RedisStore claims pool keys with SETNX so construction is guarded across
// restarts and replicas.
type RedisStore struct {
	client SetNXClient
	now    func() time.Time
}

func NewRedisStore(client SetNXClient) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func (r *RedisStore) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, r.now().UTC().Format(time.RFC3339), 0).Result()
	if err != nil {
		return false, fmt.Errorf("exchange: claim %s: %w", key, err)
	}
	return ok, nil
}
