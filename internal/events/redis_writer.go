package events

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of Redis used by RedisWriter.
type RedisClient interface {
	HSet(ctx context.Context, key string, values ...any) error
}

// GoRedis adapts *redis.Client to RedisClient.
type GoRedis struct {
	*redis.Client
}

func (g GoRedis) HSet(ctx context.Context, key string, values ...any) error {
	return g.Client.HSet(ctx, key, values...).Err()
}

type reserveSnapshot struct {
	A string
	B string
}

// RedisWriter persists the latest observed reserves of every pool:
//
//	Key:    pool:{pool}
//	Fields: reserve_a, reserve_b, event, ts
//
// Events without reserves are ignored and unchanged reserves are not
// rewritten.
type RedisWriter struct {
	client RedisClient
	feed   <-chan Event
	buf    chan Event
	logger *slog.Logger

	mu   sync.Mutex
	last map[string]reserveSnapshot
}

// NewRedisWriter creates a writer reading from feed, usually
// Broadcaster.SubscribeAll.
func NewRedisWriter(client RedisClient, feed <-chan Event, logger *slog.Logger) *RedisWriter {
	return &RedisWriter{
		client: client,
		feed:   feed,
		buf:    make(chan Event, 1024),
		logger: logger,
		last:   make(map[string]reserveSnapshot),
	}
}

// Run ingests and flushes until ctx is cancelled.
func (rw *RedisWriter) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-rw.feed:
				if !ok {
					return
				}
				if !e.HasReserves() {
					continue
				}
				select {
				case rw.buf <- e:
				default:
				}
			}
		}
	}()

	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case e := <-rw.buf:
				rw.write(ctx, e)
			}
		}
	}()

	wg.Wait()
}

func (rw *RedisWriter) write(ctx context.Context, e Event) {
	key := fmt.Sprintf("pool:%s", e.Pool)
	snap := reserveSnapshot{A: e.ReserveA.Dec(), B: e.ReserveB.Dec()}

	rw.mu.Lock()
	if prev, ok := rw.last[key]; ok && prev == snap {
		rw.mu.Unlock()
		return
	}
	rw.last[key] = snap
	rw.mu.Unlock()

	ts := strconv.FormatInt(e.Timestamp.UnixMilli(), 10)
	if err := rw.client.HSet(ctx, key, "reserve_a", snap.A, "reserve_b", snap.B, "event", e.Kind.String(), "ts", ts); err != nil {
		rw.logger.Warn("redis writer: hset failed", "key", key, "err", err)
		rw.mu.Lock()
		delete(rw.last, key)
		rw.mu.Unlock()
	}
}
