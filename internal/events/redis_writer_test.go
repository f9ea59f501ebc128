package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"
)

type mockRedis struct {
	mu    sync.Mutex
	calls []hsetCall
	fail  error
}

type hsetCall struct {
	Key    string
	Fields map[string]string
}

func (m *mockRedis) HSet(_ context.Context, key string, values ...any) error {
	fields := make(map[string]string)
	for i := 0; i+1 < len(values); i += 2 {
		k, _ := values[i].(string)
		v, _ := values[i+1].(string)
		fields[k] = v
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, hsetCall{Key: key, Fields: fields})
	return m.fail
}

func (m *mockRedis) getCalls() []hsetCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]hsetCall, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *mockRedis) setFail(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

func settled(a, b uint64, ms int64) Event {
	return Event{
		Kind:      KindSettled,
		Pool:      "WBTC-USDC",
		ReserveA:  uint256.NewInt(a),
		ReserveB:  uint256.NewInt(b),
		Timestamp: time.UnixMilli(ms),
	}
}

func TestRedisWriter_HSetCommand(t *testing.T) {
	mock := &mockRedis{}
	feed := make(chan Event, 8)
	rw := NewRedisWriter(mock, feed, discard())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go rw.Run(ctx)

	feed <- settled(1100000000, 3636363636363, 1700000000000)
	time.Sleep(200 * time.Millisecond)

	calls := mock.getCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 HSET call, got %d", len(calls))
	}
	c := calls[0]
	if c.Key != "pool:WBTC-USDC" {
		t.Fatalf("unexpected key %q", c.Key)
	}
	if c.Fields["reserve_a"] != "1100000000" || c.Fields["reserve_b"] != "3636363636363" {
		t.Fatalf("unexpected reserves: %v", c.Fields)
	}
	if c.Fields["event"] != "settled" || c.Fields["ts"] != "1700000000000" {
		t.Fatalf("unexpected fields: %v", c.Fields)
	}
}

func TestRedisWriter_DuplicateSuppression(t *testing.T) {
	mock := &mockRedis{}
	feed := make(chan Event, 8)
	rw := NewRedisWriter(mock, feed, discard())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go rw.Run(ctx)

	feed <- settled(10, 40, 1000)
	feed <- settled(10, 40, 2000)
	feed <- Event{Kind: KindAborted, Pool: "WBTC-USDC", Reason: "zero_output"}
	time.Sleep(200 * time.Millisecond)

	if n := len(mock.getCalls()); n != 1 {
		t.Fatalf("expected 1 HSET call (duplicates and reserve-less events skipped), got %d", n)
	}

	feed <- settled(11, 37, 3000)
	time.Sleep(200 * time.Millisecond)

	calls := mock.getCalls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 HSET calls after reserves changed, got %d", len(calls))
	}
	if calls[1].Fields["reserve_b"] != "37" {
		t.Fatalf("expected updated reserve_b '37', got %q", calls[1].Fields["reserve_b"])
	}
}

func TestRedisWriter_RetriesAfterFailure(t *testing.T) {
	mock := &mockRedis{}
	mock.setFail(errors.New("connection refused"))
	feed := make(chan Event, 8)
	rw := NewRedisWriter(mock, feed, discard())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go rw.Run(ctx)

	feed <- settled(10, 40, 1000)
	time.Sleep(100 * time.Millisecond)

	mock.setFail(nil)
	feed <- settled(10, 40, 2000)
	time.Sleep(100 * time.Millisecond)

	if n := len(mock.getCalls()); n != 2 {
		t.Fatalf("expected the failed snapshot to be rewritten, got %d calls", n)
	}
}
