package events

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type mockSource struct {
	ch chan Event
}

func newMockSource() *mockSource {
	return &mockSource{ch: make(chan Event, 64)}
}

func (m *mockSource) Events() <-chan Event { return m.ch }

func (m *mockSource) send(e Event) { m.ch <- e }

func TestBroadcaster_MultipleSources(t *testing.T) {
	wbtcUsdc := newMockSource()
	ethUsdc := newMockSource()

	bc := NewBroadcaster(discard())
	bc.Register(wbtcUsdc)
	bc.Register(ethUsdc)

	all := bc.SubscribeAll()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go bc.Run(ctx)

	wbtcUsdc.send(Event{Kind: KindSettled, Pool: "WBTC-USDC"})
	ethUsdc.send(Event{Kind: KindSettled, Pool: "ETH-USDC"})

	received := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case e := <-all:
			received[e.Pool] = true
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i+1)
		}
	}

	if !received["WBTC-USDC"] || !received["ETH-USDC"] {
		t.Fatalf("missing events on unified stream: %v", received)
	}
}

func TestBroadcaster_KindFilter(t *testing.T) {
	src := newMockSource()

	bc := NewBroadcaster(discard())
	bc.Register(src)

	aborted := bc.Subscribe(KindAborted)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go bc.Run(ctx)

	src.send(Event{Kind: KindSettled, Pool: "WBTC-USDC"})
	src.send(Event{Kind: KindAborted, Pool: "WBTC-USDC", Reason: "remote_decode"})

	select {
	case e := <-aborted:
		if e.Kind != KindAborted || e.Reason != "remote_decode" {
			t.Fatalf("unexpected event: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for aborted event")
	}

	select {
	case e := <-aborted:
		t.Fatalf("filtered subscriber got %s event", e.Kind)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBroadcaster_SlowSubscriber(t *testing.T) {
	src := newMockSource()

	bc := NewBroadcaster(discard())
	bc.Register(src)

	slow := bc.Subscribe(KindSettled)
	fast := bc.SubscribeAll()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go bc.Run(ctx)

	// More events than the filtered buffer holds; nobody drains slow.
	go func() {
		for i := 0; i < 300; i++ {
			src.send(Event{Kind: KindSettled, Pool: "WBTC-USDC"})
		}
	}()

	got := 0
	timeout := time.After(time.Second)
	for got < 300 {
		select {
		case <-fast:
			got++
		case <-timeout:
			t.Fatalf("unified subscriber blocked: received %d of 300", got)
		}
	}

	if n := len(slow); n != cap(slow) {
		t.Fatalf("expected slow subscriber buffer full (%d), got %d", cap(slow), n)
	}
}

func TestKind_String(t *testing.T) {
	cases := map[Kind]string{
		KindBootstrapped:    "bootstrapped",
		KindBootstrapFailed: "bootstrap_failed",
		KindSettled:         "settled",
		KindAborted:         "aborted",
		KindSeeded:          "seeded",
		KindRefreshed:       "refreshed",
		Kind(0):             "unknown",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Fatalf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
