package events

import (
	"context"
	"log/slog"
	"sync"
)

// Broadcaster fans events from any number of sources out to per-kind
// subscribers and a unified stream.
type Broadcaster struct {
	logger  *slog.Logger
	sources []<-chan Event

	mu   sync.RWMutex
	subs map[Kind][]chan Event

	allMu  sync.RWMutex
	allSub []chan Event
}

// NewBroadcaster creates a Broadcaster ready for source registration.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		logger: logger,
		subs:   make(map[Kind][]chan Event),
	}
}

// Register adds a source. Must be called before Run.
func (b *Broadcaster) Register(src Source) {
	b.sources = append(b.sources, src.Events())
}

// Subscribe returns a channel receiving events of the given kind. Slow
// consumers lose events.
func (b *Broadcaster) Subscribe(kind Kind) <-chan Event {
	ch := make(chan Event, 256)

	b.mu.Lock()
	b.subs[kind] = append(b.subs[kind], ch)
	b.mu.Unlock()

	return ch
}

// SubscribeAll returns a channel receiving every event. Used by the Redis
// writer and logging.
func (b *Broadcaster) SubscribeAll() <-chan Event {
	ch := make(chan Event, 512)

	b.allMu.Lock()
	b.allSub = append(b.allSub, ch)
	b.allMu.Unlock()

	return ch
}

// Run consumes every registered source until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	var wg sync.WaitGroup

	for _, src := range b.sources {
		wg.Add(1)
		go func(ch <-chan Event) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case e, ok := <-ch:
					if !ok {
						return
					}
					b.distribute(e)
				}
			}
		}(src)
	}

	wg.Wait()
}

func (b *Broadcaster) distribute(e Event) {
	b.mu.RLock()
	for _, ch := range b.subs[e.Kind] {
		select {
		case ch <- e:
		default:
			b.logger.Warn("broadcaster: dropping event for slow subscriber", "pool", e.Pool, "kind", e.Kind)
		}
	}
	b.mu.RUnlock()

	b.allMu.RLock()
	for _, ch := range b.allSub {
		select {
		case ch <- e:
		default:
		}
	}
	b.allMu.RUnlock()
}
