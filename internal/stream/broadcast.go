package stream

import (
	"sync"

	"github.com/orion-fleet/orion/internal/telemetry"
)

// DefaultBufferSize is the per-subscriber channel capacity.
const DefaultBufferSize = 16

// Broadcaster fans samples out to any number of subscribers. Publish never
// blocks: a subscriber whose buffer is full misses that sample.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[int]chan telemetry.Sample
	nextID int
	closed bool
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan telemetry.Sample)}
}

// Subscribe returns a channel receiving every published sample and a cancel
// func that unsubscribes and closes the channel. Subscribing to a closed
// Broadcaster returns an already closed channel.
func (b *Broadcaster) Subscribe(buffer int) (<-chan telemetry.Sample, func()) {
	if buffer < 1 {
		buffer = DefaultBufferSize
	}
	ch := make(chan telemetry.Sample, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() { b.unsubscribe(id) })
	}
}

func (b *Broadcaster) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish delivers s to every subscriber with room in its buffer.
func (b *Broadcaster) Publish(s telemetry.Sample) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- s:
		default:
		}
	}
}

// Subscribers returns the number of current subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later publishes are dropped.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// Tee returns a Publisher that hands each sample to every pub in order.
// Nil publishers are skipped.
func Tee(pubs ...Publisher) Publisher {
	return PublisherFunc(func(s telemetry.Sample) {
		for _, p := range pubs {
			if p != nil {
				p.Publish(s)
			}
		}
	})
}
