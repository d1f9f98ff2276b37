// Package notify propagates store changes between sessions: an in-process
// bus fans changes out to subscribers in the same process, and a filesystem
// watcher turns external writes to the shared store file into the same
// change events.
package notify

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Change carries the new serialized room collection after a store write.
type Change struct {
	// Payload is the full serialized collection, as written.
	Payload []byte
	// External reports whether the write came from outside this process.
	External bool
}

// Bus is an in-process fan-out of store changes. Publishing never blocks: a
// subscriber that falls behind drops changes, which is safe because every
// payload is a full snapshot and the polling refresher catches stragglers.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Change
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Change)}
}

// Subscribe registers a subscriber. The returned cancel function removes the
// subscription and closes the channel.
func (b *Bus) Subscribe() (<-chan Change, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Change, 16)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the change to every subscriber.
func (b *Bus) Publish(c Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- c:
		default:
			log.Warn().Int("subscriber", id).Msg("slow subscriber, change dropped")
		}
	}
}
