package monitor

import (
	"sync"

	"github.com/jiin/botwatch/internal/logger"
	"github.com/jiin/botwatch/internal/models"
)

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]chan models.Event
	nextID uint64
	log    *logger.Logger
}

func NewBus() *Bus {
	return &Bus{
		subs: make(map[uint64]chan models.Event),
		log:  logger.WithComponent("bus"),
	}
}

// Subscribe registers a subscriber. The returned cancel func unregisters
// it and closes the channel; calling it more than once is safe.
func (b *Bus) Subscribe(buffer int) (<-chan models.Event, func()) {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan models.Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber with room in its buffer
func (b *Bus) Publish(ev models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.log.Debug("Subscriber buffer full, event dropped", "subscriber", id, "type", string(ev.Type))
		}
	}
}

// Subscribers returns the number of registered subscribers
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
