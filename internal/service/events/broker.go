package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/person-api/backend/internal/model/person"
)

// Type names the kind of mutation an Event reports.
type Type string

const (
	Added   Type = "added"
	Updated Type = "updated"
	Removed Type = "removed"
)

// Event describes one successful mutation of the person collection.
type Event struct {
	ID     string        `json:"id"`
	Type   Type          `json:"type"`
	Person person.Person `json:"person"`
	Time   time.Time     `json:"time"`
}

// NewEvent stamps a fresh event for the given person.
func NewEvent(t Type, p person.Person) Event {
	return Event{
		ID:     uuid.NewString(),
		Type:   t,
		Person: p,
		Time:   time.Now().UTC(),
	}
}

// Publisher is what mutation handlers need from the broker.
type Publisher interface {
	Publish(Event)
}

// Broker fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
	closed      bool
	buffer      int
	logger      zerolog.Logger
}

// NewBroker creates a broker whose subscriber channels hold buffer events.
func NewBroker(buffer int, logger zerolog.Logger) *Broker {
	if buffer < 1 {
		buffer = 1
	}
	return &Broker{
		subscribers: make(map[string]chan Event),
		buffer:      buffer,
		logger:      logger.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a new subscriber. The returned func unsubscribes and
// closes the channel; it is safe to call more than once. After Close the
// returned channel is already closed.
func (b *Broker) Subscribe() (<-chan Event, func()) {
	id := uuid.NewString()
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subscribers[id] = ch
	b.mu.Unlock()

	b.logger.Debug().Str("subscriber", id).Msg("subscriber attached")

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		// Close may already have detached and closed it.
		if _, ok := b.subscribers[id]; !ok {
			return
		}
		delete(b.subscribers, id)
		close(ch)
		b.logger.Debug().Str("subscriber", id).Msg("subscriber detached")
	}
}

// Close detaches every subscriber and closes its channel, which ends the
// feed streams reading from them. Later subscriptions are closed on arrival.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
	b.logger.Debug().Msg("broker closed")
}

// Publish delivers ev to every current subscriber.
func (b *Broker) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			b.logger.Warn().Str("subscriber", id).Str("event", ev.ID).Msg("subscriber buffer full, dropping event")
		}
	}
}

// Subscribers reports the number of attached subscribers.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
