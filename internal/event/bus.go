package event

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"go-auth-service/internal/model"
)

const subscriberBuffer = 100

type subscription struct {
	ch    chan Event
	types map[Type]struct{}
}

func (s subscription) wants(t Type) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// InMemoryBus delivers events to in-process subscribers. It stands in for the
// broker when KAFKA_BROKERS is empty. Delivery never blocks the publisher: a
// subscriber whose buffer is full misses the event.
type InMemoryBus struct {
	mu      sync.RWMutex
	subs    map[string]subscription
	dropped atomic.Int64
	now     func() time.Time
}

func NewBus() *InMemoryBus {
	return &InMemoryBus{
		subs: make(map[string]subscription),
		now:  time.Now,
	}
}

func (b *InMemoryBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, sub := range b.subs {
		if !sub.wants(e.Type) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			b.dropped.Add(1)
			slog.Warn("event dropped for slow subscriber", "subscriber", id, "type", e.Type)
		}
	}
}

func (b *InMemoryBus) PublishUserCreated(user model.UserView) {
	at := b.now().UTC()
	b.Publish(Event{
		ID:        uuid.NewString(),
		Type:      TypeUserCreated,
		Payload:   NewUserCreated(user, at),
		Timestamp: at.Format(time.RFC3339Nano),
	})
}

// Subscribe registers a listener for the given event types, or for every
// type when none are named. The returned func unsubscribes and closes the
// channel; calling it twice is safe.
func (b *InMemoryBus) Subscribe(types ...Type) (<-chan Event, func()) {
	sub := subscription{ch: make(chan Event, subscriberBuffer)}
	if len(types) > 0 {
		sub.types = make(map[Type]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	id := uuid.NewString()
	b.mu.Lock()
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Dropped counts deliveries skipped because a subscriber was full.
func (b *InMemoryBus) Dropped() int64 {
	return b.dropped.Load()
}
