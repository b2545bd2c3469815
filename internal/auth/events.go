package auth

import (
	"log/slog"
	"sync"
	"time"
)

type EventType string

const (
	SignedIn       EventType = "SIGNED_IN"
	SignedOut      EventType = "SIGNED_OUT"
	TokenRefreshed EventType = "TOKEN_REFRESHED"
)

// Event is an auth state change of one browser. Session is nil for
// SignedOut.
type Event struct {
	Type     EventType
	ClientID string
	Session  *Session
	At       time.Time
}

// Broker fans auth events out to subscribers. Delivery never blocks the
// publisher: a subscriber whose buffer is full misses the event.
type Broker struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	buffer int
	log    *slog.Logger
}

func NewBroker(buffer int, logger *slog.Logger) *Broker {
	if buffer < 1 {
		buffer = 1
	}
	return &Broker{
		subs:   make(map[int]chan Event),
		buffer: buffer,
		log:    logger.With("component", "auth_events"),
	}
}

// Subscribe registers a new subscriber. The returned func unsubscribes and
// closes the channel; calling it more than once is harmless.
func (b *Broker) Subscribe() (<-chan Event, func()) {
	return b.SubscribeBuffered(b.buffer)
}

// SubscribeBuffered is Subscribe with its own buffer size. Sizes below the
// broker default are raised to it.
func (b *Broker) SubscribeBuffered(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buffer = max(buffer, b.buffer)
	id := b.nextID
	b.nextID++
	ch := make(chan Event, buffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

func (b *Broker) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.log.Warn("dropping auth event for slow subscriber", "subscriber", id, "event", ev.Type)
		}
	}
}

// Subscribers reports the current subscriber count.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
