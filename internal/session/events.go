package session

import (
	"log/slog"
	"sync"
	"time"
)

type EventType string

const (
	EventAnimation    EventType = "animation"
	EventEnhancements EventType = "enhancements"
	EventChat         EventType = "chat"
	EventTimeline     EventType = "timeline"
	EventClosed       EventType = "closed"
)

// Event is one state change pushed to subscribers of a session.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	Data      any       `json:"data,omitempty"`
	At        time.Time `json:"at"`
}

const subscriberBuffer = 64

// broadcaster fans events out to buffered channels. A subscriber that falls
// behind loses events rather than blocking the publisher.
type broadcaster struct {
	mu     sync.Mutex
	logger *slog.Logger
	next   int
	subs   map[int]chan Event
	closed bool
}

func newBroadcaster(logger *slog.Logger) *broadcaster {
	return &broadcaster{logger: logger, subs: make(map[int]chan Event)}
}

func (b *broadcaster) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
}

func (b *broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("dropping event for slow subscriber", "subscriber", id, "type", string(ev.Type))
		}
	}
}

// close delivers a final event and closes every channel.
func (b *broadcaster) close(final Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		select {
		case ch <- final:
		default:
		}
		close(ch)
		delete(b.subs, id)
	}
}
