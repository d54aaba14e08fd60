// Package projection builds local views from observed room events.
// Handles ordering, deduplication, and bounded retention. Does not emit
// events or touch the transport.
package projection

import (
	"context"
	"sync"

	"chat-relay/domain"
	"chat-relay/domain/event"
)

// Timeline is an in-memory view of observed room activity: messages in
// arrival order plus the current presence set. It implements the
// broadcaster's sink contract, so it serves both as a regular subscriber
// and as a global tap behind the debug surface. Presence is
// reference-counted per user: a user joined to two rooms stays present
// until the last leave.
type Timeline struct {
	mu       sync.Mutex
	messages []domain.Message
	seen     map[string]struct{}
	present  map[domain.UserID]int
	capacity int
}

// NewTimeline builds a timeline retaining at most capacity messages;
// capacity <= 0 means unbounded.
func NewTimeline(capacity int) *Timeline {
	return &Timeline{
		seen:     make(map[string]struct{}),
		present:  make(map[domain.UserID]int),
		capacity: capacity,
	}
}

// Consume implements contract.EventSink. Redelivered messages are
// deduplicated by id; typing events are presence-neutral and ignored.
func (t *Timeline) Consume(_ context.Context, e event.DomainEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch evt := e.(type) {
	case event.MessageReceived:
		id := evt.Message.ID.String()
		if _, dup := t.seen[id]; dup {
			return nil
		}
		t.seen[id] = struct{}{}
		t.messages = append(t.messages, evt.Message)
		if t.capacity > 0 && len(t.messages) > t.capacity {
			evicted := t.messages[0]
			t.messages = t.messages[1:]
			delete(t.seen, evicted.ID.String())
		}
	case event.UserJoined:
		t.present[evt.UserID]++
	case event.UserLeft:
		t.present[evt.UserID]--
		if t.present[evt.UserID] <= 0 {
			delete(t.present, evt.UserID)
		}
	}
	return nil
}

// Messages returns the retained messages in arrival order.
func (t *Timeline) Messages() []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Present returns the users currently joined to at least one room.
func (t *Timeline) Present() []domain.UserID {
	t.mu.Lock()
	defer t.mu.Unlock()
	users := make([]domain.UserID, 0, len(t.present))
	for user := range t.present {
		users = append(users, user)
	}
	return users
}
