package runtime

import (
	"context"
	"log/slog"
	"sync"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/observability"
)

// sinkResolver is the slice of the registry the broadcaster needs: sinks
// are resolved at delivery time, so a connection deregistered mid-flight
// simply resolves to nothing.
type sinkResolver interface {
	Sink(connID domain.ConnectionID) (contract.EventSink, bool)
}

type roomState struct {
	// delivery serializes fan-out per room. Two Broadcast calls to the
	// same room are observed by every common subscriber in call order;
	// unrelated rooms never contend on it.
	delivery sync.Mutex
	members  map[domain.ConnectionID]struct{}
}

// Broadcaster maintains the room -> connection fan-out sets and delivers
// events to them. Sets here are transient bookkeeping only; an empty room
// is pruned, and a room entry is recreated on the next subscribe.
type Broadcaster struct {
	mu       sync.RWMutex
	rooms    map[domain.RoomID]*roomState
	registry sinkResolver
	stats    *observability.Stats
	log      *slog.Logger

	// evict is invoked, outside of any broadcaster lock, for each
	// connection whose sink rejected a delivery. Wired by the transport
	// layer to tear the connection down.
	evict func(connID domain.ConnectionID)

	// tap observes every delivered event regardless of subscriptions.
	tap contract.EventSink
}

func NewBroadcaster(log *slog.Logger, registry sinkResolver, stats *observability.Stats) *Broadcaster {
	return &Broadcaster{
		rooms:    make(map[domain.RoomID]*roomState),
		registry: registry,
		stats:    stats,
		log:      log,
	}
}

// OnEvict registers the cleanup hook for failed deliveries. The field is
// read without a lock: it must be set during wiring, before the first
// Broadcast.
func (b *Broadcaster) OnEvict(fn func(connID domain.ConnectionID)) {
	b.evict = fn
}

// Tap registers a sink observing every broadcast event, independent of
// room subscriptions. Same contract as OnEvict: set during wiring, before
// the first Broadcast. Tap errors are swallowed, an observer never
// disturbs the fan-out.
func (b *Broadcaster) Tap(sink contract.EventSink) {
	b.tap = sink
}

// Subscribe adds the connection to the room's delivery set. Re-subscribing
// is a no-op, not an error.
func (b *Broadcaster) Subscribe(roomID domain.RoomID, connID domain.ConnectionID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rs, ok := b.rooms[roomID]
	if !ok {
		rs = &roomState{members: make(map[domain.ConnectionID]struct{})}
		b.rooms[roomID] = rs
	}
	rs.members[connID] = struct{}{}
}

// Unsubscribe is idempotent. The room entry is pruned once its last
// subscriber is gone.
func (b *Broadcaster) Unsubscribe(roomID domain.RoomID, connID domain.ConnectionID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rs, ok := b.rooms[roomID]
	if !ok {
		return
	}
	delete(rs.members, connID)
	if len(rs.members) == 0 {
		delete(b.rooms, roomID)
	}
}

// Broadcast delivers e to every connection currently subscribed to the
// room, except the excluded one. Delivery to each subscriber is
// independent and best-effort: a sink that rejects the event never blocks
// or fails the others, it is handed to the evict hook after the room's
// delivery lock is released.
func (b *Broadcaster) Broadcast(ctx context.Context, roomID domain.RoomID, e event.DomainEvent, exclude domain.ConnectionID) {
	b.mu.RLock()
	rs, ok := b.rooms[roomID]
	b.mu.RUnlock()
	if !ok {
		return
	}

	rs.delivery.Lock()

	b.mu.RLock()
	targets := make([]domain.ConnectionID, 0, len(rs.members))
	for connID := range rs.members {
		if connID == exclude {
			continue
		}
		targets = append(targets, connID)
	}
	b.mu.RUnlock()

	var failed []domain.ConnectionID
	for _, connID := range targets {
		sink, ok := b.registry.Sink(connID)
		if !ok {
			// Deregistered between snapshot and delivery.
			continue
		}
		if err := sink.Consume(ctx, e); err != nil {
			b.stats.DeliveryFailed()
			b.log.Warn("event delivery failed, evicting subscriber",
				"connection_id", connID,
				"room_id", roomID,
				"error", err)
			failed = append(failed, connID)
		}
	}
	if b.tap != nil {
		_ = b.tap.Consume(ctx, e)
	}
	rs.delivery.Unlock()

	if b.evict != nil {
		for _, connID := range failed {
			b.evict(connID)
		}
	}
}

// Subscribers returns a snapshot of the room's delivery set.
func (b *Broadcaster) Subscribers(roomID domain.RoomID) []domain.ConnectionID {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rs, ok := b.rooms[roomID]
	if !ok {
		return nil
	}
	conns := make([]domain.ConnectionID, 0, len(rs.members))
	for connID := range rs.members {
		conns = append(conns, connID)
	}
	return conns
}
