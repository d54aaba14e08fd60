// Package runtime holds the live connection layer: the connection
// registry, the room broadcaster, and the session coordinator that gates
// every client action. Nothing in here is durable; durable state lives in
// the repositories.
package runtime

import (
	"sync"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
)

type session struct {
	userID domain.UserID
	sink   contract.EventSink
	rooms  map[domain.RoomID]struct{}
}

// Registry owns the bidirectional mapping between live connections and
// (user, room subscriptions). The rooms set is the reverse index used for
// cascading cleanup on disconnect: deregistration iterates it once instead
// of scanning every room.
//
// Registry methods never call out to stores or sinks, so holding the lock
// inside them cannot stall unrelated connections.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.ConnectionID]*session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[domain.ConnectionID]*session)}
}

// Register records a freshly authenticated connection with an empty room
// set. Registering the same connection twice is a protocol error.
func (r *Registry) Register(connID domain.ConnectionID, userID domain.UserID, sink contract.EventSink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[connID]; ok {
		return errors.ErrAlreadyRegistered
	}
	r.sessions[connID] = &session{
		userID: userID,
		sink:   sink,
		rooms:  make(map[domain.RoomID]struct{}),
	}
	return nil
}

// Deregister removes the connection and returns the rooms it was
// subscribed to so the caller can unsubscribe and notify each one.
// It is idempotent: a second call returns nil and does nothing.
func (r *Registry) Deregister(connID domain.ConnectionID) []domain.RoomID {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[connID]
	if !ok {
		return nil
	}
	delete(r.sessions, connID)

	rooms := make([]domain.RoomID, 0, len(sess.rooms))
	for roomID := range sess.rooms {
		rooms = append(rooms, roomID)
	}
	return rooms
}

func (r *Registry) ResolveUser(connID domain.ConnectionID) (domain.UserID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[connID]
	if !ok {
		return "", errors.ErrUnknownConnection
	}
	return sess.userID, nil
}

func (r *Registry) Subscriptions(connID domain.ConnectionID) []domain.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[connID]
	if !ok {
		return nil
	}
	rooms := make([]domain.RoomID, 0, len(sess.rooms))
	for roomID := range sess.rooms {
		rooms = append(rooms, roomID)
	}
	return rooms
}

// AddSubscription records the (connection, room) pair. The returned flag
// is false when the pair already existed, which lets the coordinator skip
// a duplicate presence event on a re-join.
func (r *Registry) AddSubscription(connID domain.ConnectionID, roomID domain.RoomID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[connID]
	if !ok {
		return false, errors.ErrUnknownConnection
	}
	if _, ok := sess.rooms[roomID]; ok {
		return false, nil
	}
	sess.rooms[roomID] = struct{}{}
	return true, nil
}

// RemoveSubscription reports whether the pair existed. Removing an absent
// pair is a no-op, not an error.
func (r *Registry) RemoveSubscription(connID domain.ConnectionID, roomID domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[connID]
	if !ok {
		return false
	}
	if _, ok := sess.rooms[roomID]; !ok {
		return false
	}
	delete(sess.rooms, roomID)
	return true
}

// Sink resolves a connection's delivery endpoint. The broadcaster calls
// this at delivery time so a connection deregistered mid-broadcast simply
// resolves to nothing.
func (r *Registry) Sink(connID domain.ConnectionID) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[connID]
	if !ok {
		return nil, false
	}
	return sess.sink, true
}

// Len reports the number of live connections, for observability.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
