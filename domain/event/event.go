// Package event defines the domain events delivered to room subscribers.
package event

import (
	"time"

	"chat-relay/domain"
)

// DomainEvent is anything the broadcaster can fan out to a room.
type DomainEvent interface {
	RoomID() domain.RoomID
}

// UserJoined is emitted after a connection subscribes to a room. The
// joining connection itself never receives it.
type UserJoined struct {
	Room         domain.RoomID
	UserID       domain.UserID
	ConnectionID domain.ConnectionID
	At           time.Time
}

func (e UserJoined) RoomID() domain.RoomID { return e.Room }

// UserLeft mirrors UserJoined for explicit leaves and disconnects.
type UserLeft struct {
	Room         domain.RoomID
	UserID       domain.UserID
	ConnectionID domain.ConnectionID
	At           time.Time
}

func (e UserLeft) RoomID() domain.RoomID { return e.Room }

// MessageReceived carries a persisted message back to every subscriber of
// its room, sender included. The embedded message is the server-assigned
// record, so delivery doubles as the sender's persistence confirmation.
type MessageReceived struct {
	Message domain.Message
}

func (e MessageReceived) RoomID() domain.RoomID { return e.Message.Room }

// UserTyping is ephemeral and never persisted.
type UserTyping struct {
	Room     domain.RoomID
	UserID   domain.UserID
	IsTyping bool
	At       time.Time
}

func (e UserTyping) RoomID() domain.RoomID { return e.Room }
