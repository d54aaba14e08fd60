// Package domain contains core concepts of the chat system.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// UserID identifies an authenticated principal. Many connections may
// belong to the same user (multiple tabs or devices).
type UserID string

// RoomID identifies a room. Membership and room metadata are owned by the
// room repository, never cached in the live layer.
type RoomID string

// ConnectionID identifies one live transport endpoint. It is created on
// connect and destroyed on disconnect; a reconnect is a brand-new ID.
type ConnectionID string

func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}

// Message represents an immutable chat event. ID and SentAt are assigned
// by the message repository when the message is persisted.
type Message struct {
	ID      uuid.UUID `json:"id"`
	Room    RoomID    `json:"room_id"`
	Author  UserID    `json:"author"`
	Content string    `json:"content"`
	SentAt  time.Time `json:"sent_at"`
}

// Room metadata. The member list lives in its own join rows.
type Room struct {
	ID          RoomID    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   UserID    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// RoomMember is one row of the user/room join table.
type RoomMember struct {
	UserID   UserID    `json:"user_id"`
	Username string    `json:"username,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
}

type User struct {
	ID           UserID    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Roles        []string  `json:"roles,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
