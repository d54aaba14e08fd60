// Package ws is the live transport: one websocket per authenticated user
// session, JSON frames in both directions. It translates frames into
// coordinator calls and domain events back into frames, and holds no chat
// state of its own.
package ws

import (
	"time"

	"chat-relay/domain/event"
	"chat-relay/errors"
)

// Client-initiated actions.
const (
	ActionJoin   = "join"
	ActionLeave  = "leave"
	ActionSend   = "send"
	ActionTyping = "typing"
)

// Server frame types.
const (
	TypeUserJoined     = "user_joined"
	TypeUserLeft       = "user_left"
	TypeReceiveMessage = "receive_message"
	TypeUserTyping     = "user_typing"
	TypeError          = "error"
)

// ClientFrame is one inbound request from the browser.
type ClientFrame struct {
	Action   string `json:"action"`
	RoomID   string `json:"room_id"`
	Content  string `json:"content,omitempty"`
	IsTyping bool   `json:"is_typing,omitempty"`
}

// ServerFrame is one outbound notification. Only the fields relevant to
// Type are set.
type ServerFrame struct {
	Type      string    `json:"type"`
	RoomID    string    `json:"room_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Content   string    `json:"content,omitempty"`
	IsTyping  *bool     `json:"is_typing,omitempty"`
	At        time.Time `json:"at,omitzero"`

	// Error frames only.
	Action string `json:"action,omitempty"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// FrameFromEvent maps a domain event to its wire shape.
func FrameFromEvent(e event.DomainEvent) ServerFrame {
	switch ev := e.(type) {
	case event.UserJoined:
		return ServerFrame{
			Type:   TypeUserJoined,
			RoomID: string(ev.Room),
			UserID: string(ev.UserID),
			At:     ev.At,
		}
	case event.UserLeft:
		return ServerFrame{
			Type:   TypeUserLeft,
			RoomID: string(ev.Room),
			UserID: string(ev.UserID),
			At:     ev.At,
		}
	case event.MessageReceived:
		return ServerFrame{
			Type:      TypeReceiveMessage,
			RoomID:    string(ev.Message.Room),
			UserID:    string(ev.Message.Author),
			MessageID: ev.Message.ID.String(),
			Content:   ev.Message.Content,
			At:        ev.Message.SentAt,
		}
	case event.UserTyping:
		isTyping := ev.IsTyping
		return ServerFrame{
			Type:     TypeUserTyping,
			RoomID:   string(ev.Room),
			UserID:   string(ev.UserID),
			IsTyping: &isTyping,
			At:       ev.At,
		}
	default:
		return ServerFrame{Type: TypeError, Code: "internal_error", Reason: "unmapped event"}
	}
}

// ErrorFrame builds the per-action rejection sent only to the initiating
// connection.
func ErrorFrame(action string, err error) ServerFrame {
	return ServerFrame{
		Type:   TypeError,
		Action: action,
		Code:   errors.Code(err),
		Reason: err.Error(),
	}
}
