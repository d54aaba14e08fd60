package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
)

// messageIndexer receives every persisted message. Indexing is best-effort
// and never fails the send.
type messageIndexer interface {
	Index(msg domain.Message) error
}

// Coordinator is the per-connection state machine behind every client
// action. It checks authorization against the room store on each call
// (never cached on the subscription), sequences persistence strictly
// before broadcast, and keeps registry and broadcaster state consistent
// under concurrent joins, sends, and disconnects.
//
// Coordinator holds no lock of its own: registry and broadcaster guard
// their internals, and neither lock is ever held across a store call.
type Coordinator struct {
	log         *slog.Logger
	registry    contract.IRegistry
	broadcaster contract.IBroadcaster
	rooms       repositories.IRoomRepository
	messages    repositories.IMessageRepository
	moderator   *moderation.Moderator
	indexer     messageIndexer
	stats       *observability.Stats
	maxContent  int
}

func NewCoordinator(log *slog.Logger, registry contract.IRegistry,
	broadcaster contract.IBroadcaster, rooms repositories.IRoomRepository,
	messages repositories.IMessageRepository, moderator *moderation.Moderator,
	indexer messageIndexer, stats *observability.Stats, maxContent int) *Coordinator {
	return &Coordinator{
		log:         log,
		registry:    registry,
		broadcaster: broadcaster,
		rooms:       rooms,
		messages:    messages,
		moderator:   moderator,
		indexer:     indexer,
		stats:       stats,
		maxContent:  maxContent,
	}
}

// Connect records a freshly authenticated connection.
func (c *Coordinator) Connect(connID domain.ConnectionID, userID domain.UserID, sink contract.EventSink) error {
	if err := c.registry.Register(connID, userID, sink); err != nil {
		return err
	}
	c.stats.ConnectionOpened()
	c.log.Info("connection registered", "connection_id", connID, "user_id", userID)
	return nil
}

// Disconnect tears the connection down unconditionally: the registry entry
// goes away, every room it was subscribed to is unsubscribed, and each of
// those rooms is notified. Safe to call at any point, any number of times.
func (c *Coordinator) Disconnect(ctx context.Context, connID domain.ConnectionID) {
	userID, err := c.registry.ResolveUser(connID)
	if err != nil {
		return
	}
	rooms := c.registry.Deregister(connID)
	c.stats.ConnectionClosed()

	at := time.Now().UTC()
	for _, roomID := range rooms {
		c.broadcaster.Unsubscribe(roomID, connID)
		c.stats.Unsubscribed()
		c.broadcaster.Broadcast(ctx, roomID, event.UserLeft{
			Room:         roomID,
			UserID:       userID,
			ConnectionID: connID,
			At:           at,
		}, connID)
	}
	c.log.Info("connection deregistered",
		"connection_id", connID, "user_id", userID, "rooms", len(rooms))
}

// Join subscribes the connection to a room after verifying the room exists
// and the caller is a member. A repeated join is a no-op and emits no
// second presence event.
func (c *Coordinator) Join(ctx context.Context, connID domain.ConnectionID, roomID domain.RoomID) error {
	userID, err := c.registry.ResolveUser(connID)
	if err != nil {
		return err
	}

	exists, err := c.rooms.RoomExists(roomID)
	if err != nil {
		return fmt.Errorf("checking room: %w", err)
	}
	if !exists {
		return errors.ErrRoomNotFound
	}
	member, err := c.rooms.IsMember(userID, roomID)
	if err != nil {
		return fmt.Errorf("checking membership: %w", err)
	}
	if !member {
		return errors.ErrNotAMember
	}

	added, err := c.registry.AddSubscription(connID, roomID)
	if err != nil {
		return err
	}
	if !added {
		return nil
	}
	c.broadcaster.Subscribe(roomID, connID)

	// A disconnect racing this join must not leave a dangling fan-out
	// entry: if the registry entry is gone, undo the subscribe.
	if _, err := c.registry.ResolveUser(connID); err != nil {
		c.broadcaster.Unsubscribe(roomID, connID)
		return err
	}
	c.stats.Subscribed()

	c.broadcaster.Broadcast(ctx, roomID, event.UserJoined{
		Room:         roomID,
		UserID:       userID,
		ConnectionID: connID,
		At:           time.Now().UTC(),
	}, connID)
	return nil
}

// Leave is always allowed, membership or not, and idempotent: leaving a
// room the connection is not subscribed to does nothing and emits no
// duplicate UserLeft.
func (c *Coordinator) Leave(ctx context.Context, connID domain.ConnectionID, roomID domain.RoomID) error {
	userID, err := c.registry.ResolveUser(connID)
	if err != nil {
		return err
	}
	if !c.registry.RemoveSubscription(connID, roomID) {
		return nil
	}
	c.broadcaster.Unsubscribe(roomID, connID)
	c.stats.Unsubscribed()

	c.broadcaster.Broadcast(ctx, roomID, event.UserLeft{
		Room:         roomID,
		UserID:       userID,
		ConnectionID: connID,
		At:           time.Now().UTC(),
	}, connID)
	return nil
}

// Send validates, re-checks membership against the store (revocation after
// join takes effect here), persists, and only then broadcasts the
// persisted record to the whole room, sender included. A persistence
// failure aborts the action with no partial effect.
func (c *Coordinator) Send(ctx context.Context, connID domain.ConnectionID, roomID domain.RoomID, content string) (domain.Message, error) {
	userID, err := c.registry.ResolveUser(connID)
	if err != nil {
		return domain.Message{}, err
	}

	if content == "" || utf8.RuneCountInString(content) > c.maxContent {
		return domain.Message{}, errors.ErrInvalidContent
	}

	member, err := c.rooms.IsMember(userID, roomID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("checking membership: %w", err)
	}
	if !member {
		return domain.Message{}, errors.ErrNotAMember
	}

	if c.moderator != nil {
		sanitized, report := c.moderator.Sanitize(content)
		if len(report.Words) > 0 {
			c.log.Warn("message censored",
				"user_id", userID,
				"room_id", roomID,
				"words", len(report.Words),
				"lang", report.Lang)
		}
		content = sanitized
	}

	message, err := c.messages.Append(roomID, userID, content)
	if err != nil {
		return domain.Message{}, fmt.Errorf("persisting message: %w", err)
	}
	c.stats.MessagePersisted()

	if c.indexer != nil {
		if err := c.indexer.Index(message); err != nil {
			c.log.Warn("message indexing failed", "message_id", message.ID, "error", err)
		}
	}

	// Sender is not excluded: its own echo is the persistence
	// confirmation and carries the server-assigned id and timestamp.
	c.broadcaster.Broadcast(ctx, roomID, event.MessageReceived{Message: message}, "")
	c.stats.Broadcasted()
	return message, nil
}

// Typing relays the indicator to everyone else in the room. It mirrors the
// Send membership check and persists nothing.
func (c *Coordinator) Typing(ctx context.Context, connID domain.ConnectionID, roomID domain.RoomID, isTyping bool) error {
	userID, err := c.registry.ResolveUser(connID)
	if err != nil {
		return err
	}
	member, err := c.rooms.IsMember(userID, roomID)
	if err != nil {
		return fmt.Errorf("checking membership: %w", err)
	}
	if !member {
		return errors.ErrNotAMember
	}

	c.broadcaster.Broadcast(ctx, roomID, event.UserTyping{
		Room:     roomID,
		UserID:   userID,
		IsTyping: isTyping,
		At:       time.Now().UTC(),
	}, connID)
	return nil
}
