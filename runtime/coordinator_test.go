package runtime

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/observability"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type coordinatorFixture struct {
	coordinator *Coordinator
	registry    *Registry
	broadcaster *Broadcaster
	rooms       *mocks.MockIRoomRepository
	messages    *mocks.MockIMessageRepository
	stats       *observability.Stats
}

func newCoordinatorFixture(t *testing.T) coordinatorFixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	registry := NewRegistry()
	stats := observability.NewStats()
	broadcaster := NewBroadcaster(slog.Default(), registry, stats)
	rooms := mocks.NewMockIRoomRepository(ctrl)
	messages := mocks.NewMockIMessageRepository(ctrl)

	coordinator := NewCoordinator(slog.Default(), registry, broadcaster,
		rooms, messages, nil, nil, stats, 2000)

	return coordinatorFixture{
		coordinator: coordinator,
		registry:    registry,
		broadcaster: broadcaster,
		rooms:       rooms,
		messages:    messages,
		stats:       stats,
	}
}

func (f coordinatorFixture) connect(t *testing.T, userID domain.UserID) (domain.ConnectionID, *captureSink) {
	t.Helper()
	sink := &captureSink{}
	connID := domain.NewConnectionID()
	require.NoError(t, f.coordinator.Connect(connID, userID, sink))
	return connID, sink
}

func TestCoordinator_Join(t *testing.T) {
	ctx := context.Background()

	t.Run("should subscribe a member and notify the room", func(t *testing.T) {
		req := require.New(t)
		f := newCoordinatorFixture(t)
		aliceConn, aliceSink := f.connect(t, "alice")
		bobConn, bobSink := f.connect(t, "bob")

		f.rooms.EXPECT().RoomExists(domain.RoomID("general")).Return(true, nil).Times(2)
		f.rooms.EXPECT().IsMember(domain.UserID("alice"), domain.RoomID("general")).Return(true, nil)
		f.rooms.EXPECT().IsMember(domain.UserID("bob"), domain.RoomID("general")).Return(true, nil)

		req.NoError(f.coordinator.Join(ctx, aliceConn, "general"))
		req.NoError(f.coordinator.Join(ctx, bobConn, "general"))

		// Alice, already in the room, sees bob arrive. Bob sees nothing:
		// the joining connection never receives its own presence event.
		aliceEvents := aliceSink.captured()
		req.Len(aliceEvents, 1)
		joined, ok := aliceEvents[0].(event.UserJoined)
		req.True(ok)
		req.Equal(domain.UserID("bob"), joined.UserID)
		req.Empty(bobSink.captured())
	})

	t.Run("should reject a join to a missing room", func(t *testing.T) {
		req := require.New(t)
		f := newCoordinatorFixture(t)
		connID, _ := f.connect(t, "alice")

		f.rooms.EXPECT().RoomExists(domain.RoomID("ghost")).Return(false, nil)

		err := f.coordinator.Join(ctx, connID, "ghost")

		req.ErrorIs(err, errors.ErrRoomNotFound)
		req.Empty(f.registry.Subscriptions(connID))
	})

	t.Run("should reject a join by a non-member", func(t *testing.T) {
		req := require.New(t)
		f := newCoordinatorFixture(t)
		connID, _ := f.connect(t, "alice")

		f.rooms.EXPECT().RoomExists(domain.RoomID("general")).Return(true, nil)
		f.rooms.EXPECT().IsMember(domain.UserID("alice"), domain.RoomID("general")).Return(false, nil)

		err := f.coordinator.Join(ctx, connID, "general")

		req.ErrorIs(err, errors.ErrNotAMember)
		req.Empty(f.broadcaster.Subscribers("general"))
	})

	t.Run("should treat a repeated join as a no-op", func(t *testing.T) {
		req := require.New(t)
		f := newCoordinatorFixture(t)
		aliceConn, _ := f.connect(t, "alice")
		_, peerSink := f.connectSubscribed(t, ctx, "bob", "general")

		f.rooms.EXPECT().RoomExists(domain.RoomID("general")).Return(true, nil).Times(2)
		f.rooms.EXPECT().IsMember(domain.UserID("alice"), domain.RoomID("general")).Return(true, nil).Times(2)

		req.NoError(f.coordinator.Join(ctx, aliceConn, "general"))
		req.NoError(f.coordinator.Join(ctx, aliceConn, "general"))

		// Exactly one presence event despite two joins.
		req.Len(peerSink.captured(), 1)
	})

	t.Run("should reject an unknown connection", func(t *testing.T) {
		req := require.New(t)
		f := newCoordinatorFixture(t)

		err := f.coordinator.Join(ctx, domain.NewConnectionID(), "general")

		req.ErrorIs(err, errors.ErrUnknownConnection)
	})
}

// connectSubscribed wires a ready room member for fixtures that need a
// peer observing the room.
func (f coordinatorFixture) connectSubscribed(t *testing.T, ctx context.Context, userID domain.UserID, roomID domain.RoomID) (domain.ConnectionID, *captureSink) {
	t.Helper()
	connID, sink := f.connect(t, userID)
	f.rooms.EXPECT().RoomExists(roomID).Return(true, nil)
	f.rooms.EXPECT().IsMember(userID, roomID).Return(true, nil)
	require.NoError(t, f.coordinator.Join(ctx, connID, roomID))
	return connID, sink
}

func TestCoordinator_Leave(t *testing.T) {
	ctx := context.Background()

	t.Run("should unsubscribe and notify the remaining subscribers", func(t *testing.T) {
		req := require.New(t)
		f := newCoordinatorFixture(t)
		aliceConn, aliceSink := f.connectSubscribed(t, ctx, "alice", "general")
		_, bobSink := f.connectSubscribed(t, ctx, "bob", "general")

		req.NoError(f.coordinator.Leave(ctx, aliceConn, "general"))

		req.Empty(f.registry.Subscriptions(aliceConn))
		bobEvents := bobSink.captured()
		req.Len(bobEvents, 2) // alice's join, then her leave
		left, ok := bobEvents[1].(event.UserLeft)
		req.True(ok)
		req.Equal(domain.UserID("alice"), left.UserID)
		// The leaver only ever saw bob's join.
		req.Len(aliceSink.captured(), 1)
	})

	t.Run("should be idempotent and emit no duplicate event", func(t *testing.T) {
		req := require.New(t)
		f := newCoordinatorFixture(t)
		aliceConn, _ := f.connectSubscribed(t, ctx, "alice", "general")
		_, bobSink := f.connectSubscribed(t, ctx, "bob", "general")

		req.NoError(f.coordinator.Leave(ctx, aliceConn, "general"))
		req.NoError(f.coordinator.Leave(ctx, aliceConn, "general"))

		leaves := 0
		for _, e := range bobSink.captured() {
			if _, ok := e.(event.UserLeft); ok {
				leaves++
			}
		}
		req.Equal(1, leaves)
	})

	t.Run("should allow leaving a room never joined", func(t *testing.T) {
		req := require.New(t)
		f := newCoordinatorFixture(t)
		connID, _ := f.connect(t, "alice")

		req.NoError(f.coordinator.Leave(ctx, connID, "general"))
	})
}

func TestCoordinator_Send(t *testing.T) {
	ctx := context.Background()

	t.Run("should persist before broadcasting and include the sender", func(t *testing.T) {
		req := require.New(t)
		f := newCoordinatorFixture(t)
		aliceConn, aliceSink := f.connectSubscribed(t, ctx, "alice", "general")
		_, bobSink := f.connectSubscribed(t, ctx, "bob", "general")

		persisted := domain.Message{
			ID:      uuid.New(),
			Room:    "general",
			Author:  "alice",
			Content: "hello",
			SentAt:  time.Now().UTC(),
		}
		f.rooms.EXPECT().IsMember(domain.UserID("alice"), domain.RoomID("general")).Return(true, nil)
		f.messages.EXPECT().Append(domain.RoomID("general"), domain.UserID("alice"), "hello").
			Return(persisted, nil)

		message, err := f.coordinator.Send(ctx, aliceConn, "general", "hello")

		req.NoError(err)
		req.Equal(persisted.ID, message.ID)

		// Both subscribers, sender included, receive the persisted record.
		for _, sink := range []*captureSink{aliceSink, bobSink} {
			events := sink.captured()
			received, ok := events[len(events)-1].(event.MessageReceived)
			req.True(ok)
			req.Equal(persisted.ID, received.Message.ID)
		}
	})

	t.Run("should not broadcast when persistence fails", func(t *testing.T) {
		req := require.New(t)
		f := newCoordinatorFixture(t)
		aliceConn, _ := f.connectSubscribed(t, ctx, "alice", "general")
		_, bobSink := f.connectSubscribed(t, ctx, "bob", "general")

		f.rooms.EXPECT().IsMember(domain.UserID("alice"), domain.RoomID("general")).Return(true, nil)
		f.messages.EXPECT().Append(domain.RoomID("general"), domain.UserID("alice"), "hello").
			Return(domain.Message{}, errors.ErrRoomNotFound)

		_, err := f.coordinator.Send(ctx, aliceConn, "general", "hello")

		req.Error(err)
		for _, e := range bobSink.captured() {
			_, isMessage := e.(event.MessageReceived)
			req.False(isMessage)
		}
	})

	t.Run("should reject empty and oversized content without touching the store", func(t *testing.T) {
		req := require.New(t)
		f := newCoordinatorFixture(t)
		connID, _ := f.connect(t, "alice")

		_, err := f.coordinator.Send(ctx, connID, "general", "")
		req.ErrorIs(err, errors.ErrInvalidContent)

		oversized := make([]rune, 2001)
		for i := range oversized {
			oversized[i] = 'a'
		}
		_, err = f.coordinator.Send(ctx, connID, "general", string(oversized))
		req.ErrorIs(err, errors.ErrInvalidContent)
	})

	t.Run("should enforce revoked membership on the next send", func(t *testing.T) {
		req := require.New(t)
		f := newCoordinatorFixture(t)
		aliceConn, _ := f.connectSubscribed(t, ctx, "alice", "general")

		// Membership was revoked after the join; the per-send re-check
		// catches it even though the subscription is still live.
		f.rooms.EXPECT().IsMember(domain.UserID("alice"), domain.RoomID("general")).Return(false, nil)

		_, err := f.coordinator.Send(ctx, aliceConn, "general", "hello")

		req.ErrorIs(err, errors.ErrNotAMember)
	})
}

func TestCoordinator_Typing(t *testing.T) {
	ctx := context.Background()

	t.Run("should relay to everyone but the typist", func(t *testing.T) {
		req := require.New(t)
		f := newCoordinatorFixture(t)
		aliceConn, aliceSink := f.connectSubscribed(t, ctx, "alice", "general")
		_, bobSink := f.connectSubscribed(t, ctx, "bob", "general")

		f.rooms.EXPECT().IsMember(domain.UserID("alice"), domain.RoomID("general")).Return(true, nil)

		req.NoError(f.coordinator.Typing(ctx, aliceConn, "general", true))

		bobEvents := bobSink.captured()
		typing, ok := bobEvents[len(bobEvents)-1].(event.UserTyping)
		req.True(ok)
		req.True(typing.IsTyping)
		req.Equal(domain.UserID("alice"), typing.UserID)

		for _, e := range aliceSink.captured() {
			_, isTyping := e.(event.UserTyping)
			req.False(isTyping)
		}
	})

	t.Run("should reject a non-member", func(t *testing.T) {
		req := require.New(t)
		f := newCoordinatorFixture(t)
		connID, _ := f.connect(t, "alice")

		f.rooms.EXPECT().IsMember(domain.UserID("alice"), domain.RoomID("general")).Return(false, nil)

		err := f.coordinator.Typing(ctx, connID, "general", true)

		req.ErrorIs(err, errors.ErrNotAMember)
	})
}

func TestCoordinator_Disconnect(t *testing.T) {
	ctx := context.Background()

	t.Run("should clean up every room and notify each once", func(t *testing.T) {
		req := require.New(t)
		f := newCoordinatorFixture(t)
		aliceConn, _ := f.connectSubscribed(t, ctx, "alice", "general")
		f.rooms.EXPECT().RoomExists(domain.RoomID("random")).Return(true, nil)
		f.rooms.EXPECT().IsMember(domain.UserID("alice"), domain.RoomID("random")).Return(true, nil)
		req.NoError(f.coordinator.Join(ctx, aliceConn, "random"))

		_, bobSink := f.connectSubscribed(t, ctx, "bob", "general")

		f.coordinator.Disconnect(ctx, aliceConn)

		req.Empty(f.broadcaster.Subscribers("general"))
		req.Empty(f.broadcaster.Subscribers("random"))
		_, err := f.registry.ResolveUser(aliceConn)
		req.ErrorIs(err, errors.ErrUnknownConnection)

		leaves := 0
		for _, e := range bobSink.captured() {
			if left, ok := e.(event.UserLeft); ok && left.UserID == "alice" {
				leaves++
			}
		}
		req.Equal(1, leaves)
	})

	t.Run("should be safe on an unknown connection", func(t *testing.T) {
		f := newCoordinatorFixture(t)
		f.coordinator.Disconnect(ctx, domain.NewConnectionID())
	})

	t.Run("should release the subscriptions gauge", func(t *testing.T) {
		req := require.New(t)
		f := newCoordinatorFixture(t)
		aliceConn, _ := f.connectSubscribed(t, ctx, "alice", "general")
		f.rooms.EXPECT().RoomExists(domain.RoomID("random")).Return(true, nil)
		f.rooms.EXPECT().IsMember(domain.UserID("alice"), domain.RoomID("random")).Return(true, nil)
		req.NoError(f.coordinator.Join(ctx, aliceConn, "random"))

		req.Equal(int64(2), f.stats.Snapshot().Subscriptions)

		f.coordinator.Disconnect(ctx, aliceConn)

		req.Zero(f.stats.Snapshot().Subscriptions)
		req.Zero(f.stats.Snapshot().Connections)
	})
}
