package projection

import (
	"context"
	"testing"
	"time"

	"chat-relay/domain"
	"chat-relay/domain/event"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func message(room domain.RoomID, author domain.UserID, content string) domain.Message {
	return domain.Message{
		ID:      uuid.New(),
		Room:    room,
		Author:  author,
		Content: content,
		SentAt:  time.Now().UTC(),
	}
}

func TestTimeline_Consume(t *testing.T) {
	ctx := context.Background()

	t.Run("should keep messages in arrival order", func(t *testing.T) {
		req := require.New(t)
		timeline := NewTimeline(0)

		first := message("general", "alice", "hello")
		second := message("general", "bob", "hi")

		req.NoError(timeline.Consume(ctx, event.MessageReceived{Message: first}))
		req.NoError(timeline.Consume(ctx, event.MessageReceived{Message: second}))

		messages := timeline.Messages()
		req.Len(messages, 2)
		req.Equal(first.ID, messages[0].ID)
		req.Equal(second.ID, messages[1].ID)
	})

	t.Run("should deduplicate redelivered messages", func(t *testing.T) {
		req := require.New(t)
		timeline := NewTimeline(0)

		msg := message("general", "alice", "once")
		req.NoError(timeline.Consume(ctx, event.MessageReceived{Message: msg}))
		req.NoError(timeline.Consume(ctx, event.MessageReceived{Message: msg}))

		req.Len(timeline.Messages(), 1)
	})

	t.Run("should evict oldest message beyond capacity", func(t *testing.T) {
		req := require.New(t)
		timeline := NewTimeline(2)

		oldest := message("general", "alice", "1")
		req.NoError(timeline.Consume(ctx, event.MessageReceived{Message: oldest}))
		req.NoError(timeline.Consume(ctx, event.MessageReceived{Message: message("general", "alice", "2")}))
		req.NoError(timeline.Consume(ctx, event.MessageReceived{Message: message("general", "alice", "3")}))

		messages := timeline.Messages()
		req.Len(messages, 2)
		req.Equal("2", messages[0].Content)
		req.Equal("3", messages[1].Content)

		// The evicted id is forgotten, so it could be consumed again.
		req.NoError(timeline.Consume(ctx, event.MessageReceived{Message: oldest}))
		req.Len(timeline.Messages(), 2)
	})

	t.Run("should track presence from join and leave events", func(t *testing.T) {
		req := require.New(t)
		timeline := NewTimeline(0)
		now := time.Now().UTC()

		req.NoError(timeline.Consume(ctx, event.UserJoined{Room: "general", UserID: "alice", At: now}))
		req.NoError(timeline.Consume(ctx, event.UserJoined{Room: "general", UserID: "bob", At: now}))
		req.NoError(timeline.Consume(ctx, event.UserLeft{Room: "general", UserID: "alice", At: now}))

		present := timeline.Present()
		req.Len(present, 1)
		req.Equal(domain.UserID("bob"), present[0])
	})

	t.Run("should keep a user present until the last room is left", func(t *testing.T) {
		req := require.New(t)
		timeline := NewTimeline(0)
		now := time.Now().UTC()

		req.NoError(timeline.Consume(ctx, event.UserJoined{Room: "general", UserID: "alice", At: now}))
		req.NoError(timeline.Consume(ctx, event.UserJoined{Room: "random", UserID: "alice", At: now}))
		req.NoError(timeline.Consume(ctx, event.UserLeft{Room: "general", UserID: "alice", At: now}))

		req.Equal([]domain.UserID{"alice"}, timeline.Present())

		req.NoError(timeline.Consume(ctx, event.UserLeft{Room: "random", UserID: "alice", At: now}))
		req.Empty(timeline.Present())
	})

	t.Run("should ignore typing events", func(t *testing.T) {
		req := require.New(t)
		timeline := NewTimeline(0)

		req.NoError(timeline.Consume(ctx, event.UserTyping{Room: "general", UserID: "alice", IsTyping: true, At: time.Now().UTC()}))

		req.Empty(timeline.Messages())
		req.Empty(timeline.Present())
	})
}
