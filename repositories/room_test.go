package repositories

import (
	"log/slog"
	"testing"

	"chat-relay/domain"
	"chat-relay/errors"

	"github.com/stretchr/testify/require"
)

func TestRoomRepository_CreateAndGet(t *testing.T) {
	req := require.New(t)
	repo := NewRoomRepository(newTestDB(t))

	created, err := repo.CreateRoom("general", "the default room", "alice")
	req.NoError(err)
	req.NotEmpty(created.ID)

	fetched, err := repo.GetRoom(created.ID)
	req.NoError(err)
	req.Equal(created.ID, fetched.ID)
	req.Equal("general", fetched.Name)
	req.Equal("the default room", fetched.Description)
	req.Equal(domain.UserID("alice"), fetched.CreatedBy)

	exists, err := repo.RoomExists(created.ID)
	req.NoError(err)
	req.True(exists)
}

func TestRoomRepository_GetRoom_NotFound(t *testing.T) {
	req := require.New(t)
	repo := NewRoomRepository(newTestDB(t))

	_, err := repo.GetRoom("no-such-room")
	req.ErrorIs(err, errors.ErrRoomNotFound)

	exists, err := repo.RoomExists("no-such-room")
	req.NoError(err)
	req.False(exists)
}

func TestRoomRepository_Membership(t *testing.T) {
	t.Run("should add, list and remove members", func(t *testing.T) {
		req := require.New(t)
		repo := NewRoomRepository(newTestDB(t))
		room, err := repo.CreateRoom("general", "", "alice")
		req.NoError(err)

		req.NoError(repo.AddMember("alice", room.ID))
		req.NoError(repo.AddMember("bob", room.ID))

		member, err := repo.IsMember("alice", room.ID)
		req.NoError(err)
		req.True(member)

		members, err := repo.Members(room.ID)
		req.NoError(err)
		req.Len(members, 2)

		count, err := repo.MemberCount(room.ID)
		req.NoError(err)
		req.Equal(2, count)

		req.NoError(repo.RemoveMember("bob", room.ID))
		member, err = repo.IsMember("bob", room.ID)
		req.NoError(err)
		req.False(member)
	})

	t.Run("should list a user's rooms through the reverse index", func(t *testing.T) {
		req := require.New(t)
		repo := NewRoomRepository(newTestDB(t))

		general, err := repo.CreateRoom("general", "", "alice")
		req.NoError(err)
		random, err := repo.CreateRoom("random", "", "bob")
		req.NoError(err)
		req.NoError(repo.AddMember("alice", general.ID))
		req.NoError(repo.AddMember("alice", random.ID))
		req.NoError(repo.AddMember("bob", random.ID))

		rooms, err := repo.UserRooms("alice")
		req.NoError(err)
		req.Len(rooms, 2)

		rooms, err = repo.UserRooms("bob")
		req.NoError(err)
		req.Len(rooms, 1)
		req.Equal(random.ID, rooms[0].ID)
	})
}

func TestRoomRepository_DeleteRoom(t *testing.T) {
	t.Run("should remove the room and all membership rows", func(t *testing.T) {
		req := require.New(t)
		repo := NewRoomRepository(newTestDB(t))
		room, err := repo.CreateRoom("doomed", "", "alice")
		req.NoError(err)
		req.NoError(repo.AddMember("alice", room.ID))
		req.NoError(repo.AddMember("bob", room.ID))

		req.NoError(repo.DeleteRoom(room.ID))

		_, err = repo.GetRoom(room.ID)
		req.ErrorIs(err, errors.ErrRoomNotFound)

		member, err := repo.IsMember("alice", room.ID)
		req.NoError(err)
		req.False(member)

		rooms, err := repo.UserRooms("bob")
		req.NoError(err)
		req.Empty(rooms)
	})

	t.Run("should cascade over the room's messages", func(t *testing.T) {
		req := require.New(t)
		db := newTestDB(t)
		repo := NewRoomRepository(db)
		messages := NewMessageRepository(db, slog.Default())

		room, err := repo.CreateRoom("doomed", "", "alice")
		req.NoError(err)
		doomed := appendN(t, messages, room.ID, "one", "two")
		survivor := appendN(t, messages, "other-room", "untouched")[0]

		req.NoError(repo.DeleteRoom(room.ID))

		fetched, _, err := messages.Query(room.ID, 10, nil)
		req.NoError(err)
		req.Empty(fetched)

		// The by-id index rows go with the log.
		_, err = messages.GetByID(doomed[0].ID)
		req.ErrorIs(err, errors.ErrMessageNotFound)
		_, err = messages.GetByID(doomed[1].ID)
		req.ErrorIs(err, errors.ErrMessageNotFound)

		// Other rooms keep their messages.
		kept, err := messages.GetByID(survivor.ID)
		req.NoError(err)
		req.Equal("untouched", kept.Content)
	})

	t.Run("should fail on a missing room", func(t *testing.T) {
		req := require.New(t)
		repo := NewRoomRepository(newTestDB(t))

		req.ErrorIs(repo.DeleteRoom("no-such-room"), errors.ErrRoomNotFound)
	})
}

func TestRoomRepository_ListRooms(t *testing.T) {
	req := require.New(t)
	repo := NewRoomRepository(newTestDB(t))

	rooms, err := repo.ListRooms()
	req.NoError(err)
	req.Empty(rooms)

	_, err = repo.CreateRoom("general", "", "alice")
	req.NoError(err)
	_, err = repo.CreateRoom("random", "", "alice")
	req.NoError(err)

	rooms, err = repo.ListRooms()
	req.NoError(err)
	req.Len(rooms, 2)
}
