package services

import (
	"context"
	"testing"
	"time"

	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// recordingIndexer notes which rooms had their documents dropped.
type recordingIndexer struct {
	deleted []domain.RoomID
}

func (r *recordingIndexer) DeleteRoom(_ context.Context, room domain.RoomID) error {
	r.deleted = append(r.deleted, room)
	return nil
}

func newRoomServiceFixture(t *testing.T) (*RoomService, *mocks.MockIRoomRepository, *mocks.MockIUserRepository, *recordingIndexer) {
	t.Helper()
	ctrl := gomock.NewController(t)
	rooms := mocks.NewMockIRoomRepository(ctrl)
	users := mocks.NewMockIUserRepository(ctrl)
	indexer := &recordingIndexer{}
	return NewRoomService(rooms, users, indexer), rooms, users, indexer
}

func TestRoomService_CreateRoom(t *testing.T) {
	t.Run("should auto-join the creator", func(t *testing.T) {
		req := require.New(t)
		svc, rooms, _, _ := newRoomServiceFixture(t)

		created := domain.Room{ID: "room-1", Name: "general", CreatedBy: "alice"}
		rooms.EXPECT().CreateRoom("general", "the default room", domain.UserID("alice")).Return(created, nil)
		rooms.EXPECT().AddMember(domain.UserID("alice"), domain.RoomID("room-1")).Return(nil)

		summary, err := svc.CreateRoom("general", "the default room", "alice")

		req.NoError(err)
		req.Equal(created, summary.Room)
		req.Equal(1, summary.MemberCount)
	})
}

func TestRoomService_GetRoom(t *testing.T) {
	t.Run("should resolve member display names", func(t *testing.T) {
		req := require.New(t)
		svc, rooms, users, _ := newRoomServiceFixture(t)
		now := time.Now().UTC()

		rooms.EXPECT().GetRoom(domain.RoomID("room-1")).
			Return(domain.Room{ID: "room-1", Name: "general"}, nil)
		rooms.EXPECT().Members(domain.RoomID("room-1")).Return([]domain.RoomMember{
			{UserID: "u1", JoinedAt: now},
			{UserID: "u2", JoinedAt: now},
		}, nil)
		users.EXPECT().GetUserByID(domain.UserID("u1")).
			Return(domain.User{ID: "u1", Username: "alice"}, nil)
		users.EXPECT().GetUserByID(domain.UserID("u2")).
			Return(domain.User{}, errors.ErrInvalidCredentials)

		detail, err := svc.GetRoom("room-1")

		req.NoError(err)
		req.Len(detail.Members, 2)
		req.Equal("alice", detail.Members[0].Username)
		// Unresolvable users keep an empty display name rather than
		// failing the whole lookup.
		req.Empty(detail.Members[1].Username)
	})

	t.Run("should propagate a missing room", func(t *testing.T) {
		req := require.New(t)
		svc, rooms, _, _ := newRoomServiceFixture(t)

		rooms.EXPECT().GetRoom(domain.RoomID("ghost")).
			Return(domain.Room{}, errors.ErrRoomNotFound)

		_, err := svc.GetRoom("ghost")

		req.ErrorIs(err, errors.ErrRoomNotFound)
	})
}

func TestRoomService_DeleteRoom(t *testing.T) {
	t.Run("should allow the creator and drop the room's search documents", func(t *testing.T) {
		req := require.New(t)
		svc, rooms, _, indexer := newRoomServiceFixture(t)

		rooms.EXPECT().GetRoom(domain.RoomID("room-1")).
			Return(domain.Room{ID: "room-1", CreatedBy: "alice"}, nil)
		rooms.EXPECT().DeleteRoom(domain.RoomID("room-1")).Return(nil)

		req.NoError(svc.DeleteRoom("room-1", "alice"))
		req.Equal([]domain.RoomID{"room-1"}, indexer.deleted)
	})

	t.Run("should refuse anyone else", func(t *testing.T) {
		req := require.New(t)
		svc, rooms, _, indexer := newRoomServiceFixture(t)

		rooms.EXPECT().GetRoom(domain.RoomID("room-1")).
			Return(domain.Room{ID: "room-1", CreatedBy: "alice"}, nil)

		err := svc.DeleteRoom("room-1", "bob")

		req.ErrorIs(err, errors.ErrNotRoomCreator)
		req.Empty(indexer.deleted)
	})
}

func TestRoomService_JoinRoom(t *testing.T) {
	t.Run("should add a new member", func(t *testing.T) {
		req := require.New(t)
		svc, rooms, _, _ := newRoomServiceFixture(t)

		rooms.EXPECT().RoomExists(domain.RoomID("room-1")).Return(true, nil)
		rooms.EXPECT().IsMember(domain.UserID("bob"), domain.RoomID("room-1")).Return(false, nil)
		rooms.EXPECT().AddMember(domain.UserID("bob"), domain.RoomID("room-1")).Return(nil)

		req.NoError(svc.JoinRoom("bob", "room-1"))
	})

	t.Run("should reject a missing room", func(t *testing.T) {
		req := require.New(t)
		svc, rooms, _, _ := newRoomServiceFixture(t)

		rooms.EXPECT().RoomExists(domain.RoomID("ghost")).Return(false, nil)

		req.ErrorIs(svc.JoinRoom("bob", "ghost"), errors.ErrRoomNotFound)
	})

	t.Run("should reject a double join", func(t *testing.T) {
		req := require.New(t)
		svc, rooms, _, _ := newRoomServiceFixture(t)

		rooms.EXPECT().RoomExists(domain.RoomID("room-1")).Return(true, nil)
		rooms.EXPECT().IsMember(domain.UserID("bob"), domain.RoomID("room-1")).Return(true, nil)

		req.ErrorIs(svc.JoinRoom("bob", "room-1"), errors.ErrAlreadyMember)
	})
}

func TestRoomService_LeaveRoom(t *testing.T) {
	t.Run("should remove an existing member", func(t *testing.T) {
		req := require.New(t)
		svc, rooms, _, _ := newRoomServiceFixture(t)

		rooms.EXPECT().IsMember(domain.UserID("bob"), domain.RoomID("room-1")).Return(true, nil)
		rooms.EXPECT().RemoveMember(domain.UserID("bob"), domain.RoomID("room-1")).Return(nil)

		req.NoError(svc.LeaveRoom("bob", "room-1"))
	})

	t.Run("should reject a non-member", func(t *testing.T) {
		req := require.New(t)
		svc, rooms, _, _ := newRoomServiceFixture(t)

		rooms.EXPECT().IsMember(domain.UserID("bob"), domain.RoomID("room-1")).Return(false, nil)

		req.ErrorIs(svc.LeaveRoom("bob", "room-1"), errors.ErrNotAMember)
	})
}

func TestRoomService_Listings(t *testing.T) {
	t.Run("should attach member counts", func(t *testing.T) {
		req := require.New(t)
		svc, rooms, _, _ := newRoomServiceFixture(t)

		rooms.EXPECT().ListRooms().Return([]domain.Room{
			{ID: "room-1", Name: "general"},
			{ID: "room-2", Name: "random"},
		}, nil)
		rooms.EXPECT().MemberCount(domain.RoomID("room-1")).Return(3, nil)
		rooms.EXPECT().MemberCount(domain.RoomID("room-2")).Return(0, nil)

		summaries, err := svc.ListRooms()

		req.NoError(err)
		req.Len(summaries, 2)
		req.Equal(3, summaries[0].MemberCount)
		req.Equal(0, summaries[1].MemberCount)
	})

	t.Run("should list only the caller's rooms", func(t *testing.T) {
		req := require.New(t)
		svc, rooms, _, _ := newRoomServiceFixture(t)

		rooms.EXPECT().UserRooms(domain.UserID("bob")).Return([]domain.Room{
			{ID: "room-2", Name: "random"},
		}, nil)
		rooms.EXPECT().MemberCount(domain.RoomID("room-2")).Return(2, nil)

		summaries, err := svc.UserRooms("bob")

		req.NoError(err)
		req.Len(summaries, 1)
		req.Equal(domain.RoomID("room-2"), summaries[0].Room.ID)
	})
}
