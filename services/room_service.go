package services

import (
	"context"
	"fmt"

	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
)

type IRoomService interface {
	CreateRoom(name, description string, creator domain.UserID) (RoomSummary, error)
	GetRoom(id domain.RoomID) (RoomDetail, error)
	ListRooms() ([]RoomSummary, error)
	DeleteRoom(id domain.RoomID, caller domain.UserID) error
	JoinRoom(user domain.UserID, room domain.RoomID) error
	LeaveRoom(user domain.UserID, room domain.RoomID) error
	UserRooms(user domain.UserID) ([]RoomSummary, error)
}

// RoomSummary is the list-view shape of a room.
type RoomSummary struct {
	Room        domain.Room `json:"room"`
	MemberCount int         `json:"member_count"`
}

// RoomDetail adds the member list with resolved display names.
type RoomDetail struct {
	Room    domain.Room         `json:"room"`
	Members []domain.RoomMember `json:"members"`
}

// roomIndexer is the slice of the search index DeleteRoom needs to drop
// a deleted room's documents.
type roomIndexer interface {
	DeleteRoom(ctx context.Context, room domain.RoomID) error
}

// RoomService owns room metadata and durable membership. The live layer
// consults the same room repository for its per-action authorization
// checks, so a LeaveRoom here takes effect on the very next Send.
type RoomService struct {
	rooms   repositories.IRoomRepository
	users   repositories.IUserRepository
	indexer roomIndexer
}

func NewRoomService(rooms repositories.IRoomRepository, users repositories.IUserRepository, indexer roomIndexer) *RoomService {
	return &RoomService{rooms: rooms, users: users, indexer: indexer}
}

// CreateRoom persists the room and automatically adds the creator as its
// first member.
func (s *RoomService) CreateRoom(name, description string, creator domain.UserID) (RoomSummary, error) {
	room, err := s.rooms.CreateRoom(name, description, creator)
	if err != nil {
		return RoomSummary{}, fmt.Errorf("creating room: %w", err)
	}
	if err := s.rooms.AddMember(creator, room.ID); err != nil {
		return RoomSummary{}, fmt.Errorf("adding creator to room: %w", err)
	}
	return RoomSummary{Room: room, MemberCount: 1}, nil
}

func (s *RoomService) GetRoom(id domain.RoomID) (RoomDetail, error) {
	room, err := s.rooms.GetRoom(id)
	if err != nil {
		return RoomDetail{}, err
	}
	members, err := s.rooms.Members(id)
	if err != nil {
		return RoomDetail{}, err
	}
	for i := range members {
		if user, err := s.users.GetUserByID(members[i].UserID); err == nil {
			members[i].Username = user.Username
		}
	}
	return RoomDetail{Room: room, Members: members}, nil
}

func (s *RoomService) ListRooms() ([]RoomSummary, error) {
	rooms, err := s.rooms.ListRooms()
	if err != nil {
		return nil, err
	}
	return s.summaries(rooms)
}

// DeleteRoom is restricted to the room's creator. The store delete
// cascades over memberships and messages; the search index is cleaned up
// best-effort afterwards, a stale hit is unreachable anyway behind the
// membership check.
func (s *RoomService) DeleteRoom(id domain.RoomID, caller domain.UserID) error {
	room, err := s.rooms.GetRoom(id)
	if err != nil {
		return err
	}
	if room.CreatedBy != caller {
		return errors.ErrNotRoomCreator
	}
	if err := s.rooms.DeleteRoom(id); err != nil {
		return err
	}
	if s.indexer != nil {
		_ = s.indexer.DeleteRoom(context.Background(), id)
	}
	return nil
}

func (s *RoomService) JoinRoom(user domain.UserID, room domain.RoomID) error {
	exists, err := s.rooms.RoomExists(room)
	if err != nil {
		return err
	}
	if !exists {
		return errors.ErrRoomNotFound
	}

	member, err := s.rooms.IsMember(user, room)
	if err != nil {
		return err
	}
	if member {
		return errors.ErrAlreadyMember
	}
	return s.rooms.AddMember(user, room)
}

func (s *RoomService) LeaveRoom(user domain.UserID, room domain.RoomID) error {
	member, err := s.rooms.IsMember(user, room)
	if err != nil {
		return err
	}
	if !member {
		return errors.ErrNotAMember
	}
	return s.rooms.RemoveMember(user, room)
}

func (s *RoomService) UserRooms(user domain.UserID) ([]RoomSummary, error) {
	rooms, err := s.rooms.UserRooms(user)
	if err != nil {
		return nil, err
	}
	return s.summaries(rooms)
}

func (s *RoomService) summaries(rooms []domain.Room) ([]RoomSummary, error) {
	summaries := make([]RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		count, err := s.rooms.MemberCount(room.ID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, RoomSummary{Room: room, MemberCount: count})
	}
	return summaries, nil
}
