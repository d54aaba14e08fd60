package services

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IHistoryService interface {
	Page(room domain.RoomID, caller domain.UserID, limit int, before *string) (HistoryPage, error)
	Message(id uuid.UUID, caller domain.UserID) (domain.Message, error)
}

// HistoryPage is one page of a room's message log, newest first. NextCursor
// is only set when HasMore is true; feeding it back as "before" yields the
// next (older) page.
type HistoryPage struct {
	Messages   []domain.Message `json:"messages"`
	HasMore    bool             `json:"has_more"`
	NextCursor *string          `json:"next_cursor,omitempty"`
}

// HistoryService reads the durable message log on behalf of authenticated
// users. It never touches live connection state.
type HistoryService struct {
	rooms        repositories.IRoomRepository
	messages     repositories.IMessageRepository
	defaultLimit int
	maxLimit     int
}

func NewHistoryService(rooms repositories.IRoomRepository, messages repositories.IMessageRepository, defaultLimit, maxLimit int) *HistoryService {
	return &HistoryService{
		rooms:        rooms,
		messages:     messages,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

// Page returns up to limit messages older than the cursor. Membership is a
// hard precondition: non-members cannot read a room's history.
func (s *HistoryService) Page(room domain.RoomID, caller domain.UserID, limit int, before *string) (HistoryPage, error) {
	exists, err := s.rooms.RoomExists(room)
	if err != nil {
		return HistoryPage{}, err
	}
	if !exists {
		return HistoryPage{}, errors.ErrRoomNotFound
	}

	member, err := s.rooms.IsMember(caller, room)
	if err != nil {
		return HistoryPage{}, err
	}
	if !member {
		return HistoryPage{}, errors.ErrNotAMember
	}

	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	// Fetch one extra row: its presence means another page exists without a
	// second count query.
	messages, _, err := s.messages.Query(room, limit+1, before)
	if err != nil {
		return HistoryPage{}, err
	}

	page := HistoryPage{Messages: messages}
	if len(messages) > limit {
		page.Messages = messages[:limit]
		page.HasMore = true
		last := page.Messages[limit-1]
		page.NextCursor = lo.ToPtr(repositories.MessageCursor(last))
	}
	if page.Messages == nil {
		page.Messages = []domain.Message{}
	}
	return page, nil
}

// Message fetches a single message by id. The caller must be a member of
// the room the message belongs to; a membership miss reads the same as a
// missing room would, nothing about the message leaks.
func (s *HistoryService) Message(id uuid.UUID, caller domain.UserID) (domain.Message, error) {
	message, err := s.messages.GetByID(id)
	if err != nil {
		return domain.Message{}, err
	}
	member, err := s.rooms.IsMember(caller, message.Room)
	if err != nil {
		return domain.Message{}, err
	}
	if !member {
		return domain.Message{}, errors.ErrNotAMember
	}
	return message, nil
}
