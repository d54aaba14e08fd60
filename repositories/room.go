//go:generate go run go.uber.org/mock/mockgen -source=room.go -destination=../mocks/mock_room_repository.go -package=mocks
package repositories

import (
	"bytes"
	goerrors "errors"
	"fmt"
	"time"

	"chat-relay/domain"
	"chat-relay/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// IRoomRepository is the authoritative room-metadata and membership store.
// The live layer calls RoomExists and IsMember on every join/send; nothing
// here is cached on the connection side.
type IRoomRepository interface {
	CreateRoom(name, description string, creator domain.UserID) (domain.Room, error)
	GetRoom(id domain.RoomID) (domain.Room, error)
	ListRooms() ([]domain.Room, error)
	DeleteRoom(id domain.RoomID) error
	RoomExists(id domain.RoomID) (bool, error)
	IsMember(user domain.UserID, room domain.RoomID) (bool, error)
	AddMember(user domain.UserID, room domain.RoomID) error
	RemoveMember(user domain.UserID, room domain.RoomID) error
	Members(room domain.RoomID) ([]domain.RoomMember, error)
	UserRooms(user domain.UserID) ([]domain.Room, error)
	MemberCount(room domain.RoomID) (int, error)
}

// RoomRepository stores rooms and the user/room join rows in BadgerDB.
// Keys:
//
//	room:{roomID}            -> room record
//	member:{roomID}:{userID} -> join row (joinedAt)
//	joined:{userID}:{roomID} -> empty, reverse index for UserRooms
//
// The reverse index exists so listing a user's rooms never scans every
// membership row in the database.
type RoomRepository struct {
	db *badger.DB
}

func NewRoomRepository(db *badger.DB) RoomRepository {
	return RoomRepository{db: db}
}

type roomRecord struct {
	ID          string `cbor:"id"`
	Name        string `cbor:"name"`
	Description string `cbor:"description"`
	CreatedBy   string `cbor:"created_by"`
	CreatedAt   int64  `cbor:"created_at"`
}

type memberRecord struct {
	JoinedAt int64 `cbor:"joined_at"`
}

func roomKey(id domain.RoomID) []byte {
	return []byte("room:" + string(id))
}

func memberKey(room domain.RoomID, user domain.UserID) []byte {
	return []byte(fmt.Sprintf("member:%s:%s", room, user))
}

func joinedKey(user domain.UserID, room domain.RoomID) []byte {
	return []byte(fmt.Sprintf("joined:%s:%s", user, room))
}

func (r RoomRepository) CreateRoom(name, description string, creator domain.UserID) (domain.Room, error) {
	room := domain.Room{
		ID:          domain.RoomID(uuid.NewString()),
		Name:        name,
		Description: description,
		CreatedBy:   creator,
		CreatedAt:   time.Now().UTC(),
	}
	data, err := cbor.Marshal(fromRoom(room))
	if err != nil {
		return domain.Room{}, err
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(roomKey(room.ID), data)
	})
	if err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

func (r RoomRepository) GetRoom(id domain.RoomID) (domain.Room, error) {
	var rec roomRecord
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(roomKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return cbor.Unmarshal(val, &rec)
		})
	})
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Room{}, errors.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, err
	}
	return toRoom(rec), nil
}

func (r RoomRepository) ListRooms() ([]domain.Room, error) {
	var rooms []domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("room:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec roomRecord
			err := it.Item().Value(func(val []byte) error {
				return cbor.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			rooms = append(rooms, toRoom(rec))
		}
		return nil
	})
	return rooms, err
}

// DeleteRoom removes the room record, every membership row (both
// directions of the index), and the room's message log with its by-id
// index rows, in a single transaction.
func (r RoomRepository) DeleteRoom(id domain.RoomID) error {
	return r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(roomKey(id)); goerrors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrRoomNotFound
		} else if err != nil {
			return err
		}

		prefix := []byte(fmt.Sprintf("member:%s:", id))
		prefixLen := len(prefix)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)

		var memberKeys [][]byte
		var users []domain.UserID
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			memberKeys = append(memberKeys, key)
			users = append(users, domain.UserID(key[prefixLen:]))
		}
		it.Close()

		for i, key := range memberKeys {
			if err := txn.Delete(key); err != nil {
				return err
			}
			if err := txn.Delete(joinedKey(users[i], id)); err != nil {
				return err
			}
		}

		msgPrefix := messagePrefix(id)
		it = txn.NewIterator(opts)
		var messageKeys [][]byte
		for it.Seek(msgPrefix); it.ValidForPrefix(msgPrefix); it.Next() {
			messageKeys = append(messageKeys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, key := range messageKeys {
			if err := txn.Delete(key); err != nil {
				return err
			}
			// The uuid trails the padded timestamp in the key; it names
			// the by-id row to drop alongside.
			if idx := bytes.LastIndexByte(key, ':'); idx >= 0 {
				if err := txn.Delete(messageIDKey(string(key[idx+1:]))); err != nil {
					return err
				}
			}
		}
		return txn.Delete(roomKey(id))
	})
}

func (r RoomRepository) RoomExists(id domain.RoomID) (bool, error) {
	err := r.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(roomKey(id))
		return err
	})
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r RoomRepository) IsMember(user domain.UserID, room domain.RoomID) (bool, error) {
	err := r.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(memberKey(room, user))
		return err
	})
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r RoomRepository) AddMember(user domain.UserID, room domain.RoomID) error {
	rec, err := cbor.Marshal(memberRecord{JoinedAt: time.Now().UTC().Unix()})
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(memberKey(room, user), rec); err != nil {
			return err
		}
		return txn.Set(joinedKey(user, room), nil)
	})
}

func (r RoomRepository) RemoveMember(user domain.UserID, room domain.RoomID) error {
	return r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(memberKey(room, user)); err != nil {
			return err
		}
		return txn.Delete(joinedKey(user, room))
	})
}

func (r RoomRepository) Members(room domain.RoomID) ([]domain.RoomMember, error) {
	var members []domain.RoomMember
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("member:%s:", room))
		prefixLen := len(prefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			userID := domain.UserID(item.Key()[prefixLen:])
			var rec memberRecord
			err := item.Value(func(val []byte) error {
				return cbor.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			members = append(members, domain.RoomMember{
				UserID:   userID,
				JoinedAt: time.Unix(rec.JoinedAt, 0).UTC(),
			})
		}
		return nil
	})
	return members, err
}

func (r RoomRepository) UserRooms(user domain.UserID) ([]domain.Room, error) {
	var roomIDs []domain.RoomID
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("joined:%s:", user))
		prefixLen := len(prefix)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			roomIDs = append(roomIDs, domain.RoomID(it.Item().Key()[prefixLen:]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	rooms := make([]domain.Room, 0, len(roomIDs))
	for _, id := range roomIDs {
		room, err := r.GetRoom(id)
		if goerrors.Is(err, errors.ErrRoomNotFound) {
			// Dangling index row, the room was deleted concurrently.
			continue
		}
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func (r RoomRepository) MemberCount(room domain.RoomID) (int, error) {
	count := 0
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("member:%s:", room))
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func fromRoom(room domain.Room) roomRecord {
	return roomRecord{
		ID:          string(room.ID),
		Name:        room.Name,
		Description: room.Description,
		CreatedBy:   string(room.CreatedBy),
		CreatedAt:   room.CreatedAt.Unix(),
	}
}

func toRoom(rec roomRecord) domain.Room {
	return domain.Room{
		ID:          domain.RoomID(rec.ID),
		Name:        rec.Name,
		Description: rec.Description,
		CreatedBy:   domain.UserID(rec.CreatedBy),
		CreatedAt:   time.Unix(rec.CreatedAt, 0).UTC(),
	}
}
