//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	goerrors "errors"
	"fmt"
	"log/slog"
	"time"

	"chat-relay/domain"
	"chat-relay/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IMessageRepository interface {
	Append(room domain.RoomID, author domain.UserID, content string) (domain.Message, error)
	Query(room domain.RoomID, limit int, cursor *string) ([]domain.Message, *string, error)
	GetByID(id uuid.UUID) (domain.Message, error)
}

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

type diskMessage struct {
	ID      string `cbor:"id"`
	Room    string `cbor:"room"`
	Author  string `cbor:"author"`
	Content string `cbor:"content"`
	At      int64  `cbor:"at"`
}

// messagePrefix is the key prefix of one room's message log. DeleteRoom
// relies on it to cascade a room deletion over its messages.
func messagePrefix(room domain.RoomID) []byte {
	return []byte(fmt.Sprintf("msg:%s:", room))
}

// messageIDKey is the by-id index row, pointing at the primary key.
func messageIDKey(id string) []byte {
	return []byte("msgid:" + id)
}

// Append persists a message in BadgerDB, assigning its identifier and
// timestamp. The key is formatted as "msg:{room}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two
//     messages arrive at the same nanosecond.
//
// The (timestamp, uuid) pair in the key is the durable ordering key: equal
// timestamps are still totally ordered, and cursors address this composite
// key so pagination never skips or duplicates a row.
func (m MessageRepository) Append(room domain.RoomID, author domain.UserID, content string) (domain.Message, error) {
	message := domain.Message{
		ID:      uuid.New(),
		Room:    room,
		Author:  author,
		Content: content,
		SentAt:  time.Now().UTC(),
	}
	key := append(messagePrefix(message.Room), []byte(MessageCursor(message))...)
	bytes, err := cbor.Marshal(fromMessage(message))
	if err != nil {
		return domain.Message{}, err
	}
	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, bytes); err != nil {
			return err
		}
		// By-id index for single-message lookups.
		return txn.Set(messageIDKey(message.ID.String()), key)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return message, nil
}

// Query retrieves up to limit messages for a room, newest first, using a
// reverse prefix scan. Thanks to the padded timestamp in the key, messages
// are naturally sorted by time. A non-nil cursor restricts the scan to
// rows strictly older than the row the cursor was taken from. The second
// return value is the cursor of the last row returned.
func (m MessageRepository) Query(room domain.RoomID, limit int, cursor *string) ([]domain.Message, *string, error) {
	var rawMessages [][]byte
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("msg:%s:", room)
		prefix := []byte(prefixStr)
		prefixLen := len(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Position past the newest possible timestamp, then walk
			// backwards through the room's log.
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)

		// The reverse seek lands on the cursor row itself; skip it so the
		// page starts strictly older.
		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(rawMessages) == limit {
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[prefixLen:])
			err := item.Value(func(value []byte) error {
				rawMessages = append(rawMessages, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	messages := make([]domain.Message, 0, len(rawMessages))
	for _, b := range rawMessages {
		var dm diskMessage
		if err = cbor.Unmarshal(b, &dm); err != nil {
			return nil, nil, err
		}
		message, err := toMessage(dm)
		if err != nil {
			return nil, nil, err
		}
		messages = append(messages, message)
	}
	if len(messages) == 0 {
		return nil, nil, nil
	}
	return messages, lo.ToPtr(lastKey), nil
}

// GetByID resolves a single message through the by-id index.
func (m MessageRepository) GetByID(id uuid.UUID) (domain.Message, error) {
	var dm diskMessage
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(messageIDKey(id.String()))
		if err != nil {
			return err
		}
		primaryKey, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		record, err := txn.Get(primaryKey)
		if err != nil {
			return err
		}
		return record.Value(func(val []byte) error {
			return cbor.Unmarshal(val, &dm)
		})
	})
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, errors.ErrMessageNotFound
	}
	if err != nil {
		return domain.Message{}, err
	}
	return toMessage(dm)
}

// MessageCursor is the room-relative portion of a message's storage key.
// Handing it back to Query as a cursor resumes the scan strictly after
// this message.
func MessageCursor(message domain.Message) string {
	return fmt.Sprintf("%019d:%s", message.SentAt.UnixNano(), message.ID)
}

func fromMessage(message domain.Message) diskMessage {
	return diskMessage{
		ID:      message.ID.String(),
		Room:    string(message.Room),
		Author:  string(message.Author),
		Content: message.Content,
		At:      message.SentAt.UnixNano(),
	}
}

func toMessage(dm diskMessage) (domain.Message, error) {
	parsedID, err := uuid.Parse(dm.ID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:      parsedID,
		Room:    domain.RoomID(dm.Room),
		Author:  domain.UserID(dm.Author),
		Content: dm.Content,
		SentAt:  time.Unix(0, dm.At).UTC(),
	}, nil
}
