// Package search maintains a Bluge full-text index over persisted
// messages and serves the per-room search queries.
package search

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"chat-relay/domain"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
)

type Index struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewIndex(writer *bluge.Writer, log *slog.Logger) *Index {
	return &Index{writer: writer, log: log}
}

// Hit is one search result, rebuilt from the stored fields.
type Hit struct {
	MessageID uuid.UUID     `json:"message_id"`
	Author    domain.UserID `json:"author"`
	Content   string        `json:"content"`
	SentAt    time.Time     `json:"sent_at"`
}

// Index adds one persisted message to the full-text index. The message ID
// is the document key, so re-indexing the same message is an update, not
// a duplicate.
func (i *Index) Index(msg domain.Message) error {
	doc := bluge.NewDocument(msg.ID.String()).
		AddField(bluge.NewKeywordField("room", string(msg.Room))).
		AddField(bluge.NewTextField("content", msg.Content).StoreValue()).
		AddField(bluge.NewKeywordField("author", string(msg.Author)).StoreValue()).
		AddField(bluge.NewNumericField("sent_at", float64(msg.SentAt.UnixNano())).Sortable()).
		AddField(bluge.NewStoredOnlyField("sent_at_ns", []byte(strconv.FormatInt(msg.SentAt.UnixNano(), 10))))
	return i.writer.Update(doc.ID(), doc)
}

// DeleteRoom drops every indexed document of a room, in batches. Called
// when a room is deleted so its messages stop surfacing in search.
func (i *Index) DeleteRoom(ctx context.Context, room domain.RoomID) error {
	const batch = 500
	for {
		ids, err := i.roomDocIDs(ctx, room, batch)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		for _, id := range ids {
			if err := i.writer.Delete(bluge.Identifier(id)); err != nil {
				return err
			}
		}
		if len(ids) < batch {
			return nil
		}
	}
}

func (i *Index) roomDocIDs(ctx context.Context, room domain.RoomID, limit int) ([]string, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			i.log.Warn("closing index reader", "error", err)
		}
	}()

	q := bluge.NewTermQuery(string(room)).SetField("room")
	dmi, err := reader.Search(ctx, bluge.NewTopNSearch(limit, q))
	if err != nil {
		return nil, err
	}

	var ids []string
	next, err := dmi.Next()
	for err == nil && next != nil {
		visitErr := next.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				ids = append(ids, string(value))
			}
			return true
		})
		if visitErr != nil {
			return nil, visitErr
		}
		next, err = dmi.Next()
	}
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Search runs a match query over a single room's messages, newest first.
func (i *Index) Search(ctx context.Context, room domain.RoomID, query string, limit int) ([]Hit, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			i.log.Warn("closing index reader", "error", err)
		}
	}()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(string(room)).SetField("room")).
		AddMust(bluge.NewMatchQuery(query).SetField("content"))

	req := bluge.NewTopNSearch(limit, q).SortBy([]string{"-sent_at"})
	dmi, err := reader.Search(ctx, req)
	if err != nil {
		return nil, err
	}

	var hits []Hit
	next, err := dmi.Next()
	for err == nil && next != nil {
		var hit Hit
		visitErr := next.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				if id, parseErr := uuid.Parse(string(value)); parseErr == nil {
					hit.MessageID = id
				}
			case "author":
				hit.Author = domain.UserID(value)
			case "content":
				hit.Content = string(value)
			case "sent_at_ns":
				if ns, parseErr := strconv.ParseInt(string(value), 10, 64); parseErr == nil {
					hit.SentAt = time.Unix(0, ns).UTC()
				}
			}
			return true
		})
		if visitErr != nil {
			return nil, visitErr
		}
		hits = append(hits, hit)
		next, err = dmi.Next()
	}
	if err != nil {
		return nil, err
	}
	return hits, nil
}
