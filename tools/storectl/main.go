// storectl dumps the chat store for operational inspection: messages,
// rooms, memberships and users, straight from a (possibly live) BadgerDB
// directory. Read-only by design.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

type messageRecord struct {
	ID      string `cbor:"id"`
	Room    string `cbor:"room"`
	Author  string `cbor:"author"`
	Content string `cbor:"content"`
	At      int64  `cbor:"at"`
}

type roomRecord struct {
	ID          string `cbor:"id"`
	Name        string `cbor:"name"`
	Description string `cbor:"description"`
	CreatedBy   string `cbor:"created_by"`
	CreatedAt   int64  `cbor:"created_at"`
}

type userRecord struct {
	ID        string   `cbor:"id"`
	Username  string   `cbor:"username"`
	Email     string   `cbor:"email"`
	Roles     []string `cbor:"roles"`
	CreatedAt int64    `cbor:"created_at"`
}

func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	kind := flag.String("kind", "messages", "What to dump: messages|rooms|users|members")
	room := flag.String("room", "", "Restrict messages/members to one room id")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	switch *kind {
	case "messages":
		err = dumpMessages(db, *room)
	case "rooms":
		err = dumpRooms(db)
	case "users":
		err = dumpUsers(db)
	case "members":
		err = dumpMembers(db, *room)
	default:
		err = fmt.Errorf("unknown kind %q", *kind)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func newTable(headers []string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func dumpMessages(db *badger.DB, room string) error {
	prefix := "msg:"
	if room != "" {
		prefix = fmt.Sprintf("msg:%s:", room)
	}
	table := newTable([]string{"Room", "At", "Author", "Message ID", "Content"})
	count := 0

	err := scan(db, prefix, func(key string, value []byte) error {
		var m messageRecord
		if err := cbor.Unmarshal(value, &m); err != nil {
			color.Warn.Printf("Skipping undecodable key %s: %v\n", key, err)
			return nil
		}
		content := m.Content
		if len(content) > 60 {
			content = content[:57] + "..."
		}
		table.Append([]string{
			m.Room,
			time.Unix(0, m.At).UTC().Format(time.RFC3339),
			m.Author,
			shortID(m.ID),
			content,
		})
		count++
		return nil
	})
	if err != nil {
		return err
	}
	table.Render()
	color.Info.Printf("%d message(s)\n", count)
	return nil
}

func dumpRooms(db *badger.DB) error {
	table := newTable([]string{"Room ID", "Name", "Created By", "Created At", "Description"})
	count := 0

	err := scan(db, "room:", func(key string, value []byte) error {
		var rec roomRecord
		if err := cbor.Unmarshal(value, &rec); err != nil {
			color.Warn.Printf("Skipping undecodable key %s: %v\n", key, err)
			return nil
		}
		table.Append([]string{
			shortID(rec.ID),
			rec.Name,
			shortID(rec.CreatedBy),
			time.Unix(rec.CreatedAt, 0).UTC().Format(time.RFC3339),
			rec.Description,
		})
		count++
		return nil
	})
	if err != nil {
		return err
	}
	table.Render()
	color.Info.Printf("%d room(s)\n", count)
	return nil
}

func dumpUsers(db *badger.DB) error {
	table := newTable([]string{"User ID", "Username", "Email", "Roles", "Created At"})
	count := 0

	err := scan(db, "user:email:", func(key string, value []byte) error {
		var rec userRecord
		if err := cbor.Unmarshal(value, &rec); err != nil {
			color.Warn.Printf("Skipping undecodable key %s: %v\n", key, err)
			return nil
		}
		table.Append([]string{
			shortID(rec.ID),
			rec.Username,
			rec.Email,
			strings.Join(rec.Roles, ","),
			time.Unix(rec.CreatedAt, 0).UTC().Format(time.RFC3339),
		})
		count++
		return nil
	})
	if err != nil {
		return err
	}
	table.Render()
	color.Info.Printf("%d user(s)\n", count)
	return nil
}

func dumpMembers(db *badger.DB, room string) error {
	prefix := "member:"
	if room != "" {
		prefix = fmt.Sprintf("member:%s:", room)
	}
	table := newTable([]string{"Room ID", "User ID"})
	count := 0

	err := scan(db, prefix, func(key string, _ []byte) error {
		parts := strings.SplitN(key, ":", 3)
		if len(parts) != 3 {
			return nil
		}
		table.Append([]string{shortID(parts[1]), shortID(parts[2])})
		count++
		return nil
	})
	if err != nil {
		return err
	}
	table.Render()
	color.Info.Printf("%d membership(s)\n", count)
	return nil
}

func scan(db *badger.DB, prefix string, fn func(key string, value []byte) error) error {
	return db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())
			err := item.Value(func(v []byte) error {
				return fn(key, append([]byte(nil), v...))
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)

	db, err := badger.Open(opts)
	if err != nil {
		if strings.Contains(err.Error(), "Log truncate required") {
			// A dirty shutdown leaves the value log in need of a truncate,
			// which read-only mode refuses. Open once in write mode to let
			// badger repair, then reopen read-only.
			repairOpts := badger.DefaultOptions(path).
				WithLogger(nil).WithBypassLockGuard(true)

			db, err = badger.Open(repairOpts)
			if err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}
			db.Close()
			return badger.Open(opts)
		}
		return nil, err
	}
	return db, nil
}
