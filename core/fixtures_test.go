package core

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// StoreFixture opens a fresh in-memory database with all migrations applied.
// The database lives until tearDown closes the last connection.
type StoreFixture struct {
	ctx      context.Context
	db       *sql.DB
	t        *testing.T
	tearDown func()

	chatStore     *SQLiteChatStore
	friendStore   *SQLiteFriendStore
	settingsStore *SQLiteSettingsStore
}

func NewStoreFixture(t *testing.T) *StoreFixture {
	ctx, cancel := context.WithCancel(context.Background())

	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	if err != nil {
		t.Fatal(err)
	}

	if err := MigrateUp(db, os.DirFS("../migrations")); err != nil {
		t.Fatal(err)
	}

	return &StoreFixture{
		ctx:           ctx,
		db:            db,
		t:             t,
		chatStore:     NewSQLiteChatStore(db),
		friendStore:   NewSQLiteFriendStore(db),
		settingsStore: NewSQLiteSettingsStore(db),
		tearDown: func() {
			cancel()
			db.Close()
		},
	}
}

func seedRoom(f *StoreFixture, a, b string) string {
	key := RoomKey(a, b)
	parts, err := ParseRoomKey(key)
	if err != nil {
		f.t.Fatal(err)
	}
	if err := f.chatStore.EnsureRoom(f.ctx, key, parts); err != nil {
		f.t.Fatal(err)
	}
	return key
}

func seedMessages(f *StoreFixture, roomKey string, msgs ...MessageInput) []*Message {
	out := make([]*Message, 0, len(msgs))
	for _, in := range msgs {
		in.RoomKey = roomKey
		m, err := f.chatStore.AppendMessage(f.ctx, in)
		if err != nil {
			f.t.Fatal(err)
		}
		out = append(out, m)
	}
	return out
}
