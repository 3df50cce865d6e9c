package core

import (
	"context"
	"strings"
	"time"
)

// roomKeySeparator joins the two sorted participant nicknames into a room
// key. The key is the room's identity: RoomKey(a, b) == RoomKey(b, a).
const roomKeySeparator = ":"

// RoomKey derives the canonical, order-independent identity of the two-party
// room between a and b.
func RoomKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + roomKeySeparator + b
}

// ParseRoomKey splits a canonical room key back into its participant pair.
func ParseRoomKey(key string) ([2]string, error) {
	a, b, ok := strings.Cut(key, roomKeySeparator)
	if !ok || a == "" || b == "" {
		return [2]string{}, ErrInvalidRoomKey
	}
	return [2]string{a, b}, nil
}

// Message is one persisted chat message. Messages are immutable once
// persisted; ID is server-assigned and strictly increasing within a room, so
// it doubles as the room's delivery order.
type Message struct {
	ID      int64     `json:"id"`
	RoomKey string    `json:"roomKey"`
	Sender  string    `json:"sender"`
	Content string    `json:"content"`
	SentAt  time.Time `json:"sentAt"`
}

// MessageInput is the client-supplied part of a message. The timestamp is
// always server-assigned to avoid clock-skew mis-ordering.
type MessageInput struct {
	RoomKey string `json:"roomKey" validate:"required"`
	Sender  string `json:"sender" validate:"required"`
	Content string `json:"content" validate:"required"`
}

func (m *MessageInput) Validate() error {
	return validate.Struct(m)
}

// RoomSummary is a room as the room-list screen sees it: the other
// participant, the latest message, and how many messages the viewer has not
// read yet.
type RoomSummary struct {
	RoomKey      string    `json:"roomKey"`
	Participants [2]string `json:"participants"`
	LastMessage  string    `json:"lastMessage"`
	LastActivity time.Time `json:"lastActivity"`
	Unread       int       `json:"unread"`
}

// ChatStore is the persistence boundary of the chat coordinator. Transcripts
// are append-only; a room, once created, is never deleted.
type ChatStore interface {
	// EnsureRoom creates the room for the key if it does not exist yet.
	// Creating an existing room is a no-op.
	EnsureRoom(ctx context.Context, roomKey string, participants [2]string) error

	// AppendMessage persists the message, assigning its ID and timestamp.
	// The room must exist.
	AppendMessage(ctx context.Context, input MessageInput) (*Message, error)

	// RoomMessages returns the full transcript in persisted order. Two calls
	// with no intervening append return identical sequences.
	RoomMessages(ctx context.Context, roomKey string) ([]Message, error)

	// RoomSummaries lists the rooms the user participates in, most recent
	// activity first.
	RoomSummaries(ctx context.Context, nickname string) ([]RoomSummary, error)

	// MarkRead advances the user's last-read marker to the newest message in
	// the room and returns the marker.
	MarkRead(ctx context.Context, roomKey, nickname string) (int64, error)
}
