package core

import "errors"

var (
	// ErrMalformedFrame is returned when an inbound frame cannot be decoded
	// or is missing a required field. Malformed frames are dropped; the
	// connection stays open.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrNotJoined is returned when a non-join frame arrives before the join
	// handshake has completed.
	ErrNotJoined = errors.New("frame before join")
	// ErrInvalidRoomKey is returned when a room key cannot be parsed into a
	// participant pair.
	ErrInvalidRoomKey = errors.New("invalid room key")
	// ErrNotParticipant is returned when a session joins a room whose key
	// does not include its own nickname.
	ErrNotParticipant = errors.New("nickname is not a room participant")
	// ErrInvalidRoom is returned when a chat frame references a room that has
	// no live state on this server.
	ErrInvalidRoom = errors.New("invalid room")
	// ErrOutboxOverflow is returned when a critical frame cannot be queued
	// because the outbound queue is full of other critical frames. The
	// connection must be closed; dropping the frame would break ordering.
	ErrOutboxOverflow = errors.New("outbound queue overflow")
	// ErrIdentityMismatch is returned when the nickname in a join frame does
	// not match the verified identity the connection was opened with.
	ErrIdentityMismatch = errors.New("nickname does not match verified identity")
)
