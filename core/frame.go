package core

import (
	"encoding/json"
	"fmt"
)

// Frame types form a closed set. Anything outside the set is dropped by the
// hub without terminating the connection.
const (
	FrameJoin    = "join"
	FrameJoinAck = "join-ack"
	FrameLoc     = "loc"
	FrameChat    = "chat"
	FrameLeave   = "leave"
)

// SessionContext determines which component a session is routed to after the
// join handshake.
type SessionContext string

const (
	ContextTracking SessionContext = "tracking"
	ContextChat     SessionContext = "chat"
)

func (c SessionContext) Valid() bool {
	return c == ContextTracking || c == ContextChat
}

// JoinFrame is the first frame a client must send on a fresh connection.
// For context=chat the room is resolved from RoomKey and/or TargetNickname.
type JoinFrame struct {
	Type           string         `json:"type"`
	UserID         string         `json:"userId" validate:"required"`
	Nickname       string         `json:"nickname" validate:"required"`
	Context        SessionContext `json:"context" validate:"required"`
	RoomKey        string         `json:"roomKey,omitempty"`
	TargetNickname string         `json:"targetNickname,omitempty"`
}

func (f *JoinFrame) Validate() error {
	if err := validate.Struct(f); err != nil {
		return err
	}
	if !f.Context.Valid() {
		return fmt.Errorf("%w: context %q", ErrMalformedFrame, f.Context)
	}
	return nil
}

type JoinAckFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

// LocFrame is used both inbound (client reports its position) and outbound
// (fan-out to eligible recipients). Lat and Lng are pointers so a missing
// coordinate can be told apart from 0.
type LocFrame struct {
	Type       string     `json:"type"`
	SessionID  string     `json:"sessionId,omitempty"`
	Lat        *float64   `json:"lat"`
	Lng        *float64   `json:"lng"`
	Nickname   string     `json:"nickname,omitempty"`
	Visibility Visibility `json:"locationVisibility,omitempty"`
}

// ChatFrame carries a single chat message. SenderNickname and TS are
// server-stamped on the outbound copy.
type ChatFrame struct {
	Type           string `json:"type"`
	SenderNickname string `json:"senderNickname,omitempty"`
	Content        string `json:"content"`
	TS             int64  `json:"ts,omitempty"`
}

type LeaveFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

// peekFrameType reads the type discriminant without decoding the full frame.
func peekFrameType(data []byte) (string, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if head.Type == "" {
		return "", fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	return head.Type, nil
}

func decodeFrame(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}
