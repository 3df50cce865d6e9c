package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

type roomMember struct {
	sess *Session
	peer peer
}

// liveRoom is the in-memory side of one chat room: the (at most two) live
// connections currently attached to it. mu serializes persist+broadcast so
// every member observes the room's messages in persisted order.
type liveRoom struct {
	key     string
	mu      sync.Mutex
	members map[string]roomMember
}

// Coordinator owns the live chat rooms. Room identity is the canonical key
// of the participant pair; transcripts live in the ChatStore underneath.
type Coordinator struct {
	store  ChatStore
	logger *slog.Logger

	mu    sync.Mutex
	rooms map[string]*liveRoom
}

func NewCoordinator(store ChatStore, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		store:  store,
		logger: logger,
		rooms:  make(map[string]*liveRoom),
	}
}

// Join attaches the session to the room for key, creating the persisted room
// lazily on first reference. A nickname outside the key's participant pair
// is rejected. The same nickname rejoining replaces its prior live
// connection for the room; the replaced connection is closed.
func (co *Coordinator) Join(ctx context.Context, sess *Session, p peer, key string) error {
	parts, err := ParseRoomKey(key)
	if err != nil {
		return err
	}
	if sess.Nickname != parts[0] && sess.Nickname != parts[1] {
		return fmt.Errorf("%w: %s in %s", ErrNotParticipant, sess.Nickname, key)
	}

	if err := co.store.EnsureRoom(ctx, key, parts); err != nil {
		return fmt.Errorf("EnsureRoom: %w", err)
	}

	co.mu.Lock()
	r, ok := co.rooms[key]
	if !ok {
		r = &liveRoom{key: key, members: make(map[string]roomMember)}
		co.rooms[key] = r
	}
	co.mu.Unlock()

	r.mu.Lock()
	prior, replaced := r.members[sess.Nickname]
	r.members[sess.Nickname] = roomMember{sess: sess, peer: p}
	r.mu.Unlock()

	if replaced && prior.peer != p {
		co.logger.Info("replacing prior session for room",
			slog.String("room", key), slog.String("nickname", sess.Nickname))
		prior.peer.kick()
	}
	return nil
}

// Leave detaches the session and notifies the other participant, if
// connected, exactly once. A stale leave (the member slot was already taken
// over by a reconnect) removes nothing but still announces the dead session.
func (co *Coordinator) Leave(sess *Session, p peer) {
	co.mu.Lock()
	r := co.rooms[sess.RoomKey]
	co.mu.Unlock()
	if r == nil {
		return
	}

	r.mu.Lock()
	if cur, ok := r.members[sess.Nickname]; ok && cur.peer == p {
		delete(r.members, sess.Nickname)
	}
	rest := make([]peer, 0, len(r.members))
	for _, m := range r.members {
		if m.peer != p {
			rest = append(rest, m.peer)
		}
	}
	empty := len(r.members) == 0
	r.mu.Unlock()

	frame := LeaveFrame{Type: FrameLeave, SessionID: sess.ID}
	for _, o := range rest {
		o.send(frame, false)
	}

	if empty {
		co.mu.Lock()
		r.mu.Lock()
		if len(r.members) == 0 && co.rooms[sess.RoomKey] == r {
			delete(co.rooms, sess.RoomKey)
		}
		r.mu.Unlock()
		co.mu.Unlock()
	}
}

// Chat persists the message and fans it out to every live member of the
// room, the sender included; clients render only from inbound frames.
// Whitespace-only content is dropped without an error. Persistence
// happens-before broadcast: a message no peer could have seen is never
// missing from a transcript reload.
func (co *Coordinator) Chat(ctx context.Context, sess *Session, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	co.mu.Lock()
	r := co.rooms[sess.RoomKey]
	co.mu.Unlock()
	if r == nil {
		return fmt.Errorf("%w: %s", ErrInvalidRoom, sess.RoomKey)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	msg, err := co.store.AppendMessage(ctx, MessageInput{
		RoomKey: sess.RoomKey,
		Sender:  sess.Nickname,
		Content: content,
	})
	if err != nil {
		return fmt.Errorf("AppendMessage: %w", err)
	}

	frame := ChatFrame{
		Type:           FrameChat,
		SenderNickname: msg.Sender,
		Content:        msg.Content,
		TS:             msg.SentAt.UnixMilli(),
	}
	for _, m := range r.members {
		m.peer.send(frame, false)
	}
	return nil
}

// Transcript exposes the room history as a query independent of the live
// channel.
func (co *Coordinator) Transcript(ctx context.Context, key string) ([]Message, error) {
	return co.store.RoomMessages(ctx, key)
}

// LiveMembers reports the nicknames currently attached to the room.
func (co *Coordinator) LiveMembers(key string) []string {
	co.mu.Lock()
	r := co.rooms[key]
	co.mu.Unlock()
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.members))
	for n := range r.members {
		names = append(names, n)
	}
	return names
}
