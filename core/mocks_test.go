package core

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type sentFrame struct {
	frame     any
	droppable bool
}

// fakePeer records what the broadcast side delivered to it.
type fakePeer struct {
	mu     sync.Mutex
	frames []sentFrame
	kicked bool
	err    error
}

func (p *fakePeer) send(frame any, droppable bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.frames = append(p.frames, sentFrame{frame: frame, droppable: droppable})
	return nil
}

func (p *fakePeer) kick() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kicked = true
}

func (p *fakePeer) sent() []sentFrame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sentFrame(nil), p.frames...)
}

func (p *fakePeer) wasKicked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.kicked
}

// locFrames filters the recorded frames down to location updates.
func (p *fakePeer) locFrames() []LocFrame {
	var out []LocFrame
	for _, s := range p.sent() {
		if f, ok := s.frame.(LocFrame); ok {
			out = append(out, f)
		}
	}
	return out
}

func (p *fakePeer) chatFrames() []ChatFrame {
	var out []ChatFrame
	for _, s := range p.sent() {
		if f, ok := s.frame.(ChatFrame); ok {
			out = append(out, f)
		}
	}
	return out
}

func (p *fakePeer) leaveFrames() []LeaveFrame {
	var out []LeaveFrame
	for _, s := range p.sent() {
		if f, ok := s.frame.(LeaveFrame); ok {
			out = append(out, f)
		}
	}
	return out
}

// fakeOracle answers friendship from a fixed symmetric pair set.
type fakeOracle struct {
	pairs map[string]bool
	err   error
}

func newFakeOracle(pairs ...[2]string) *fakeOracle {
	o := &fakeOracle{pairs: make(map[string]bool)}
	for _, p := range pairs {
		o.pairs[RoomKey(p[0], p[1])] = true
	}
	return o
}

func (o *fakeOracle) IsFriend(ctx context.Context, a, b string) (bool, error) {
	if o.err != nil {
		return false, o.err
	}
	return o.pairs[RoomKey(a, b)], nil
}

// fakeChatStore persists nothing but records calls, so tests can observe
// the persist-then-broadcast order and force persistence failures.
type fakeChatStore struct {
	mu        sync.Mutex
	rooms     map[string][2]string
	messages  []Message
	nextID    int64
	appendErr error
	// onAppend runs under the store's own lock, before the message is
	// recorded.
	onAppend func()
}

func newFakeChatStore() *fakeChatStore {
	return &fakeChatStore{rooms: make(map[string][2]string)}
}

func (s *fakeChatStore) EnsureRoom(ctx context.Context, roomKey string, participants [2]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomKey]; !ok {
		s.rooms[roomKey] = participants
	}
	return nil
}

func (s *fakeChatStore) AppendMessage(ctx context.Context, input MessageInput) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return nil, s.appendErr
	}
	if s.onAppend != nil {
		s.onAppend()
	}
	if _, ok := s.rooms[input.RoomKey]; !ok {
		return nil, ErrInvalidRoom
	}
	s.nextID++
	m := Message{
		ID:      s.nextID,
		RoomKey: input.RoomKey,
		Sender:  input.Sender,
		Content: input.Content,
		SentAt:  time.Now().UTC(),
	}
	s.messages = append(s.messages, m)
	return &m, nil
}

func (s *fakeChatStore) RoomMessages(ctx context.Context, roomKey string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, m := range s.messages {
		if m.RoomKey == roomKey {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeChatStore) RoomSummaries(ctx context.Context, nickname string) ([]RoomSummary, error) {
	return nil, nil
}

func (s *fakeChatStore) MarkRead(ctx context.Context, roomKey, nickname string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last int64
	for _, m := range s.messages {
		if m.RoomKey == roomKey && m.ID > last {
			last = m.ID
		}
	}
	return last, nil
}

func (s *fakeChatStore) persisted(roomKey string) []Message {
	msgs, _ := s.RoomMessages(context.Background(), roomKey)
	return msgs
}

// fakeSettings returns a fixed visibility for every user.
type fakeSettings struct {
	visibility Visibility
	err        error
}

func (s *fakeSettings) LocationVisibility(ctx context.Context, nickname string) (Visibility, error) {
	if s.err != nil {
		return VisibilityAll, s.err
	}
	if s.visibility == "" {
		return VisibilityAll, nil
	}
	return s.visibility, nil
}

func (s *fakeSettings) SetLocationVisibility(ctx context.Context, nickname string, v Visibility) error {
	s.visibility = v
	return nil
}
