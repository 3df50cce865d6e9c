package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

type spaceMember struct {
	sess *Session
	peer peer
}

// Space is the single shared presence region. Every tracking session belongs
// to exactly one Space; location updates fan out to the other members under
// the sender's visibility policy.
type Space struct {
	friends FriendshipOracle
	logger  *slog.Logger

	mu      sync.RWMutex
	members map[string]spaceMember
}

func NewSpace(friends FriendshipOracle, logger *slog.Logger) *Space {
	return &Space{
		friends: friends,
		logger:  logger,
		members: make(map[string]spaceMember),
	}
}

func (s *Space) Join(sess *Session, p peer) {
	s.mu.Lock()
	s.members[sess.ID] = spaceMember{sess: sess, peer: p}
	s.mu.Unlock()
	s.logger.Info("session joined space",
		slog.String("session.id", sess.ID), slog.String("nickname", sess.Nickname))
}

// Leave removes the session and tells the remaining members. Once Leave
// returns, no subsequent broadcast can deliver to the removed session.
func (s *Space) Leave(sess *Session) {
	s.mu.Lock()
	if _, ok := s.members[sess.ID]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.members, sess.ID)
	rest := make([]peer, 0, len(s.members))
	for _, m := range s.members {
		rest = append(rest, m.peer)
	}
	s.mu.Unlock()

	frame := LeaveFrame{Type: FrameLeave, SessionID: sess.ID}
	for _, p := range rest {
		p.send(frame, false)
	}
	s.logger.Info("session left space", slog.String("session.id", sess.ID))
}

func (s *Space) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members)
}

// Broadcast records the sender's position and fans the update out. The
// sender always gets its own echo; every other member is checked against the
// sender's visibility at this exact update. The decision is never cached,
// since friendship and visibility can change between updates. An ineligible
// recipient receives nothing, not an empty frame.
func (s *Space) Broadcast(ctx context.Context, sender *Session, lat, lng float64) {
	sender.SetPosition(lat, lng)
	vis := sender.Visibility()

	frame := LocFrame{
		Type:       FrameLoc,
		SessionID:  sender.ID,
		Lat:        &lat,
		Lng:        &lng,
		Nickname:   sender.Nickname,
		Visibility: vis,
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, m := range s.members {
		if id == sender.ID {
			m.peer.send(frame, true)
			continue
		}
		switch vis {
		case VisibilityNone:
			continue
		case VisibilityFriends:
			ok, err := s.friends.IsFriend(ctx, sender.Nickname, m.sess.Nickname)
			if err != nil {
				s.logger.Error(fmt.Sprintf("IsFriend(%s, %s): %v", sender.Nickname, m.sess.Nickname, err))
				continue
			}
			if !ok {
				continue
			}
		}
		m.peer.send(frame, true)
	}
}
