package core

import (
	"sync"

	"github.com/google/uuid"
)

// Position is a last known (lat, lng) pair.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Session is the server-side state of one live connection. It is created on
// a successful join, mutated only by its own frames, and destroyed when the
// connection closes. The ID is never reused.
type Session struct {
	ID       string
	UserID   string
	Nickname string
	Context  SessionContext
	// RoomKey is set for chat sessions only.
	RoomKey string

	mu           sync.Mutex
	lastPosition *Position
	visibility   Visibility
}

func NewSession(userID, nickname string, sc SessionContext) *Session {
	return &Session{
		ID:         uuid.New().String(),
		UserID:     userID,
		Nickname:   nickname,
		Context:    sc,
		visibility: VisibilityAll,
	}
}

func (s *Session) SetPosition(lat, lng float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPosition = &Position{Lat: lat, Lng: lng}
}

// LastPosition returns a copy of the last reported position, or nil if the
// session has not sent a loc frame yet.
func (s *Session) LastPosition() *Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastPosition == nil {
		return nil
	}
	p := *s.lastPosition
	return &p
}

func (s *Session) SetVisibility(v Visibility) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visibility = v
}

func (s *Session) Visibility() Visibility {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visibility
}

// Registry maps sessionId to the live session. Destruction is synchronous
// with respect to broadcast: once Remove returns, no recipient computation
// will include the session.
type Registry struct {
	sessions *SyncMap[string, *Session]
}

func NewRegistry() *Registry {
	return &Registry{sessions: NewSyncMap[string, *Session]()}
}

func (r *Registry) Add(s *Session) {
	r.sessions.Store(s.ID, s)
}

func (r *Registry) Remove(id string) {
	r.sessions.Delete(id)
}

func (r *Registry) Get(id string) (*Session, bool) {
	return r.sessions.Load(id)
}

func (r *Registry) Len() int {
	n := 0
	r.sessions.RRange(func(string, *Session) bool {
		n++
		return true
	})
	return n
}
