package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var defaultUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub is the connection lifecycle manager. It upgrades HTTP requests,
// enforces the join handshake, routes frames to the presence space or the
// chat coordinator based on the session's context, and funnels every close
// path (clean, error, timeout, kick) through exactly one deregistration and
// leave broadcast per session.
type Hub struct {
	registry *Registry
	space    *Space
	rooms    *Coordinator
	settings SettingsStore

	upgrader    websocket.Upgrader
	outboxLimit int

	ctx    context.Context
	wg     *sync.WaitGroup
	logger *slog.Logger

	mu    sync.Mutex
	conns map[*conn]struct{}
}

type HubOption func(*Hub)

func WithCheckOrigin(f func(r *http.Request) bool) HubOption {
	return func(h *Hub) {
		h.upgrader.CheckOrigin = f
	}
}

func WithOutboxLimit(n int) HubOption {
	return func(h *Hub) {
		h.outboxLimit = n
	}
}

func NewHub(ctx context.Context, wg *sync.WaitGroup, logger *slog.Logger,
	space *Space, rooms *Coordinator, settings SettingsStore, opts ...HubOption) *Hub {

	h := &Hub{
		registry:    NewRegistry(),
		space:       space,
		rooms:       rooms,
		settings:    settings,
		upgrader:    defaultUpgrader,
		outboxLimit: 128,
		ctx:         ctx,
		wg:          wg,
		logger:      logger,
		conns:       make(map[*conn]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Registry() *Registry {
	return h.registry
}

// Connect upgrades the request and starts the connection's read and write
// loops. No session exists until the client completes a join.
// verifiedNickname may be empty; when set, the join frame's nickname must
// match it.
func (h *Hub) Connect(w http.ResponseWriter, r *http.Request, verifiedNickname string) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("Upgrade: %w", err)
	}

	c := &conn{
		ws:               ws,
		hub:              h,
		out:              newOutbox(h.outboxLimit),
		ticker:           time.NewTicker(pingPeriod),
		verifiedNickname: verifiedNickname,
		logger:           h.logger.With(slog.String("remote", ws.RemoteAddr().String())),
	}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		c.readLoop()
	}()
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		c.writeLoop()
	}()

	h.logger.Info("new connection", slog.String("remote", ws.RemoteAddr().String()))
	return nil
}

// route dispatches one inbound frame. Before a session exists only join is
// accepted; anything else is dropped with the connection left open.
func (h *Hub) route(c *conn, data []byte) {
	t, err := peekFrameType(data)
	if err != nil {
		c.dropMalformed(err)
		return
	}

	sess := c.Session()
	if sess == nil {
		if t != FrameJoin {
			c.dropMalformed(fmt.Errorf("%w: %s", ErrNotJoined, t))
			return
		}
		h.handleJoin(c, data)
		return
	}

	switch t {
	case FrameLoc:
		h.handleLoc(c, sess, data)
	case FrameChat:
		h.handleChat(c, sess, data)
	default:
		c.dropMalformed(fmt.Errorf("%w: unexpected type %s", ErrMalformedFrame, t))
	}
}

func (h *Hub) handleJoin(c *conn, data []byte) {
	var f JoinFrame
	if err := decodeFrame(data, &f); err != nil {
		c.dropMalformed(err)
		return
	}
	if err := f.Validate(); err != nil {
		c.dropMalformed(fmt.Errorf("%w: %v", ErrMalformedFrame, err))
		return
	}
	if c.verifiedNickname != "" && c.verifiedNickname != f.Nickname {
		c.dropMalformed(fmt.Errorf("%w: %s", ErrIdentityMismatch, f.Nickname))
		return
	}

	sess := NewSession(f.UserID, f.Nickname, f.Context)

	switch f.Context {
	case ContextTracking:
		vis, err := h.settings.LocationVisibility(h.ctx, f.Nickname)
		if err != nil {
			h.logger.Error(fmt.Sprintf("LocationVisibility(%s): %v", f.Nickname, err))
			vis = VisibilityAll
		}
		sess.SetVisibility(vis)
		c.setSession(sess)
		h.registry.Add(sess)
		h.space.Join(sess, c)

	case ContextChat:
		key, err := resolveRoomKey(&f)
		if err != nil {
			c.dropMalformed(err)
			return
		}
		sess.RoomKey = key
		if err := h.rooms.Join(h.ctx, sess, c, key); err != nil {
			c.dropMalformed(fmt.Errorf("join room %s: %w", key, err))
			return
		}
		c.setSession(sess)
		h.registry.Add(sess)
	}

	c.resetMalformed()
	c.send(JoinAckFrame{Type: FrameJoinAck, SessionID: sess.ID}, false)
	h.logger.Info("session joined",
		slog.String("session.id", sess.ID),
		slog.String("nickname", sess.Nickname),
		slog.String("context", string(sess.Context)))
}

// resolveRoomKey reconciles the optional roomKey and targetNickname of a
// chat join. When a nickname pair is available the canonical key is
// recomputed and wins over a mismatched client-supplied key; recomputation
// is preferred over rejection for compatibility.
func resolveRoomKey(f *JoinFrame) (string, error) {
	if f.TargetNickname != "" {
		return RoomKey(f.Nickname, f.TargetNickname), nil
	}
	if f.RoomKey == "" {
		return "", fmt.Errorf("%w: join without roomKey or targetNickname", ErrMalformedFrame)
	}
	if _, err := ParseRoomKey(f.RoomKey); err != nil {
		return "", err
	}
	return f.RoomKey, nil
}

func (h *Hub) handleLoc(c *conn, sess *Session, data []byte) {
	if sess.Context != ContextTracking {
		c.dropMalformed(fmt.Errorf("%w: loc frame on %s session", ErrMalformedFrame, sess.Context))
		return
	}
	var f LocFrame
	if err := decodeFrame(data, &f); err != nil {
		c.dropMalformed(err)
		return
	}
	if f.Lat == nil || f.Lng == nil {
		c.dropMalformed(fmt.Errorf("%w: loc without lat/lng", ErrMalformedFrame))
		return
	}
	if f.Visibility != "" {
		if !f.Visibility.Valid() {
			c.dropMalformed(fmt.Errorf("%w: visibility %q", ErrMalformedFrame, f.Visibility))
			return
		}
		sess.SetVisibility(f.Visibility)
	}
	c.resetMalformed()
	h.space.Broadcast(h.ctx, sess, *f.Lat, *f.Lng)
}

func (h *Hub) handleChat(c *conn, sess *Session, data []byte) {
	if sess.Context != ContextChat {
		c.dropMalformed(fmt.Errorf("%w: chat frame on %s session", ErrMalformedFrame, sess.Context))
		return
	}
	var f ChatFrame
	if err := decodeFrame(data, &f); err != nil {
		c.dropMalformed(err)
		return
	}
	c.resetMalformed()
	if err := h.rooms.Chat(h.ctx, sess, f.Content); err != nil {
		// The message was not broadcast; nothing a peer saw is missing from
		// the transcript.
		h.logger.Error(fmt.Sprintf("chat(%s): %v", sess.RoomKey, err))
	}
}

// closeConn tears the connection down. It is safe to call from any goroutine
// and any number of times; deregistration and the leave broadcast happen
// exactly once per session.
func (h *Hub) closeConn(c *conn) {
	c.closeOnce.Do(func() {
		h.mu.Lock()
		delete(h.conns, c)
		h.mu.Unlock()

		if sess := c.Session(); sess != nil {
			h.registry.Remove(sess.ID)
			switch sess.Context {
			case ContextTracking:
				h.space.Leave(sess)
			case ContextChat:
				h.rooms.Leave(sess, c)
			}
			h.logger.Info("session closed", slog.String("session.id", sess.ID))
		}

		c.out.close()
	})
}

// Close closes every live connection and waits for their loops to stop, up
// to the timeout.
func (h *Hub) Close(timeout time.Duration) error {
	h.mu.Lock()
	conns := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		h.closeConn(c)
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		h.logger.Info("hub closed gracefully")
		return nil
	case <-time.After(timeout):
		h.logger.Info("hub close timed out")
		return errors.New("hub close timed out")
	}
}
