package core

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	// Consecutive malformed frames tolerated before the connection is
	// closed as a flood guard.
	maxMalformedFrames = 16
)

// peer is the delivery side of a live connection as the broadcast
// components see it. send must never block.
type peer interface {
	send(frame any, droppable bool) error
	kick()
}

// conn pairs one websocket connection with at most one session. The session
// is nil until the join handshake completes.
type conn struct {
	ws     *websocket.Conn
	hub    *Hub
	out    *outbox
	ticker *time.Ticker
	logger *slog.Logger

	closeOnce sync.Once

	mu sync.Mutex
	// verifiedNickname is non-empty when the connection was opened with a
	// verified identity; the join frame must then match it.
	verifiedNickname string
	session          *Session
	malformed        int
}

func (c *conn) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *conn) setSession(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
}

// send encodes the frame and queues it for delivery. It never blocks; on a
// critical-frame overflow the connection is closed and its leave propagated.
func (c *conn) send(frame any, droppable bool) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("Marshal: %w", err)
	}
	if err := c.out.push(outFrame{data: data, droppable: droppable}); err != nil {
		c.logger.Error(fmt.Sprintf("push outbound frame: %v", err))
		c.kick()
		return err
	}
	return nil
}

// kick closes the connection from outside its own loops. Callers may hold
// broadcast locks, so the teardown runs on a fresh goroutine.
func (c *conn) kick() {
	go c.hub.closeConn(c)
}

// dropMalformed counts a dropped frame and closes the connection once the
// peer has sent too many in a row.
func (c *conn) dropMalformed(err error) {
	c.logger.Warn(fmt.Sprintf("dropping frame: %v", err))
	c.mu.Lock()
	c.malformed++
	tooMany := c.malformed > maxMalformedFrames
	c.mu.Unlock()
	if tooMany {
		c.logger.Error("too many malformed frames, closing connection")
		c.kick()
	}
}

func (c *conn) resetMalformed() {
	c.mu.Lock()
	c.malformed = 0
	c.mu.Unlock()
}

func (c *conn) readLoop() {
	defer func() {
		c.hub.closeConn(c)
		c.ws.Close()
		c.logger.Debug("read loop stopped")
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		format, r, err := c.ws.NextReader()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug(fmt.Sprintf("expected close: %v", err))
				return
			}
			if websocket.IsUnexpectedCloseError(err) {
				c.logger.Error(fmt.Sprintf("unexpected close: %v", err))
				return
			}
			c.logger.Error(fmt.Sprintf("NextReader: %v", err))
			return
		}

		if format != websocket.TextMessage {
			c.dropMalformed(fmt.Errorf("%w: message format %d", ErrMalformedFrame, format))
			continue
		}

		data, err := io.ReadAll(r)
		if err != nil {
			c.logger.Error(fmt.Sprintf("ReadAll: %v", err))
			return
		}

		c.hub.route(c, data)
	}
}

func (c *conn) writeLoop() {
	defer func() {
		c.ticker.Stop()
		c.ws.Close()
		c.logger.Debug("write loop stopped")
	}()

	for {
		select {
		case <-c.out.wake:
			for {
				f, ok := c.out.pop()
				if !ok {
					break
				}
				c.ws.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.ws.WriteMessage(websocket.TextMessage, f.data); err != nil {
					c.logger.Error(fmt.Sprintf("WriteMessage: %v", err))
					return
				}
			}
			if c.out.isClosed() {
				c.ws.SetWriteDeadline(time.Now().Add(writeWait))
				c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		case <-c.ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Error(fmt.Sprintf("WritePing: %v", err))
				return
			}
		}
	}
}
