package core

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var baseTimeout = 2 * time.Second

type hubFixture struct {
	t        *testing.T
	hub      *Hub
	server   *httptest.Server
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	store    *fakeChatStore
	oracle   *fakeOracle
	settings *fakeSettings

	mu      sync.Mutex
	clients []*testClient
}

func setUpHubFixture(t *testing.T) *hubFixture {
	ctx, cancel := context.WithCancel(context.Background())

	f := &hubFixture{
		t:        t,
		cancel:   cancel,
		store:    newFakeChatStore(),
		oracle:   newFakeOracle(),
		settings: &fakeSettings{},
	}

	space := NewSpace(f.oracle, discardLogger)
	rooms := NewCoordinator(f.store, discardLogger)
	f.hub = NewHub(ctx, &f.wg, discardLogger, space, rooms, f.settings)

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hub.Connect(w, r, r.URL.Query().Get("verified"))
	}))
	return f
}

func (f *hubFixture) tearDown() {
	f.mu.Lock()
	clients := append([]*testClient(nil), f.clients...)
	f.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
	f.hub.Close(baseTimeout)
	f.server.Close()
	f.cancel()
}

// connect dials the fixture's server. verified is passed through to the
// handler as the connection's verified identity; empty means unverified.
func (f *hubFixture) connect(verified string) *testClient {
	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	if verified != "" {
		url += "?verified=" + verified
	}
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(f.t, err, "dial")

	c := &testClient{t: f.t, ws: ws, closed: make(chan struct{})}
	go c.readLoop()

	f.mu.Lock()
	f.clients = append(f.clients, c)
	f.mu.Unlock()
	return c
}

// testClient collects every inbound frame as a generic JSON object.
type testClient struct {
	t      *testing.T
	ws     *websocket.Conn
	closed chan struct{}

	mu        sync.Mutex
	frames    []map[string]any
	closeOnce sync.Once
}

func (c *testClient) readLoop() {
	defer c.closeOnce.Do(func() { close(c.closed) })
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var frame map[string]any
		if err := json.Unmarshal(data, &frame); err != nil {
			c.t.Errorf("client received invalid json: %v", err)
			return
		}
		c.mu.Lock()
		c.frames = append(c.frames, frame)
		c.mu.Unlock()
	}
}

func (c *testClient) close() {
	c.ws.Close()
}

func (c *testClient) sendJSON(v any) {
	require.NoError(c.t, c.ws.WriteJSON(v))
}

func (c *testClient) sendRaw(data string) {
	require.NoError(c.t, c.ws.WriteMessage(websocket.TextMessage, []byte(data)))
}

func (c *testClient) framesOfType(typ string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	for _, f := range c.frames {
		if f["type"] == typ {
			out = append(out, f)
		}
	}
	return out
}

// waitForFrame blocks until at least n frames of the type arrived and
// returns them.
func (c *testClient) waitForFrame(typ string, n int) []map[string]any {
	require.Eventually(c.t, func() bool {
		return len(c.framesOfType(typ)) >= n
	}, baseTimeout, baseTimeout/40, "timeout waiting for %d %q frame(s)", n, typ)
	return c.framesOfType(typ)
}

// join performs the handshake and returns the acknowledged session id.
func (c *testClient) join(f JoinFrame) string {
	f.Type = FrameJoin
	c.sendJSON(f)
	acks := c.waitForFrame(FrameJoinAck, 1)
	id, _ := acks[0]["sessionId"].(string)
	require.NotEmpty(c.t, id, "join-ack without sessionId")
	return id
}
