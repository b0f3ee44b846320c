package websocket

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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"crunchcli/internal/config"
	"crunchcli/pkg/contracts/events"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type received struct {
	Type    events.MessageType `json:"type"`
	TraceID string             `json:"trace_id"`
	Data    json.RawMessage    `json:"data"`
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(nil, nil)
	go hub.Run(context.Background())
	t.Cleanup(hub.Stop)
	return hub
}

func dial(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(NewHandler(hub, config.WebSocketConfig{}, nil))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg received
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_ConnectAndBroadcast(t *testing.T) {
	hub := startHub(t)
	conn := dial(t, hub)

	hello := readMessage(t, conn)
	assert.Equal(t, events.MessageTypeConnect, hello.Type)
	assert.Contains(t, string(hello.Data), `"status":"connected"`)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(events.MessageTypeBatchSnapshot, events.BatchSnapshot{BatchID: "b1", Status: "running", Progress: 40})

	msg := readMessage(t, conn)
	assert.Equal(t, events.MessageTypeBatchSnapshot, msg.Type)
	var snap events.BatchSnapshot
	require.NoError(t, json.Unmarshal(msg.Data, &snap))
	assert.Equal(t, "b1", snap.BatchID)
	assert.Equal(t, 40, snap.Progress)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHub_StopClosesClients(t *testing.T) {
	hub := NewHub(nil, nil)
	go hub.Run(context.Background())
	conn := dial(t, hub)
	readMessage(t, conn)

	hub.Stop()
	hub.Stop()
	assert.Equal(t, 0, hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	assert.Error(t, hub.Register(NewClient(hub, newFakeConn(), config.WebSocketConfig{}, "", nil)))
}

func TestHub_RunEndsWithContext(t *testing.T) {
	hub := NewHub(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
	hub.Stop()
}

func TestHandler_RejectsCrossOrigin(t *testing.T) {
	hub := startHub(t)
	srv := httptest.NewServer(NewHandler(hub, config.WebSocketConfig{}, nil))
	defer srv.Close()

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, hub.ClientCount())
}

// fakeConn blocks reads until closed and records writes.
type fakeConn struct {
	mu      sync.Mutex
	written [][]byte
	closed  chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if messageType == websocket.TextMessage {
		c.written = append(c.written, data)
	}
	return nil
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetReadLimit(int64)                {}
func (c *fakeConn) SetPongHandler(func(string) error) {}
func (c *fakeConn) RemoteAddr() string                { return "pipe" }

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.written)
}

func TestHub_SlowClientIsDropped(t *testing.T) {
	hub := startHub(t)
	conn := newFakeConn()
	client := NewClient(hub, conn, config.WebSocketConfig{}, "trace-1", nil)
	require.NoError(t, hub.Register(client))
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	// no write pump runs, so the send buffer fills up
	require.Eventually(t, func() bool {
		hub.Broadcast(events.MessageTypeBatchSnapshot, events.BatchSnapshot{BatchID: "b"})
		return hub.ClientCount() == 0
	}, 5*time.Second, time.Millisecond)

	// the closed send channel ends the write pump after draining the buffer
	client.WritePump()
	assert.Equal(t, sendBuffer, conn.count())
}
