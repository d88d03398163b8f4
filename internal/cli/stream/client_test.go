package stream

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealer-support-server/internal/events"
	"dealer-support-server/internal/model"
	ws "dealer-support-server/internal/websocket"
)

// newServer 模拟 /ws/operator：推送一个会话事件，并把收到的第一条消息转发到 received
func newServer(t *testing.T, received chan<- *ws.Message) (*httptest.Server, *string) {
	t.Helper()
	var token string
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/operator" {
			http.NotFound(w, r)
			return
		}
		token = r.URL.Query().Get("token")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		event := events.New(events.TypeStatusChanged, "s-1", time.Now())
		event.Status = model.SessionStatusPendingAgent
		_ = conn.WriteJSON(ws.NewMessageWithID(ws.TypeSessionEvent, event, event.ID))
		_ = conn.WriteJSON(ws.NewMessageWithID(ws.TypeAck, nil, "a1"))

		var msg ws.Message
		if err := conn.ReadJSON(&msg); err == nil {
			received <- &msg
		}
		// 等待客户端断开
		_, _, _ = conn.ReadMessage()
	}))
	t.Cleanup(server.Close)
	return server, &token
}

func TestClientReceivesEventsAndSends(t *testing.T) {
	received := make(chan *ws.Message, 1)
	server, token := newServer(t, received)

	c := NewClient("ws"+strings.TrimPrefix(server.URL, "http"), "tok en")
	gotEvent := make(chan *events.SessionEvent, 1)
	gotMsg := make(chan *ws.Message, 1)
	c.OnEvent(func(e *events.SessionEvent) { gotEvent <- e })
	c.OnMessage(func(m *ws.Message) { gotMsg <- m })

	require.NoError(t, c.Connect())
	defer c.Disconnect()

	select {
	case e := <-gotEvent:
		assert.Equal(t, "s-1", e.SessionID)
		assert.Equal(t, model.SessionStatusPendingAgent, e.Status)
	case <-time.After(3 * time.Second):
		t.Fatal("no event received")
	}

	select {
	case m := <-gotMsg:
		assert.Equal(t, ws.TypeAck, m.Type)
		assert.Equal(t, "a1", m.MessageID)
	case <-time.After(3 * time.Second):
		t.Fatal("no ack received")
	}

	require.NoError(t, c.SendAgentMessage("s-1", "hello"))
	select {
	case m := <-received:
		assert.Equal(t, ws.TypeAgentMessage, m.Type)
		assert.Contains(t, string(m.Payload), `"session_id":"s-1"`)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not receive message")
	}
	assert.Equal(t, "tok en", *token)
}

func TestDisconnect(t *testing.T) {
	server, _ := newServer(t, make(chan *ws.Message, 1))

	c := NewClient("ws"+strings.TrimPrefix(server.URL, "http"), "t")
	closed := make(chan error, 1)
	c.OnClose(func(err error) { closed <- err })
	require.NoError(t, c.Connect())

	c.Disconnect()
	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("close callback not called")
	}
	<-c.Done()
	assert.ErrorIs(t, c.Send(ws.NewMessage(ws.TypeHeartbeat, nil)), ErrClosed)

	// 重复断开无副作用
	c.Disconnect()
}

func TestConnectRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := NewClient("ws"+strings.TrimPrefix(server.URL, "http"), "bad")
	err := c.Connect()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
