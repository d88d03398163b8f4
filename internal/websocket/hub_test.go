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

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealer-support-server/internal/events"
	"dealer-support-server/internal/model"
	"dealer-support-server/internal/service"
	"dealer-support-server/pkg/jwt"
	"dealer-support-server/pkg/response"
)

type fakeChat struct {
	mu          sync.Mutex
	visitorMsgs []*service.VisitorMessageRequest
	agentMsgs   []string
	agentNames  []string
	reads       []string
	claimErr    error
}

func (f *fakeChat) SubmitVisitorMessage(_ context.Context, req *service.VisitorMessageRequest) (*service.VisitorMessageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visitorMsgs = append(f.visitorMsgs, req)
	reply := "echo: " + req.Message
	return &service.VisitorMessageResult{Reply: &reply, Status: model.SessionStatusAI}, nil
}

func (f *fakeChat) SubmitAgentMessage(_ context.Context, sessionID, message, agentID, agentName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.agentMsgs = append(f.agentMsgs, sessionID+"|"+message+"|"+agentID)
	f.agentNames = append(f.agentNames, agentName)
	return nil
}

func (f *fakeChat) ClaimSession(_ context.Context, sessionID, agentID, agentName string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	return &model.Session{ID: sessionID, Status: model.SessionStatusWithAgent}, nil
}

func (f *fakeChat) MarkRead(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, sessionID)
	return nil
}

type fakePresence struct {
	mu     sync.Mutex
	online map[int64]bool
	beats  int
}

func (p *fakePresence) SetOperatorOnline(_ context.Context, id int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[id] = true
	return nil
}

func (p *fakePresence) SetOperatorOffline(_ context.Context, id int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.online, id)
	return nil
}

func (p *fakePresence) UpdateHeartbeat(context.Context, int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.beats++
	return nil
}

func (p *fakePresence) isOnline(id int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[id]
}

type env struct {
	hub      *Hub
	chat     *fakeChat
	presence *fakePresence
	jwt      *jwt.JWTService
	server   *httptest.Server
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	chat := &fakeChat{}
	presence := &fakePresence{online: map[int64]bool{}}
	hub := NewHub(chat, presence, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	jwtService := jwt.NewJWTService("0123456789abcdef0123456789abcdef", time.Hour, 24*time.Hour)
	router := gin.New()
	NewHandler(hub, jwtService, nil, nil).RegisterRoutes(router)
	server := httptest.NewServer(router)

	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return &env{hub: hub, chat: chat, presence: presence, jwt: jwtService, server: server}
}

func (e *env) dial(t *testing.T, path string) *gorillaws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + path
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (e *env) operatorToken(t *testing.T, id int64, name string) string {
	t.Helper()
	token, err := e.jwt.GenerateAccessToken(jwt.Identity{OperatorID: id, Username: "op", DisplayName: name, Role: model.OperatorRoleAgent})
	require.NoError(t, err)
	return token
}

func readMessage(t *testing.T, conn *gorillaws.Conn) *Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return &msg
}

func TestVisitorReceivesOwnSessionEvents(t *testing.T) {
	e := newEnv(t)
	mine := e.dial(t, "/ws/visitor?session_id=s-1")
	other := e.dial(t, "/ws/visitor?session_id=s-2")

	require.Eventually(t, func() bool {
		return e.hub.VisitorCount("s-1") == 1 && e.hub.VisitorCount("s-2") == 1
	}, 2*time.Second, 10*time.Millisecond)

	event := events.New(events.TypeStatusChanged, "s-1", time.Now())
	event.Status = model.SessionStatusWithAgent
	require.NoError(t, e.hub.Publish(context.Background(), event))

	msg := readMessage(t, mine)
	assert.Equal(t, TypeSessionEvent, msg.Type)
	assert.Equal(t, event.ID, msg.MessageID)
	var got events.SessionEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &got))
	assert.Equal(t, model.SessionStatusWithAgent, got.Status)

	// 其他会话的访客收不到
	require.NoError(t, other.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := other.ReadMessage()
	assert.Error(t, err)
}

func TestVisitorSendsMessage(t *testing.T) {
	e := newEnv(t)
	conn := e.dial(t, "/ws/visitor?session_id=s-9")

	req := NewMessageWithID(TypeVisitorMessage, &VisitorMessagePayload{Message: "hello"}, "req-1")
	require.NoError(t, conn.WriteJSON(req))

	msg := readMessage(t, conn)
	assert.Equal(t, TypeVisitorReply, msg.Type)
	assert.Equal(t, "req-1", msg.MessageID)
	var result service.VisitorMessageResult
	require.NoError(t, json.Unmarshal(msg.Payload, &result))
	require.NotNil(t, result.Reply)
	assert.Equal(t, "echo: hello", *result.Reply)

	e.chat.mu.Lock()
	assert.Equal(t, "s-9", e.chat.visitorMsgs[0].SessionID)
	e.chat.mu.Unlock()

	// 访客不能冒充客服
	require.NoError(t, conn.WriteJSON(NewMessage(TypeAgentMessage, &AgentMessagePayload{SessionID: "s-9", Message: "x"})))
	msg = readMessage(t, conn)
	assert.Equal(t, TypeError, msg.Type)
	var denied ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &denied))
	assert.Equal(t, response.CodeForbidden, denied.Code)
}

func TestOperatorConnection(t *testing.T) {
	e := newEnv(t)

	// 无效 Token 拒绝升级
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws/operator?token=bad"
	_, resp, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn := e.dial(t, "/ws/operator?token="+e.operatorToken(t, 7, "Maria"))
	require.Eventually(t, func() bool { return e.presence.isOnline(7) }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(NewMessageWithID(TypeHeartbeat, nil, "hb")))
	msg := readMessage(t, conn)
	assert.Equal(t, TypePong, msg.Type)
	assert.Equal(t, "hb", msg.MessageID)

	require.NoError(t, conn.WriteJSON(NewMessageWithID(TypeAgentMessage, &AgentMessagePayload{SessionID: "s-1", Message: "on my way"}, "a1")))
	msg = readMessage(t, conn)
	assert.Equal(t, TypeAck, msg.Type)
	assert.Equal(t, "a1", msg.MessageID)

	require.NoError(t, conn.WriteJSON(NewMessage(TypeSessionRead, &SessionRefPayload{SessionID: "s-1"})))
	assert.Equal(t, TypeAck, readMessage(t, conn).Type)

	e.chat.mu.Lock()
	assert.Equal(t, []string{"s-1|on my way|7"}, e.chat.agentMsgs)
	assert.Equal(t, []string{"Maria"}, e.chat.agentNames)
	assert.Equal(t, []string{"s-1"}, e.chat.reads)
	e.chat.mu.Unlock()

	e.chat.mu.Lock()
	e.chat.claimErr = service.ErrSessionClaimed
	e.chat.mu.Unlock()
	require.NoError(t, conn.WriteJSON(NewMessage(TypeSessionClaim, &SessionRefPayload{SessionID: "s-1"})))
	msg = readMessage(t, conn)
	assert.Equal(t, TypeError, msg.Type)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, response.CodeSessionClaimed, payload.Code)

	// 客服收到所有会话的事件
	require.NoError(t, e.hub.Publish(context.Background(), events.New(events.TypeMessageCreated, "any", time.Now())))
	assert.Equal(t, TypeSessionEvent, readMessage(t, conn).Type)

	// 断开后标记离线
	conn.Close()
	require.Eventually(t, func() bool { return !e.presence.isOnline(7) }, 2*time.Second, 10*time.Millisecond)
}

func TestConsumeRedisMessages(t *testing.T) {
	e := newEnv(t)
	conn := e.dial(t, "/ws/visitor?session_id=s-5")
	require.Eventually(t, func() bool { return e.hub.VisitorCount("s-5") == 1 }, 2*time.Second, 10*time.Millisecond)

	ch := make(chan *redis.Message, 2)
	event := events.New(events.TypeSessionRead, "s-5", time.Now())
	data, err := json.Marshal(event)
	require.NoError(t, err)
	ch <- &redis.Message{Channel: "support:events", Payload: "not json"}
	ch <- &redis.Message{Channel: "support:events", Payload: string(data)}
	close(ch)

	e.hub.Consume(context.Background(), ch)

	msg := readMessage(t, conn)
	assert.Equal(t, TypeSessionEvent, msg.Type)
	assert.Equal(t, event.ID, msg.MessageID)
}
