// Package websocket 提供 WebSocket 通信功能
package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dealer-support-server/pkg/response"
)


// ClientType 客户端类型
type ClientType int

const (
	ClientTypeVisitor  ClientType = iota // 访客挂件
	ClientTypeOperator                   // 后台客服
)

func (t ClientType) String() string {
	if t == ClientTypeOperator {
		return "operator"
	}
	return "visitor"
}

// Client 表示一个 WebSocket 客户端连接
type Client struct {
	hub          *Hub            // 所属的 Hub
	conn         *websocket.Conn // WebSocket 连接
	send         chan []byte     // 发送消息的通道
	clientType   ClientType      // 客户端类型
	sessionID    string          // 会话ID（仅访客有值）
	operatorID   int64           // 客服ID（仅客服有值）
	operatorName string          // 客服显示名（仅客服有值）
	mu           sync.Mutex      // 保护 send 通道的关闭
	closed       bool
}

// 连接配置常量
const (
	// 写超时时间
	writeWait = 10 * time.Second

	// 等待 Pong 响应的超时时间
	pongWait = 60 * time.Second

	// 发送 Ping 的间隔（必须小于 pongWait）
	pingPeriod = (pongWait * 9) / 10

	// 消息最大大小（64KB）
	maxMessageSize = 64 * 1024
)

// NewVisitorClient 创建访客客户端
func NewVisitorClient(hub *Hub, conn *websocket.Conn, sessionID string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, 256),
		clientType: ClientTypeVisitor,
		sessionID:  sessionID,
	}
}

// NewOperatorClient 创建客服客户端
func NewOperatorClient(hub *Hub, conn *websocket.Conn, operatorID int64, operatorName string) *Client {
	return &Client{
		hub:          hub,
		conn:         conn,
		send:         make(chan []byte, 256),
		clientType:   ClientTypeOperator,
		operatorID:   operatorID,
		operatorName: operatorName,
	}
}

// ReadPump 读取 WebSocket 消息的 goroutine
// 每个客户端连接启动一个 ReadPump
// 负责从 WebSocket 读取消息并交给 Hub 处理
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	// 每次收到 Pong，重置读取超时
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("websocket read error", zap.Stringer("client", c.clientType), zap.Error(err))
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.SendMessage(NewMessage(TypeError, &ErrorPayload{Code: response.CodeBadRequest, Message: "消息格式错误"}))
			continue
		}

		c.hub.handleMessage(c, &msg)
	}
}

// WritePump 写入 WebSocket 消息的 goroutine
// 负责从 send 通道读取消息并写入 WebSocket，同时定时发送 Ping
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				// send 通道已关闭
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage 向客户端发送消息
// 发送缓冲区满时丢弃消息，客户端可以通过 HTTP 接口补拉
func (c *Client) SendMessage(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	select {
	case c.send <- data:
	default:
		c.hub.log.Warn("client send buffer full, dropping message",
			zap.Stringer("client", c.clientType),
			zap.String("type", msg.Type))
	}
}

// Close 关闭发送通道，WritePump 随之退出
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
