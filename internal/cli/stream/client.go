// Package stream 维护 supportctl 与服务器的客服 WebSocket 连接
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"dealer-support-server/internal/events"
	ws "dealer-support-server/internal/websocket"
)

// 心跳间隔，需要小于服务端的在线状态 TTL
const heartbeatInterval = 30 * time.Second

// ErrClosed 连接已关闭
var ErrClosed = errors.New("连接已关闭")

// Client 客服 WebSocket 客户端
type Client struct {
	url      string
	conn     *websocket.Conn
	sendChan chan []byte
	done     chan struct{}
	mu       sync.Mutex
	running  bool

	onEvent   func(*events.SessionEvent) // 会话事件回调
	onMessage func(*ws.Message)          // 其他消息（ack / error / pong）回调
	onClose   func(error)                // 连接关闭回调
}

// NewClient 创建客户端
// wsBaseURL: WebSocket 地址（如 ws://localhost:8080）
// token: 客服 Access Token
func NewClient(wsBaseURL, token string) *Client {
	return &Client{
		url:      fmt.Sprintf("%s/ws/operator?token=%s", wsBaseURL, url.QueryEscape(token)),
		sendChan: make(chan []byte, 64),
		done:     make(chan struct{}),
	}
}

// OnEvent 设置会话事件回调
func (c *Client) OnEvent(handler func(*events.SessionEvent)) {
	c.onEvent = handler
}

// OnMessage 设置其他消息回调
func (c *Client) OnMessage(handler func(*ws.Message)) {
	c.onMessage = handler
}

// OnClose 设置连接关闭回调，err 为 nil 表示主动断开
func (c *Client) OnClose(handler func(error)) {
	c.onClose = handler
}

// Connect 连接到服务器
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("客户端已在运行")
	}

	conn, resp, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("连接失败 (HTTP %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("连接失败: %w", err)
	}

	c.conn = conn
	c.running = true
	c.done = make(chan struct{})

	go c.readPump()
	go c.writePump()
	return nil
}

// Done 连接关闭后返回
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Disconnect 主动断开连接
func (c *Client) Disconnect() {
	c.close(nil)
}

func (c *Client) close(cause error) {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.done)
	if cause == nil {
		// WriteControl 可以与 writePump 并发调用
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	}
	c.conn.Close()
	onClose := c.onClose
	c.mu.Unlock()

	if onClose != nil {
		onClose(cause)
	}
}

// Send 发送消息
func (c *Client) Send(msg *ws.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	select {
	case <-done:
		return ErrClosed
	default:
	}

	select {
	case c.sendChan <- data:
		return nil
	case <-done:
		return ErrClosed
	default:
		return fmt.Errorf("发送缓冲区已满")
	}
}

// SendAgentMessage 以客服身份发送消息
func (c *Client) SendAgentMessage(sessionID, message string) error {
	return c.Send(ws.NewMessage(ws.TypeAgentMessage, &ws.AgentMessagePayload{SessionID: sessionID, Message: message}))
}

// readPump 读取消息
func (c *Client) readPump() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.close(err)
			return
		}

		var msg ws.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		if msg.Type == ws.TypeSessionEvent {
			var event events.SessionEvent
			if err := json.Unmarshal(msg.Payload, &event); err == nil && c.onEvent != nil {
				c.onEvent(&event)
			}
			continue
		}
		if c.onMessage != nil {
			c.onMessage(&msg)
		}
	}
}

// writePump 写入消息并定时发送心跳
func (c *Client) writePump() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	done := c.Done()
	for {
		select {
		case <-done:
			return

		case data := <-c.sendChan:
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close(err)
				return
			}

		case <-ticker.C:
			data, _ := json.Marshal(ws.NewMessage(ws.TypeHeartbeat, nil))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close(err)
				return
			}
		}
	}
}
