// Package websocket 提供 WebSocket 通信功能
// 实现访客挂件、后台客服控制台与服务端之间的实时推送
package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"dealer-support-server/internal/service"
)

// MessageType 消息类型常量
const (
	// 客户端 → 服务端
	TypeHeartbeat      = "heartbeat"       // 心跳
	TypeVisitorMessage = "visitor:message" // 访客发送消息
	TypeAgentMessage   = "agent:message"   // 客服发送消息
	TypeSessionClaim   = "session:claim"   // 客服接入会话
	TypeSessionRead    = "session:read"    // 客服已读

	// 服务端 → 客户端
	TypeSessionEvent = "session:event" // 会话事件（新消息、状态变化等）
	TypeVisitorReply = "visitor:reply" // 访客消息处理结果
	TypeAck          = "ack"           // 客服操作成功

	// 通用
	TypeError = "error" // 错误消息
	TypePong  = "pong"  // 心跳响应
)

// Message WebSocket 消息结构
// 所有消息都使用这个统一的结构
type Message struct {
	Type      string          `json:"type"`                 // 消息类型
	Payload   json.RawMessage `json:"payload,omitempty"`    // 消息内容
	Timestamp int64           `json:"timestamp"`            // 时间戳（毫秒）
	MessageID string          `json:"message_id,omitempty"` // 消息ID，用于追踪
}

// NewMessage 创建新消息
// payload 序列化失败时消息不带内容
func NewMessage(msgType string, payload interface{}) *Message {
	return NewMessageWithID(msgType, payload, uuid.New().String())
}

// NewMessageWithID 创建带消息ID的新消息
// 回复客户端请求时沿用请求的 message_id
func NewMessageWithID(msgType string, payload interface{}, messageID string) *Message {
	msg := &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		MessageID: messageID,
	}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			msg.Payload = data
		}
	}
	return msg
}

// ==================== Payload 类型定义 ====================

// VisitorMessagePayload 访客消息 Payload
// 会话 ID 取自连接参数
type VisitorMessagePayload struct {
	Message  string            `json:"message"`
	Context  string            `json:"context,omitempty"`
	UserInfo *service.UserInfo `json:"user_info,omitempty"`
}

// AgentMessagePayload 客服消息 Payload
type AgentMessagePayload struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// SessionRefPayload 只带会话 ID 的 Payload
// 用于 session:claim 和 session:read
type SessionRefPayload struct {
	SessionID string `json:"session_id"`
}

// ErrorPayload 错误消息 Payload
type ErrorPayload struct {
	Code    int    `json:"code"`    // 错误码
	Message string `json:"message"` // 错误信息
}
