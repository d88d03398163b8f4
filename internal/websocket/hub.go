// Package websocket 提供 WebSocket 通信功能
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"dealer-support-server/internal/events"
	"dealer-support-server/internal/model"
	"dealer-support-server/internal/service"
	"dealer-support-server/pkg/response"
)

// ChatActions Hub 需要的会话操作
type ChatActions interface {
	SubmitVisitorMessage(ctx context.Context, req *service.VisitorMessageRequest) (*service.VisitorMessageResult, error)
	SubmitAgentMessage(ctx context.Context, sessionID, message, agentID, agentName string) error
	ClaimSession(ctx context.Context, sessionID, agentID, agentName string) (*model.Session, error)
	MarkRead(ctx context.Context, sessionID string) error
}

// Presence 客服在线状态存储
type Presence interface {
	SetOperatorOnline(ctx context.Context, operatorID int64) error
	SetOperatorOffline(ctx context.Context, operatorID int64) error
	UpdateHeartbeat(ctx context.Context, operatorID int64) error
}

// Hub 是 WebSocket 连接的中心管理器
// 负责：
// 1. 管理所有客户端连接
// 2. 把会话事件推送给对应的访客和所有在线客服
// 3. 同步客服在线状态
type Hub struct {
	// 访客客户端映射：sessionID -> []*Client
	// 同一个会话可能在多个标签页打开
	visitors map[string][]*Client

	// 客服客户端映射：operatorID -> []*Client
	operators map[int64][]*Client

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	// 互斥锁，保护并发访问
	mu sync.RWMutex

	chat     ChatActions
	presence Presence // 可以为 nil
	log      *zap.Logger
}

// NewHub 创建 Hub 实例
func NewHub(chat ChatActions, presence Presence, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		visitors:   make(map[string][]*Client),
		operators:  make(map[int64][]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		chat:       chat,
		presence:   presence,
		log:        log.Named("ws"),
	}
}

// Run 启动 Hub 的主循环
// 应该在单独的 goroutine 中运行，ctx 取消后关闭所有连接
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

// Register 注册客户端（供外部调用）
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

// Unregister 注销客户端（供外部调用）
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch client.clientType {
	case ClientTypeVisitor:
		h.visitors[client.sessionID] = append(h.visitors[client.sessionID], client)
		h.log.Debug("visitor connected", zap.String("session_id", client.sessionID))

	case ClientTypeOperator:
		first := len(h.operators[client.operatorID]) == 0
		h.operators[client.operatorID] = append(h.operators[client.operatorID], client)
		if first && h.presence != nil {
			go func(id int64) {
				if err := h.presence.SetOperatorOnline(context.Background(), id); err != nil {
					h.log.Warn("set operator online failed", zap.Int64("operator_id", id), zap.Error(err))
				}
			}(client.operatorID)
		}
		h.log.Info("operator connected", zap.Int64("operator_id", client.operatorID))
	}
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch client.clientType {
	case ClientTypeVisitor:
		if removeClient(h.visitors, client.sessionID, client) {
			h.log.Debug("visitor disconnected", zap.String("session_id", client.sessionID))
		}

	case ClientTypeOperator:
		if removeClient(h.operators, client.operatorID, client) && len(h.operators[client.operatorID]) == 0 && h.presence != nil {
			// 最后一个连接断开才算离线
			go func(id int64) {
				if err := h.presence.SetOperatorOffline(context.Background(), id); err != nil {
					h.log.Warn("set operator offline failed", zap.Int64("operator_id", id), zap.Error(err))
				}
			}(client.operatorID)
		}
		h.log.Info("operator disconnected", zap.Int64("operator_id", client.operatorID))
	}

	client.Close()
}

// removeClient 从映射中移除连接，列表为空时删除 key
func removeClient[K comparable](m map[K][]*Client, key K, client *Client) bool {
	clients := m[key]
	for i, c := range clients {
		if c == client {
			m[key] = append(clients[:i], clients[i+1:]...)
			if len(m[key]) == 0 {
				delete(m, key)
			}
			return true
		}
	}
	return false
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.visitors {
		for _, c := range clients {
			c.Close()
		}
	}
	for _, clients := range h.operators {
		for _, c := range clients {
			c.Close()
		}
	}
	h.visitors = make(map[string][]*Client)
	h.operators = make(map[int64][]*Client)
}

// ==================== 事件推送 ====================

// Publish 把事件推送给本实例上的连接，实现 events.Publisher
// 单实例部署时直接作为会话服务的发布器使用
func (h *Hub) Publish(_ context.Context, event *events.SessionEvent) error {
	h.Dispatch(event)
	return nil
}

// Dispatch 推送会话事件
// 访客只收到自己会话的事件，客服收到全部事件
func (h *Hub) Dispatch(event *events.SessionEvent) {
	msg := NewMessageWithID(TypeSessionEvent, event, event.ID)

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.visitors[event.SessionID] {
		c.SendMessage(msg)
	}
	for _, clients := range h.operators {
		for _, c := range clients {
			c.SendMessage(msg)
		}
	}
}

// Consume 从 Redis 订阅中读取事件并推送
// 多实例部署时每个实例都订阅同一个频道，channel 关闭或 ctx 取消后返回
func (h *Hub) Consume(ctx context.Context, ch <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			var event events.SessionEvent
			if err := json.Unmarshal([]byte(m.Payload), &event); err != nil {
				h.log.Warn("invalid session event", zap.Error(err))
				continue
			}
			h.Dispatch(&event)
		}
	}
}

// VisitorCount 当前连接到会话的访客数
func (h *Hub) VisitorCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.visitors[sessionID])
}

// OperatorCount 当前在线的客服数
func (h *Hub) OperatorCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.operators)
}

// ==================== 客户端消息处理 ====================

// handleMessage 处理客户端发来的消息
func (h *Hub) handleMessage(c *Client, msg *Message) {
	switch msg.Type {
	case TypeHeartbeat:
		if c.clientType == ClientTypeOperator && h.presence != nil {
			if err := h.presence.UpdateHeartbeat(context.Background(), c.operatorID); err != nil {
				h.log.Warn("update heartbeat failed", zap.Int64("operator_id", c.operatorID), zap.Error(err))
			}
		}
		c.SendMessage(NewMessageWithID(TypePong, nil, msg.MessageID))

	case TypeVisitorMessage:
		if c.clientType != ClientTypeVisitor {
			h.replyError(c, msg, response.CodeForbidden, "仅访客可以发送该消息")
			return
		}
		h.handleVisitorMessage(c, msg)

	case TypeAgentMessage, TypeSessionClaim, TypeSessionRead:
		if c.clientType != ClientTypeOperator {
			h.replyError(c, msg, response.CodeForbidden, "仅客服可以发送该消息")
			return
		}
		h.handleOperatorAction(c, msg)

	default:
		h.replyError(c, msg, response.CodeBadRequest, "未知的消息类型: "+msg.Type)
	}
}

// handleVisitorMessage 访客通过 WebSocket 发送消息
func (h *Hub) handleVisitorMessage(c *Client, msg *Message) {
	var payload VisitorMessagePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		h.replyError(c, msg, response.CodeBadRequest, "消息格式错误")
		return
	}

	result, err := h.chat.SubmitVisitorMessage(context.Background(), &service.VisitorMessageRequest{
		SessionID: c.sessionID,
		Message:   payload.Message,
		Context:   payload.Context,
		UserInfo:  payload.UserInfo,
	})
	if err != nil {
		h.replyServiceError(c, msg, err, false)
		return
	}
	c.SendMessage(NewMessageWithID(TypeVisitorReply, result, msg.MessageID))
}

// handleOperatorAction 客服通过 WebSocket 发消息、接入或标记已读
func (h *Hub) handleOperatorAction(c *Client, msg *Message) {
	ctx := context.Background()
	agentID := strconv.FormatInt(c.operatorID, 10)

	var err error
	switch msg.Type {
	case TypeAgentMessage:
		var payload AgentMessagePayload
		if err = json.Unmarshal(msg.Payload, &payload); err != nil {
			h.replyError(c, msg, response.CodeBadRequest, "消息格式错误")
			return
		}
		err = h.chat.SubmitAgentMessage(ctx, payload.SessionID, payload.Message, agentID, c.operatorName)

	case TypeSessionClaim, TypeSessionRead:
		var payload SessionRefPayload
		if err = json.Unmarshal(msg.Payload, &payload); err != nil {
			h.replyError(c, msg, response.CodeBadRequest, "消息格式错误")
			return
		}
		if msg.Type == TypeSessionClaim {
			_, err = h.chat.ClaimSession(ctx, payload.SessionID, agentID, c.operatorName)
		} else {
			err = h.chat.MarkRead(ctx, payload.SessionID)
		}
	}

	if err != nil {
		h.replyServiceError(c, msg, err, true)
		return
	}
	c.SendMessage(NewMessageWithID(TypeAck, nil, msg.MessageID))
}

func (h *Hub) replyError(c *Client, req *Message, code int, message string) {
	c.SendMessage(NewMessageWithID(TypeError, &ErrorPayload{Code: code, Message: message}, req.MessageID))
}

// replyServiceError 与 HTTP 接口相同的错误映射
func (h *Hub) replyServiceError(c *Client, req *Message, err error, detail bool) {
	var storeErr *service.StoreError
	switch {
	case errors.Is(err, service.ErrValidation):
		h.replyError(c, req, response.CodeBadRequest, err.Error())
	case errors.Is(err, service.ErrSessionNotFound):
		h.replyError(c, req, response.CodeSessionNotFound, err.Error())
	case errors.Is(err, service.ErrSessionClaimed):
		h.replyError(c, req, response.CodeSessionClaimed, err.Error())
	case errors.As(err, &storeErr) && detail:
		h.replyError(c, req, response.CodeInternalError, storeErr.Error())
	default:
		h.log.Error("websocket action failed", zap.String("type", req.Type), zap.Error(err))
		h.replyError(c, req, response.CodeInternalError, "服务暂时不可用，请稍后再试")
	}
}
