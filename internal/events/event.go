// Package events 定义会话状态变化事件以及事件的发布方式
// 事件经 Redis 推送给各实例的 WebSocket Hub，也可以写入 Kafka 做审计
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"dealer-support-server/internal/model"
)

// Type 事件类型
type Type string

// 事件类型常量
const (
	TypeSessionCreated Type = "session.created" // 新会话
	TypeMessageCreated Type = "message.created" // 新消息（任意角色）
	TypeStatusChanged  Type = "session.status"  // 状态迁移
	TypeSessionRead    Type = "session.read"    // 客服已读
	TypeSessionDeleted Type = "session.deleted" // 会话被删除
)

// SessionEvent 会话事件
type SessionEvent struct {
	ID         string              `json:"id"`
	Type       Type                `json:"type"`
	SessionID  string              `json:"session_id"`
	Status     model.SessionStatus `json:"status,omitempty"`
	Message    *model.Message      `json:"message,omitempty"`
	AgentID    string              `json:"agent_id,omitempty"`
	AgentName  string              `json:"agent_name,omitempty"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// New 创建事件并分配 ID
func New(typ Type, sessionID string, at time.Time) *SessionEvent {
	return &SessionEvent{
		ID:         uuid.New().String(),
		Type:       typ,
		SessionID:  sessionID,
		OccurredAt: at,
	}
}

// Publisher 事件发布接口
type Publisher interface {
	Publish(ctx context.Context, event *SessionEvent) error
}

// Multi 依次发布到多个 Publisher
// 某一个失败不影响其它，错误合并后返回
type Multi []Publisher

// Publish 实现 Publisher
func (m Multi) Publish(ctx context.Context, event *SessionEvent) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop 丢弃所有事件
type Nop struct{}

// Publish 实现 Publisher
func (Nop) Publish(context.Context, *SessionEvent) error { return nil }
