// Package model 定义了与数据库表对应的数据结构
package model

import (
	"time"
)

// SessionStatus 会话状态
type SessionStatus string

// 会话状态常量
// 状态流转: ai -> pending_agent -> with_agent -> resolved
// with_agent 可以交还给 ai
const (
	SessionStatusAI           SessionStatus = "ai"            // 自动助手接待中
	SessionStatusPendingAgent SessionStatus = "pending_agent" // 等待人工客服接入
	SessionStatusWithAgent    SessionStatus = "with_agent"    // 人工客服处理中
	SessionStatusResolved     SessionStatus = "resolved"      // 已解决
)

// Valid 判断状态值是否合法
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusAI, SessionStatusPendingAgent, SessionStatusWithAgent, SessionStatusResolved:
		return true
	}
	return false
}

// AgentHandling 是否处于人工处理阶段（等待接入或已接入）
// 这两种状态下自动助手不得回复
func (s SessionStatus) AgentHandling() bool {
	return s == SessionStatusPendingAgent || s == SessionStatusWithAgent
}

// Session 客服会话模型
// 对应数据库表 support_sessions
// 表示访客与网站客服的一次完整对话
type Session struct {
	// ID 会话唯一标识，由挂件生成或服务端分配
	// 同时作为所有消息的外键
	ID string `gorm:"primaryKey;size:64" json:"id"`

	// UserID / UserEmail / UserName 访客身份，匿名访客为空
	// 访客中途登录后会补全，但不会被覆盖
	UserID    *string `gorm:"size:128;index" json:"user_id,omitempty"`
	UserEmail *string `gorm:"size:255" json:"user_email,omitempty"`
	UserName  *string `gorm:"size:255" json:"user_name,omitempty"`

	// Context 创建会话时挂件传入的上下文（当前页面、正在浏览的车辆等）
	// 仅存储，不参与业务逻辑
	Context *string `gorm:"type:text" json:"context,omitempty"`

	// Status 会话状态
	Status SessionStatus `gorm:"size:20;not null;default:ai;index" json:"status"`

	// EscalationCount 访客请求人工的次数
	EscalationCount int `gorm:"not null;default:0" json:"escalation_count"`

	// AgentID / AgentName 接入的客服，仅在 with_agent 状态下有值
	AgentID   *string `gorm:"size:64;index" json:"agent_id,omitempty"`
	AgentName *string `gorm:"size:255" json:"agent_name,omitempty"`

	// UnreadByAgent 客服未读的访客消息数，客服查看会话后清零
	UnreadByAgent int `gorm:"not null;default:0" json:"unread_by_agent"`

	// Resolved 冗余字段，等价于 status == resolved，方便查询
	Resolved bool `gorm:"not null;default:false" json:"resolved"`

	// PendingSince 进入 pending_agent 的时间，离开该状态后清空
	// 超时巡检以此计算等待时长，访客在等待期间继续发消息不会刷新它
	PendingSince *time.Time `gorm:"index" json:"pending_since,omitempty"`

	// CreatedAt 创建时间
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt 最后更新时间
	UpdatedAt time.Time `json:"updated_at"`

	// LastMessageAt 最后一条消息的时间
	// 用于不活跃判断以及会话列表排序
	LastMessageAt time.Time `gorm:"index" json:"last_message_at"`
}

// TableName 指定表名
func (Session) TableName() string {
	return "support_sessions"
}

// HasIdentity 会话是否已经绑定访客身份
func (s *Session) HasIdentity() bool {
	return s.UserID != nil && *s.UserID != ""
}
