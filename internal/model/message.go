// Package model 定义了与数据库表对应的数据结构
package model

import (
	"time"
)

// MessageRole 消息角色
type MessageRole string

// 消息角色常量
const (
	MessageRoleUser      MessageRole = "user"      // 访客消息
	MessageRoleAssistant MessageRole = "assistant" // 自动助手回复
	MessageRoleAgent     MessageRole = "agent"     // 人工客服回复
	MessageRoleSystem    MessageRole = "system"    // 系统消息（转接、结束等）
)

// Valid 判断角色是否合法
func (r MessageRole) Valid() bool {
	switch r {
	case MessageRoleUser, MessageRoleAssistant, MessageRoleAgent, MessageRoleSystem:
		return true
	}
	return false
}

// Message 消息模型
// 对应数据库表 support_messages
// 消息只追加，除随会话一起删除外不会被修改或删除
type Message struct {
	// ID 消息唯一标识，自增主键
	// 时间戳相同时用于保证顺序
	ID int64 `gorm:"primaryKey" json:"id"`

	// SessionID 所属会话ID
	SessionID string `gorm:"size:64;index;not null" json:"session_id"`

	// Role 消息角色
	Role MessageRole `gorm:"size:20;not null" json:"role"`

	// Content 消息内容
	Content string `gorm:"type:text;not null" json:"content"`

	// SenderName 发送者名称，仅 agent 消息有值
	SenderName *string `gorm:"size:255" json:"sender_name,omitempty"`

	// Timestamp 消息时间，会话内按此字段全序
	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
}

// TableName 指定表名
func (Message) TableName() string {
	return "support_messages"
}
