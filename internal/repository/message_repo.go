// Package repository 提供数据访问层的实现
package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"dealer-support-server/internal/model"
)

// MessageRepository 消息数据访问层
// 负责消息相关的所有数据库操作
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建 MessageRepository 实例
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create 追加一条消息
// 参数:
//   - ctx: 上下文
//   - message: 消息对象，ID 会被自动填充；Timestamp 为空时使用当前时间
//
// 返回:
//   - error: 数据库错误
func (r *MessageRepository) Create(ctx context.Context, message *model.Message) error {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	return r.db.WithContext(ctx).Create(message).Error
}

// ListBySessionID 获取会话的所有消息
// 按时间正序排列，时间相同按 ID 排列
// 参数:
//   - ctx: 上下文
//   - sessionID: 会话ID
//
// 返回:
//   - []model.Message: 消息列表
//   - error: 数据库错误
func (r *MessageRepository) ListBySessionID(ctx context.Context, sessionID string) ([]model.Message, error) {
	var messages []model.Message
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp ASC").
		Order("id ASC").
		Find(&messages).Error
	return messages, err
}

// ListBySessionIDAfter 获取某条消息之后的新消息
// 客户端断线重连后用于补齐
// 参数:
//   - ctx: 上下文
//   - sessionID: 会话ID
//   - afterID: 已收到的最后一条消息ID，0 表示从头开始
//
// 返回:
//   - []model.Message: 消息列表（按时间正序）
//   - error: 数据库错误
func (r *MessageRepository) ListBySessionIDAfter(ctx context.Context, sessionID string, afterID int64) ([]model.Message, error) {
	var messages []model.Message
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND id > ?", sessionID, afterID).
		Order("timestamp ASC").
		Order("id ASC").
		Find(&messages).Error
	return messages, err
}
