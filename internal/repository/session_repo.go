// Package repository 提供数据访问层的实现
package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"dealer-support-server/internal/model"
)

// SessionRepository 客服会话数据访问层
// 负责会话相关的所有数据库操作
//
// 访客端和客服端会同时修改同一条会话记录，这里所有的修改都是部分字段更新，
// 计数器使用 SQL 自增，状态迁移使用带条件的 UPDATE，尽量缩小竞争窗口
type SessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository 创建 SessionRepository 实例
func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create 创建新会话
// 参数:
//   - ctx: 上下文
//   - session: 会话对象，ID 由调用方指定
//
// 返回:
//   - error: 数据库错误（ID 重复时同样返回错误）
func (r *SessionRepository) Create(ctx context.Context, session *model.Session) error {
	return r.db.WithContext(ctx).Create(session).Error
}

// GetByID 根据 ID 获取会话
// 参数:
//   - ctx: 上下文
//   - id: 会话ID
//
// 返回:
//   - *model.Session: 会话对象，未找到返回 nil
//   - error: 数据库错误
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// UpdateFields 部分字段更新
// 参数:
//   - ctx: 上下文
//   - id: 会话ID
//   - fields: 要更新的字段（列名 -> 值）
//
// 返回:
//   - int64: 受影响的行数，0 表示会话不存在
//   - error: 数据库错误
func (r *SessionRepository) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("id = ?", id).
		Updates(fields)
	return result.RowsAffected, result.Error
}

// TouchUserMessage 记录一条访客消息
// unread_by_agent 在数据库侧自增，同时刷新时间戳
func (r *SessionRepository) TouchUserMessage(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"unread_by_agent": gorm.Expr("unread_by_agent + ?", 1),
			"last_message_at": at,
			"updated_at":      at,
		}).Error
}

// IncrementEscalation 递增请求人工次数并返回新值
// 仅在会话处于 ai 状态时生效，返回 0 表示状态已经变化
func (r *SessionRepository) IncrementEscalation(ctx context.Context, id string, at time.Time) (int, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("id = ? AND status = ?", id, string(model.SessionStatusAI)).
		Updates(map[string]interface{}{
			"escalation_count": gorm.Expr("escalation_count + ?", 1),
			"updated_at":       at,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, nil
	}

	var count int
	err := r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("id = ?", id).
		Select("escalation_count").
		Scan(&count).Error
	return count, err
}

// MarkPendingAgent 从 ai 转为 pending_agent
// 返回是否发生了迁移
func (r *SessionRepository) MarkPendingAgent(ctx context.Context, id string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("id = ? AND status = ?", id, string(model.SessionStatusAI)).
		Updates(map[string]interface{}{
			"status":          string(model.SessionStatusPendingAgent),
			"pending_since":   at,
			"last_message_at": at,
			"updated_at":      at,
		})
	return result.RowsAffected > 0, result.Error
}

// ClaimIfAvailable 客服认领会话
// 只有不在人工处理中的会话（ai / pending_agent / resolved）可以被认领
//
// 返回:
//   - bool: 是否认领成功
//   - error: 数据库错误
func (r *SessionRepository) ClaimIfAvailable(ctx context.Context, id, agentID, agentName string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("id = ? AND status IN ?", id, []string{
			string(model.SessionStatusAI),
			string(model.SessionStatusPendingAgent),
			string(model.SessionStatusResolved),
		}).
		Updates(assignFields(agentID, agentName, at))
	return result.RowsAffected > 0, result.Error
}

// AssignAgent 无条件把会话交给指定客服
// 用于客服直接发消息的场景（最后写入者获得会话）
func (r *SessionRepository) AssignAgent(ctx context.Context, id, agentID, agentName string, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("id = ?", id).
		Updates(assignFields(agentID, agentName, at))
	return result.RowsAffected, result.Error
}

// assignFields 迁移到 with_agent 时需要写入的字段
func assignFields(agentID, agentName string, at time.Time) map[string]interface{} {
	return map[string]interface{}{
		"status":        string(model.SessionStatusWithAgent),
		"agent_id":      agentID,
		"agent_name":    agentName,
		"resolved":      false,
		"pending_since": nil,
		"updated_at":    at,
	}
}

// ReleaseAgent 客服把会话交还给自动助手
// 仅在 with_agent 状态下生效，清空客服字段，不重置请求人工次数
func (r *SessionRepository) ReleaseAgent(ctx context.Context, id string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("id = ? AND status = ?", id, string(model.SessionStatusWithAgent)).
		Updates(map[string]interface{}{
			"status":          string(model.SessionStatusAI),
			"agent_id":        nil,
			"agent_name":      nil,
			"pending_since":   nil,
			"last_message_at": at,
			"updated_at":      at,
		})
	return result.RowsAffected > 0, result.Error
}

// Resolve 结束会话
// 参数:
//   - ctx: 上下文
//   - id: 会话ID
//   - at: 操作时间
//
// 返回:
//   - int64: 受影响的行数
//   - error: 数据库错误
func (r *SessionRepository) Resolve(ctx context.Context, id string, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":          string(model.SessionStatusResolved),
			"resolved":        true,
			"agent_id":        nil,
			"agent_name":      nil,
			"pending_since":   nil,
			"last_message_at": at,
			"updated_at":      at,
		})
	return result.RowsAffected, result.Error
}

// Reopen 已解决的会话收到新的访客消息时重新交给自动助手
func (r *SessionRepository) Reopen(ctx context.Context, id string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("id = ? AND status = ?", id, string(model.SessionStatusResolved)).
		Updates(map[string]interface{}{
			"status":     string(model.SessionStatusAI),
			"resolved":   false,
			"updated_at": at,
		})
	return result.RowsAffected > 0, result.Error
}

// EnrichIdentity 补全访客身份
// 只在会话还没有 user_id 时写入，已有身份不会被覆盖
func (r *SessionRepository) EnrichIdentity(ctx context.Context, id string, fields map[string]interface{}) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("id = ? AND (user_id IS NULL OR user_id = '')", id).
		Updates(fields)
	return result.RowsAffected > 0, result.Error
}

// ResetUnread 客服查看会话后清零未读数
// 返回的受影响行数依赖驱动，不能用来判断会话是否存在
func (r *SessionRepository) ResetUnread(ctx context.Context, id string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("id = ?", id).
		UpdateColumn("unread_by_agent", 0)
	return result.RowsAffected, result.Error
}

// ListByStatus 分页获取会话列表
// 参数:
//   - ctx: 上下文
//   - statuses: 状态过滤，为空时返回全部
//   - page: 页码，从 1 开始
//   - pageSize: 每页数量
//
// 返回:
//   - []model.Session: 会话列表，按最后消息时间倒序
//   - int64: 总数量
//   - error: 数据库错误
func (r *SessionRepository) ListByStatus(ctx context.Context, statuses []model.SessionStatus, page, pageSize int) ([]model.Session, int64, error) {
	var sessions []model.Session
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Session{})
	if len(statuses) > 0 {
		values := make([]string, len(statuses))
		for i, s := range statuses {
			values[i] = string(s)
		}
		query = query.Where("status IN ?", values)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("last_message_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&sessions).Error

	return sessions, total, err
}

// ListPendingBefore 获取在指定时间之前就进入等待状态、至今无人接入的会话
// 供超时巡检使用，按进入等待的时间计算，不受访客后续消息影响
func (r *SessionRepository) ListPendingBefore(ctx context.Context, before time.Time) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.WithContext(ctx).
		Where("status = ? AND pending_since < ?", string(model.SessionStatusPendingAgent), before).
		Order("pending_since ASC").
		Find(&sessions).Error
	return sessions, err
}

// DeleteWithMessages 删除会话及其全部消息
// 先删消息再删会话，在同一个事务中完成
//
// 返回:
//   - int64: 删除的会话数，0 表示会话不存在
//   - error: 数据库错误
func (r *SessionRepository) DeleteWithMessages(ctx context.Context, id string) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&model.Session{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected
		return nil
	})
	return deleted, err
}
