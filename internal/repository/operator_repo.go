// Package repository 提供数据访问层的实现
// 封装所有与数据库的交互操作
package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"dealer-support-server/internal/model"
)

// OperatorRepository 客服账号数据访问层
type OperatorRepository struct {
	db *gorm.DB // GORM 数据库连接实例
}

// NewOperatorRepository 创建 OperatorRepository 实例
// 参数:
//   - db: GORM 数据库连接
//
// 返回:
//   - *OperatorRepository: 客服仓库实例
func NewOperatorRepository(db *gorm.DB) *OperatorRepository {
	return &OperatorRepository{db: db}
}

// Create 创建客服账号
// 参数:
//   - ctx: 上下文，用于控制请求生命周期
//   - operator: 客服对象，ID 字段会被自动填充
//
// 返回:
//   - error: 如果用户名重复，会返回错误
func (r *OperatorRepository) Create(ctx context.Context, operator *model.Operator) error {
	return r.db.WithContext(ctx).Create(operator).Error
}

// GetByID 根据 ID 获取客服
// 参数:
//   - ctx: 上下文
//   - id: 客服ID
//
// 返回:
//   - *model.Operator: 客服对象，如果未找到返回 nil
//   - error: 数据库错误（不包括记录未找到）
func (r *OperatorRepository) GetByID(ctx context.Context, id int64) (*model.Operator, error) {
	var operator model.Operator
	err := r.db.WithContext(ctx).First(&operator, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // 未找到返回 nil，不当作错误
		}
		return nil, err
	}
	return &operator, nil
}

// GetByUsername 根据用户名获取客服
// 用于登录验证
func (r *OperatorRepository) GetByUsername(ctx context.Context, username string) (*model.Operator, error) {
	var operator model.Operator
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&operator).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &operator, nil
}

// ListByRole 获取指定角色的全部可用账号
// 超时提醒时用于查找主管
func (r *OperatorRepository) ListByRole(ctx context.Context, role string) ([]model.Operator, error) {
	var operators []model.Operator
	err := r.db.WithContext(ctx).
		Where("role = ? AND status = ?", role, 1).
		Order("id ASC").
		Find(&operators).Error
	return operators, err
}

// UpdatePassword 更新密码哈希
func (r *OperatorRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return r.db.WithContext(ctx).Model(&model.Operator{}).Where("id = ?", id).Update("password_hash", passwordHash).Error
}

// UpdateStatus 启用或禁用账号
// 参数:
//   - ctx: 上下文
//   - id: 客服ID
//   - status: 1 正常，0 禁用
//
// 返回:
//   - error: 数据库错误
func (r *OperatorRepository) UpdateStatus(ctx context.Context, id int64, status int8) error {
	return r.db.WithContext(ctx).Model(&model.Operator{}).Where("id = ?", id).Update("status", status).Error
}

// ExistsByUsername 检查用户名是否已存在
// 参数:
//   - ctx: 上下文
//   - username: 用户名
//
// 返回:
//   - bool: 是否存在
//   - error: 数据库错误
func (r *OperatorRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Operator{}).Where("username = ?", username).Count(&count).Error
	return count > 0, err
}
