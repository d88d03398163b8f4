// Package model 定义了与数据库表对应的数据结构
// 这些结构体类似于 Java 中的 Entity 类
package model

import (
	"time"
)

// 客服角色常量
const (
	OperatorRoleAgent      = "agent"      // 普通客服
	OperatorRoleSupervisor = "supervisor" // 主管，接收超时提醒
)

// Operator 后台客服账号模型
// 对应数据库表 operators
type Operator struct {
	// ID 客服唯一标识，自增主键
	ID int64 `gorm:"primaryKey" json:"id"`

	// Username 登录用户名，全局唯一
	Username string `gorm:"size:50;uniqueIndex;not null" json:"username"`

	// PasswordHash 密码的 bcrypt 哈希值
	PasswordHash string `gorm:"size:255;not null" json:"-"`

	// DisplayName 展示给访客的名称
	DisplayName string `gorm:"size:100;not null" json:"display_name"`

	// Role 角色: agent / supervisor
	Role string `gorm:"size:20;not null;default:agent" json:"role"`

	// Status 账号状态
	// 1: 正常
	// 0: 禁用
	Status int8 `gorm:"default:1" json:"status"`

	// CreatedAt 创建时间，由 GORM 自动填充
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// UpdatedAt 更新时间，由 GORM 自动更新
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (Operator) TableName() string {
	return "operators"
}

// Active 账号是否可用
func (o *Operator) Active() bool {
	return o.Status == 1
}
