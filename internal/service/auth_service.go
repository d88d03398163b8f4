// Package service 提供业务逻辑层的实现
// 服务层封装具体的业务逻辑，协调 Repository 和 Cache
package service

import (
	"context"
	"strings"
	"time"

	"dealer-support-server/internal/model"
	"dealer-support-server/pkg/jwt"
	"dealer-support-server/pkg/util"
)

// OperatorStore 客服账号存储
type OperatorStore interface {
	Create(ctx context.Context, operator *model.Operator) error
	GetByID(ctx context.Context, id int64) (*model.Operator, error)
	GetByUsername(ctx context.Context, username string) (*model.Operator, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}

// TokenBlacklist Token 黑名单
type TokenBlacklist interface {
	BlacklistToken(ctx context.Context, tokenHash string, expireAt time.Time) error
}

// AuthService 认证服务
// 处理后台客服的登录、登出和 Token 续期
type AuthService struct {
	operators  OperatorStore   // 客服数据访问层
	blacklist  TokenBlacklist  // Redis 黑名单
	jwtService *jwt.JWTService // JWT 服务
}

// NewAuthService 创建 AuthService 实例
func NewAuthService(operators OperatorStore, blacklist TokenBlacklist, jwtService *jwt.JWTService) *AuthService {
	return &AuthService{
		operators:  operators,
		blacklist:  blacklist,
		jwtService: jwtService,
	}
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"` // 用户名
	Password string `json:"password" binding:"required"` // 密码
}

// LoginResponse 登录响应
type LoginResponse struct {
	AccessToken  string          `json:"access_token"`  // 访问令牌
	RefreshToken string          `json:"refresh_token"` // 刷新令牌
	ExpiresIn    int64           `json:"expires_in"`    // 过期时间（秒）
	Operator     *model.Operator `json:"operator"`      // 客服信息
}

// Login 客服登录
// 参数:
//   - ctx: 上下文
//   - req: 登录请求
//
// 返回:
//   - *LoginResponse: 登录成功返回 Token 和客服信息
//   - error: 登录失败返回错误（账号不存在/密码错误/已禁用）
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	// 1. 根据用户名查找账号
	operator, err := s.operators.GetByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		return nil, storeErr("get operator", err)
	}
	if operator == nil {
		return nil, ErrOperatorNotFound
	}

	// 2. 验证密码
	if !util.CheckPassword(req.Password, operator.PasswordHash) {
		return nil, ErrPasswordWrong
	}

	// 3. 检查账号状态
	if !operator.Active() {
		return nil, ErrOperatorDisabled
	}

	// 4. 生成 Token
	id := identityOf(operator)
	accessToken, err := s.jwtService.GenerateAccessToken(id)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.jwtService.GenerateRefreshToken(id)
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwtService.GetAccessExpire().Seconds()),
		Operator:     operator,
	}, nil
}

// Logout 客服登出
// 将 Token 加入黑名单，TTL 为 Token 的剩余有效期
func (s *AuthService) Logout(ctx context.Context, tokenHash string, expireAt time.Time) error {
	return s.blacklist.BlacklistToken(ctx, tokenHash, expireAt)
}

// RefreshTokenResponse 刷新 Token 响应
type RefreshTokenResponse struct {
	AccessToken string `json:"access_token"` // 新的访问令牌
	ExpiresIn   int64  `json:"expires_in"`   // 过期时间（秒）
}

// RefreshToken 刷新 Access Token
// 参数:
//   - ctx: 上下文
//   - refreshToken: Refresh Token
//
// 返回:
//   - *RefreshTokenResponse: 新的 Access Token
//   - error: 刷新失败返回错误
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*RefreshTokenResponse, error) {
	claims, err := s.jwtService.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	// 检查账号是否仍然存在且正常
	operator, err := s.operators.GetByID(ctx, claims.OperatorID)
	if err != nil {
		return nil, storeErr("get operator", err)
	}
	if operator == nil {
		return nil, ErrOperatorNotFound
	}
	if !operator.Active() {
		return nil, ErrOperatorDisabled
	}

	accessToken, err := s.jwtService.GenerateAccessToken(identityOf(operator))
	if err != nil {
		return nil, err
	}

	return &RefreshTokenResponse{
		AccessToken: accessToken,
		ExpiresIn:   int64(s.jwtService.GetAccessExpire().Seconds()),
	}, nil
}

// GetOperator 获取客服信息
func (s *AuthService) GetOperator(ctx context.Context, id int64) (*model.Operator, error) {
	operator, err := s.operators.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr("get operator", err)
	}
	if operator == nil {
		return nil, ErrOperatorNotFound
	}
	return operator, nil
}

// ChangePasswordRequest 修改密码请求
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`       // 旧密码
	NewPassword string `json:"new_password" binding:"required,min=6"` // 新密码
}

// ChangePassword 修改密码
// 参数:
//   - ctx: 上下文
//   - operatorID: 客服ID
//   - req: 修改密码请求
//
// 返回:
//   - error: 旧密码错误等情况返回错误
func (s *AuthService) ChangePassword(ctx context.Context, operatorID int64, req *ChangePasswordRequest) error {
	operator, err := s.GetOperator(ctx, operatorID)
	if err != nil {
		return err
	}

	if !util.CheckPassword(req.OldPassword, operator.PasswordHash) {
		return ErrPasswordWrong
	}

	newHash, err := util.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	return storeErr("update password", s.operators.UpdatePassword(ctx, operatorID, newHash))
}

// EnsureOperator 账号不存在时创建
// 服务启动时用于初始化默认主管账号
func (s *AuthService) EnsureOperator(ctx context.Context, username, password, displayName, role string) error {
	exists, err := s.operators.ExistsByUsername(ctx, username)
	if err != nil {
		return storeErr("check operator", err)
	}
	if exists {
		return nil
	}

	hash, err := util.HashPassword(password)
	if err != nil {
		return err
	}
	return storeErr("create operator", s.operators.Create(ctx, &model.Operator{
		Username:     username,
		PasswordHash: hash,
		DisplayName:  displayName,
		Role:         role,
		Status:       1,
	}))
}

func identityOf(o *model.Operator) jwt.Identity {
	return jwt.Identity{
		OperatorID:  o.ID,
		Username:    o.Username,
		DisplayName: o.DisplayName,
		Role:        o.Role,
	}
}
