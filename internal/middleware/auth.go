// Package middleware 提供 HTTP 请求的中间件
// 包括 JWT 认证、CORS 跨域、日志记录、限流等
package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"dealer-support-server/internal/model"
	"dealer-support-server/pkg/jwt"
	"dealer-support-server/pkg/response"
)

// BlacklistChecker Token 黑名单查询
type BlacklistChecker interface {
	IsTokenBlacklisted(ctx context.Context, tokenHash string) bool
}

// 上下文键
const (
	ctxOperatorID  = "operator_id"
	ctxUsername    = "username"
	ctxDisplayName = "display_name"
	ctxRole        = "role"
	ctxToken       = "token"
	ctxTokenExp    = "token_exp"
)

// AuthMiddleware 创建 JWT 认证中间件
// 验证请求头中的 Bearer Token，并将客服信息存入上下文
// 参数:
//   - jwtService: JWT 服务实例，用于解析和验证 Token
//   - blacklist: 黑名单查询，用于检查已登出的 Token
//
// 返回:
//   - gin.HandlerFunc: Gin 中间件函数
func AuthMiddleware(jwtService *jwt.JWTService, blacklist BlacklistChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. 从请求头获取 Authorization 字段
		// 格式: "Bearer <token>"
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "请先登录")
			c.Abort()
			return
		}

		// 2. 解析 Bearer Token
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "认证格式错误")
			c.Abort()
			return
		}
		tokenString := parts[1]

		// 3. 验证 Token，只接受 Access Token
		claims, err := jwtService.ValidateAccessToken(tokenString)
		if err != nil {
			response.Unauthorized(c, "Token 无效或已过期")
			c.Abort()
			return
		}

		// 4. 检查 Token 是否在黑名单中
		if blacklist != nil && blacklist.IsTokenBlacklisted(c.Request.Context(), jwt.HashToken(tokenString)) {
			response.Unauthorized(c, "Token 已失效，请重新登录")
			c.Abort()
			return
		}

		// 5. 将客服信息存入上下文
		c.Set(ctxOperatorID, claims.OperatorID)
		c.Set(ctxUsername, claims.Username)
		c.Set(ctxDisplayName, claims.DisplayName)
		c.Set(ctxRole, claims.Role)
		c.Set(ctxToken, tokenString)
		if claims.ExpiresAt != nil {
			c.Set(ctxTokenExp, claims.ExpiresAt.Time)
		}

		c.Next()
	}
}

// RequireSupervisor 只允许主管访问
// 必须放在 AuthMiddleware 之后
func RequireSupervisor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetRole(c) != model.OperatorRoleSupervisor {
			response.Forbidden(c, "需要主管权限")
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetOperatorID 从上下文获取客服 ID
// 未认证返回 0
func GetOperatorID(c *gin.Context) int64 {
	return c.GetInt64(ctxOperatorID)
}

// GetUsername 从上下文获取用户名
func GetUsername(c *gin.Context) string {
	return c.GetString(ctxUsername)
}

// GetDisplayName 从上下文获取客服显示名
// 没有设置显示名时使用用户名
func GetDisplayName(c *gin.Context) string {
	if name := c.GetString(ctxDisplayName); name != "" {
		return name
	}
	return GetUsername(c)
}

// GetRole 从上下文获取客服角色
func GetRole(c *gin.Context) string {
	return c.GetString(ctxRole)
}

// GetToken 从上下文获取原始 Token
func GetToken(c *gin.Context) string {
	return c.GetString(ctxToken)
}

// GetTokenExpire 从上下文获取 Token 过期时间
// 登出时用作黑名单 TTL
func GetTokenExpire(c *gin.Context) time.Time {
	return c.GetTime(ctxTokenExp)
}
