package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dealer-support-server/internal/limiter"
	"dealer-support-server/internal/middleware"
	"dealer-support-server/pkg/jwt"
	"dealer-support-server/pkg/logger"
)

// RouteOptions 路由注册所需的依赖
type RouteOptions struct {
	JWT       *jwt.JWTService
	Blacklist middleware.BlacklistChecker

	// Limiter 为 nil 时访客消息接口不限流
	Limiter    limiter.Limiter
	RateLimit  int
	RateWindow time.Duration
	Log        *zap.Logger

	Auth     *AuthHandler
	Chat     *ChatHandler
	Operator *OperatorHandler
}

// RegisterRoutes 注册所有 HTTP 路由
// WebSocket 路由由 websocket.Handler 单独注册
func RegisterRoutes(router *gin.Engine, opts RouteOptions) {
	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	authRequired := middleware.AuthMiddleware(opts.JWT, opts.Blacklist)

	// 访客挂件（无需登录）
	chat := v1.Group("/chat")
	{
		chat.POST("/sessions", opts.Chat.CreateSession)
		if opts.Limiter != nil {
			chat.POST("/messages",
				middleware.RateLimitMiddleware(opts.Limiter, opts.RateLimit, opts.RateWindow, logger.OrNop(opts.Log)),
				opts.Chat.SendMessage)
		} else {
			chat.POST("/messages", opts.Chat.SendMessage)
		}
		chat.GET("/sessions/:id/messages", opts.Chat.GetMessages)
	}

	// 认证相关
	auth := v1.Group("/auth")
	{
		auth.POST("/login", opts.Auth.Login)
		auth.POST("/refresh", opts.Auth.RefreshToken)
		auth.POST("/logout", authRequired, opts.Auth.Logout)
	}

	// 后台客服（需要登录）
	operator := v1.Group("/operator")
	operator.Use(authRequired)
	{
		operator.GET("/me", opts.Auth.Me)
		operator.PUT("/me/password", opts.Auth.ChangePassword)
		operator.GET("/online", middleware.RequireSupervisor(), opts.Operator.OnlineOperators)

		operator.GET("/sessions", opts.Operator.ListSessions)
		operator.GET("/sessions/:id", opts.Operator.GetSession)
		operator.DELETE("/sessions/:id", opts.Operator.DeleteSession)
		operator.GET("/sessions/:id/messages", opts.Operator.GetMessages)
		operator.POST("/sessions/:id/messages", opts.Operator.SendMessage)
		operator.POST("/sessions/:id/claim", opts.Operator.ClaimSession)
		operator.POST("/sessions/:id/handback", opts.Operator.HandBack)
		operator.POST("/sessions/:id/resolve", opts.Operator.Resolve)
		operator.POST("/sessions/:id/read", opts.Operator.MarkRead)
	}
}
