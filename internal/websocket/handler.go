// Package websocket 提供 WebSocket 通信功能
package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dealer-support-server/internal/middleware"
	"dealer-support-server/pkg/jwt"
	"dealer-support-server/pkg/response"
)

// 与会话表 id 字段长度一致
const maxSessionIDLength = 64

// Handler 处理 WebSocket 连接
type Handler struct {
	hub       *Hub
	jwt       *jwt.JWTService
	blacklist middleware.BlacklistChecker
	upgrader  websocket.Upgrader
}

// NewHandler 创建 WebSocket Handler
// 参数:
//   - hub: 连接管理器
//   - jwtService: 用于验证客服 Token
//   - blacklist: Token 黑名单，可以为 nil
//   - origins: 允许的来源，为空时不检查
func NewHandler(hub *Hub, jwtService *jwt.JWTService, blacklist middleware.BlacklistChecker, origins []string) *Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}

	return &Handler{
		hub:       hub,
		jwt:       jwtService,
		blacklist: blacklist,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
	}
}

// HandleVisitorWS 处理访客挂件 WebSocket 连接
// 路由: GET /ws/visitor
// 参数: session_id (query parameter)
func (h *Handler) HandleVisitorWS(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" || len(sessionID) > maxSessionIDLength {
		response.BadRequest(c, "无效的会话ID")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.log.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	client := NewVisitorClient(h.hub, conn, sessionID)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

// HandleOperatorWS 处理客服控制台 WebSocket 连接
// 路由: GET /ws/operator
// 参数: token (query parameter) - Access Token
func (h *Handler) HandleOperatorWS(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Unauthorized(c, "需要认证 token")
		return
	}

	claims, err := h.jwt.ValidateAccessToken(token)
	if err != nil {
		response.Unauthorized(c, "无效的 token")
		return
	}
	if h.blacklist != nil && h.blacklist.IsTokenBlacklisted(c.Request.Context(), jwt.HashToken(token)) {
		response.Unauthorized(c, "Token 已失效，请重新登录")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.log.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	name := claims.DisplayName
	if name == "" {
		name = claims.Username
	}
	client := NewOperatorClient(h.hub, conn, claims.OperatorID, name)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

// RegisterRoutes 注册 WebSocket 路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// WebSocket 路由不需要中间件（token 在 query 中验证）
	ws := r.Group("/ws")
	{
		ws.GET("/visitor", h.HandleVisitorWS)
		ws.GET("/operator", h.HandleOperatorWS)
	}
}
