package handler

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"dealer-support-server/internal/middleware"
	"dealer-support-server/internal/model"
	"dealer-support-server/internal/service"
	"dealer-support-server/pkg/response"
)

// PresenceReader 在线客服查询
type PresenceReader interface {
	GetOnlineOperators(ctx context.Context) ([]int64, error)
}

// OperatorHandler 后台客服的会话操作处理器
type OperatorHandler struct {
	chatService *service.ChatService
	presence    PresenceReader
}

// NewOperatorHandler 创建 OperatorHandler 实例
// presence 可以为 nil，此时在线列表为空
func NewOperatorHandler(chatService *service.ChatService, presence PresenceReader) *OperatorHandler {
	return &OperatorHandler{
		chatService: chatService,
		presence:    presence,
	}
}

// AgentMessageRequest 客服发送消息请求
type AgentMessageRequest struct {
	Message string `json:"message" binding:"required"`
}

// ListSessions 获取会话列表
// @Summary 获取会话列表
// @Description status 支持逗号分隔多个状态，为空返回全部
// @Tags 客服
// @Security Bearer
// @Produce json
// @Param status query string false "状态过滤" example(pending_agent,with_agent)
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Router /api/v1/operator/sessions [get]
func (h *OperatorHandler) ListSessions(c *gin.Context) {
	var statuses []model.SessionStatus
	for _, s := range strings.Split(c.Query("status"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			statuses = append(statuses, model.SessionStatus(s))
		}
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	sessions, total, err := h.chatService.ListSessions(c.Request.Context(), statuses, page, pageSize)
	if err != nil {
		writeChatError(c, err, true)
		return
	}

	response.Success(c, gin.H{
		"sessions":  sessions,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetSession 获取会话详情
// @Router /api/v1/operator/sessions/{id} [get]
func (h *OperatorHandler) GetSession(c *gin.Context) {
	session, err := h.chatService.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeChatError(c, err, true)
		return
	}
	response.Success(c, session)
}

// GetMessages 获取会话消息
// @Router /api/v1/operator/sessions/{id}/messages [get]
func (h *OperatorHandler) GetMessages(c *gin.Context) {
	afterID, _ := strconv.ParseInt(c.DefaultQuery("after", "0"), 10, 64)

	messages, err := h.chatService.GetMessages(c.Request.Context(), c.Param("id"), afterID)
	if err != nil {
		writeChatError(c, err, true)
		return
	}
	response.Success(c, gin.H{
		"messages": messages,
	})
}

// ClaimSession 接入会话
// @Summary 接入会话
// @Description 会话已被其他客服接入时返回 409
// @Tags 客服
// @Security Bearer
// @Router /api/v1/operator/sessions/{id}/claim [post]
func (h *OperatorHandler) ClaimSession(c *gin.Context) {
	session, err := h.chatService.ClaimSession(c.Request.Context(), c.Param("id"), agentID(c), middleware.GetDisplayName(c))
	if err != nil {
		writeChatError(c, err, true)
		return
	}
	response.Success(c, session)
}

// SendMessage 客服发送消息
// 会话不在当前客服名下时会先接入
// @Router /api/v1/operator/sessions/{id}/messages [post]
func (h *OperatorHandler) SendMessage(c *gin.Context) {
	var req AgentMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	err := h.chatService.SubmitAgentMessage(c.Request.Context(), c.Param("id"), req.Message, agentID(c), middleware.GetDisplayName(c))
	if err != nil {
		writeChatError(c, err, true)
		return
	}
	response.SuccessWithMessage(c, "发送成功", nil)
}

// HandBack 交还自动助手
// @Router /api/v1/operator/sessions/{id}/handback [post]
func (h *OperatorHandler) HandBack(c *gin.Context) {
	if err := h.chatService.HandBackToAI(c.Request.Context(), c.Param("id")); err != nil {
		writeChatError(c, err, true)
		return
	}
	response.SuccessWithMessage(c, "已交还自动助手", nil)
}

// Resolve 标记会话已解决
// @Router /api/v1/operator/sessions/{id}/resolve [post]
func (h *OperatorHandler) Resolve(c *gin.Context) {
	if err := h.chatService.ResolveSession(c.Request.Context(), c.Param("id")); err != nil {
		writeChatError(c, err, true)
		return
	}
	response.SuccessWithMessage(c, "会话已解决", nil)
}

// MarkRead 清空未读计数
// @Router /api/v1/operator/sessions/{id}/read [post]
func (h *OperatorHandler) MarkRead(c *gin.Context) {
	if err := h.chatService.MarkRead(c.Request.Context(), c.Param("id")); err != nil {
		writeChatError(c, err, true)
		return
	}
	response.Success(c, nil)
}

// DeleteSession 删除会话及其全部消息
// @Router /api/v1/operator/sessions/{id} [delete]
func (h *OperatorHandler) DeleteSession(c *gin.Context) {
	if err := h.chatService.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		writeChatError(c, err, true)
		return
	}
	response.SuccessWithMessage(c, "删除成功", nil)
}

// OnlineOperators 获取在线客服ID列表
// @Router /api/v1/operator/online [get]
func (h *OperatorHandler) OnlineOperators(c *gin.Context) {
	ids := []int64{}
	if h.presence != nil {
		online, err := h.presence.GetOnlineOperators(c.Request.Context())
		if err != nil {
			_ = c.Error(err)
			response.InternalError(c, "获取在线状态失败")
			return
		}
		ids = append(ids, online...)
	}
	response.Success(c, gin.H{
		"operator_ids": ids,
	})
}

// agentID 会话记录中的客服标识即账号 ID
func agentID(c *gin.Context) string {
	return strconv.FormatInt(middleware.GetOperatorID(c), 10)
}
