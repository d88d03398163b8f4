package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"dealer-support-server/internal/service"
	"dealer-support-server/pkg/response"
)

// ChatHandler 访客聊天挂件的请求处理器
// 这些接口无需登录，会话 ID 即访客凭证
type ChatHandler struct {
	chatService *service.ChatService
}

// NewChatHandler 创建 ChatHandler 实例
func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
	}
}

// CreateSession 为挂件分配会话 ID
// @Summary 分配会话ID
// @Tags 访客
// @Produce json
// @Success 201 {object} response.Response
// @Router /api/v1/chat/sessions [post]
func (h *ChatHandler) CreateSession(c *gin.Context) {
	response.Created(c, gin.H{
		"session_id": h.chatService.NewSessionID(),
	})
}

// SendMessage 访客发送消息
// @Summary 访客发送消息
// @Description 人工处理阶段 reply 为 null
// @Tags 访客
// @Accept json
// @Produce json
// @Param body body service.VisitorMessageRequest true "消息内容"
// @Success 200 {object} response.Response{data=service.VisitorMessageResult}
// @Router /api/v1/chat/messages [post]
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req service.VisitorMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	result, err := h.chatService.SubmitVisitorMessage(c.Request.Context(), &req)
	if err != nil {
		writeChatError(c, err, false)
		return
	}

	response.Success(c, result)
}

// GetMessages 获取会话消息
// @Summary 获取会话消息
// @Tags 访客
// @Produce json
// @Param id path string true "会话ID"
// @Param after query int false "只返回该消息ID之后的消息"
// @Router /api/v1/chat/sessions/{id}/messages [get]
func (h *ChatHandler) GetMessages(c *gin.Context) {
	afterID, _ := strconv.ParseInt(c.DefaultQuery("after", "0"), 10, 64)

	messages, err := h.chatService.GetMessages(c.Request.Context(), c.Param("id"), afterID)
	if err != nil {
		writeChatError(c, err, false)
		return
	}

	response.Success(c, gin.H{
		"messages": messages,
	})
}
